package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/tableside/internal/authz"
	"github.com/roach88/tableside/internal/clock"
	"github.com/roach88/tableside/internal/closing"
	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/events"
	"github.com/roach88/tableside/internal/idempotency"
	"github.com/roach88/tableside/internal/store"
)

const tracerName = "github.com/roach88/tableside/internal/engine"

// Engine executes point-of-sale operations against the store.
//
// Every mutating operation runs in one store transaction that also holds
// the idempotency check, the state change and any session event it
// emits. Either all of them commit or none do.
//
// Thread-safety: Engine is safe for concurrent use. Write transactions
// serialize in the store.
type Engine struct {
	store     *store.Store
	clock     clock.Clock
	ids       clock.IDGenerator
	oracle    authz.Oracle
	guard     *idempotency.Guard
	recorder  *events.Recorder
	tolerance decimal.Decimal
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the wall clock. Default: clock.System.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithIDGenerator sets the identifier source. Default: UUIDv7.
func WithIDGenerator(g clock.IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithOracle sets the authorization oracle. Default: a StoreOracle over
// the engine's store.
func WithOracle(o authz.Oracle) Option {
	return func(e *Engine) {
		e.oracle = o
	}
}

// WithTolerance sets the close-out balance tolerance.
// Default: closing.DefaultTolerance.
func WithTolerance(d decimal.Decimal) Option {
	return func(e *Engine) {
		e.tolerance = d
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithTracer sets the tracer. Default: the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// New creates an Engine over s.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:     s,
		clock:     clock.System{},
		ids:       clock.UUIDv7Generator{},
		tolerance: closing.DefaultTolerance,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.oracle == nil {
		e.oracle = authz.NewStoreOracle(s.Reader())
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.guard = idempotency.NewGuard(e.clock)
	e.recorder = events.NewRecorder(e.clock, e.ids)
	return e
}

// Requester identifies the caller of an operation.
type Requester struct {
	// UserID is the authenticated user.
	UserID string

	// IdempotencyKey is required for mutating operations.
	IdempotencyKey string
}

// Reply is the outcome of a mutating operation.
type Reply[T any] struct {
	// Value is the decoded outcome.
	Value T

	// Body is the stored JSON encoding of Value. Replays return the same
	// bytes as the original execution.
	Body []byte

	// Replayed is true when the outcome came from the idempotency store.
	Replayed bool
}

// Outcome returns the reply's discriminated result.
func (r Reply[T]) Outcome() domain.Result {
	if o, ok := any(r.Value).(interface{ Outcome() domain.Result }); ok {
		return o.Outcome()
	}
	return domain.Success()
}

// mutate runs fn exactly once per idempotency key inside a write
// transaction.
func mutate[T any](
	ctx context.Context,
	e *Engine,
	who Requester,
	route string,
	body any,
	fn func(ctx context.Context, tx *store.Tx) (T, error),
) (Reply[T], error) {
	ctx, span := e.tracer.Start(ctx, "engine."+route, trace.WithAttributes(
		attribute.String("tableside.route", route),
	))
	defer span.End()

	if who.IdempotencyKey == "" {
		return Reply[T]{}, domain.Validation("idempotency key is required")
	}
	if who.UserID == "" {
		return Reply[T]{}, domain.NewError(domain.KindAuthorization, string(domain.ReasonUnauthorized), "caller identity is required")
	}

	var out idempotency.Outcome[T]
	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = idempotency.Do(ctx, e.guard, tx, idempotency.Request{
			Key:    who.IdempotencyKey,
			UserID: who.UserID,
			Route:  route,
			Body:   body,
		}, func() (T, error) {
			return fn(ctx, tx)
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domain.KindOf(err) == domain.KindInternal {
			e.logger.Error("operation failed", "route", route, "user", who.UserID, "error", err)
		} else {
			e.logger.Warn("operation rejected", "route", route, "user", who.UserID, "error", err)
		}
		return Reply[T]{}, err
	}

	reply := Reply[T]{Value: out.Value, Body: out.Body, Replayed: out.Replayed}
	result := reply.Outcome()
	span.SetAttributes(
		attribute.Bool("tableside.replayed", out.Replayed),
		attribute.Bool("tableside.ok", result.OK),
		attribute.String("tableside.reason", string(result.Reason)),
	)
	e.logger.Debug("operation completed",
		"route", route,
		"user", who.UserID,
		"ok", result.OK,
		"reason", result.Reason,
		"replayed", out.Replayed,
	)
	return reply, nil
}

// view runs a read-only operation against a consistent snapshot.
func (e *Engine) view(ctx context.Context, route string, fn func(ctx context.Context, tx *store.Tx) error) error {
	ctx, span := e.tracer.Start(ctx, "engine."+route, trace.WithAttributes(
		attribute.String("tableside.route", route),
	))
	defer span.End()

	err := e.store.InTx(ctx, func(tx *store.Tx) error {
		return fn(ctx, tx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("read failed", "route", route, "error", err)
	}
	return err
}

// authorize returns the empty Reason when userID may act at locationID,
// location_not_found for an unknown location, and denied otherwise.
func (e *Engine) authorize(ctx context.Context, userID, locationID string, denied domain.Reason) (domain.Reason, error) {
	a, err := e.oracle.Access(ctx, userID, locationID)
	if errors.Is(err, authz.ErrLocationNotFound) {
		return domain.ReasonLocationNotFound, nil
	}
	if err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}
	if !a.Allowed() {
		return denied, nil
	}
	return "", nil
}

// authorizeResult is authorize with the default denial, as a Result.
func (e *Engine) authorizeResult(ctx context.Context, userID, locationID string) (domain.Result, error) {
	deny, err := e.authorize(ctx, userID, locationID, domain.ReasonUnauthorized)
	if err != nil {
		return domain.Result{}, err
	}
	if deny != "" {
		return domain.Fail(deny), nil
	}
	return domain.Success(), nil
}

// missing reports whether err is a store not-found.
func missing(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// refreshOrder recomputes the order's totals from its stored items and
// payments and persists them.
func (e *Engine) refreshOrder(ctx context.Context, tx *store.Tx, o *domain.Order) error {
	items, err := tx.ItemsForOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	payments, err := tx.PaymentsForOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	o.Recalculate(items, payments)
	return tx.UpdateOrderTotals(ctx, *o)
}

// record appends a session event in tx.
func (e *Engine) record(ctx context.Context, tx *store.Tx, sessionID, locationID, typ string, src domain.EventSource, payload any) (domain.SessionEvent, error) {
	if src == "" {
		src = domain.SourceAPI
	}
	return e.recorder.Record(ctx, tx, events.Entry{
		SessionID:  sessionID,
		LocationID: locationID,
		Type:       typ,
		Source:     src,
		Payload:    payload,
	})
}

// snapshot loads everything the close-out evaluator needs.
func snapshot(ctx context.Context, tx *store.Tx, s domain.Session) (closing.Snapshot, error) {
	orders, err := tx.OrdersForSession(ctx, s.ID)
	if err != nil {
		return closing.Snapshot{}, err
	}
	items, err := tx.ItemsForSession(ctx, s.ID)
	if err != nil {
		return closing.Snapshot{}, err
	}
	payments, err := tx.PaymentsForSession(ctx, s.ID)
	if err != nil {
		return closing.Snapshot{}, err
	}
	return closing.Snapshot{Session: s, Orders: orders, Items: items, Payments: payments}, nil
}

func totalsOf(o domain.Order) *domain.Totals {
	t := o.Totals()
	return &t
}
