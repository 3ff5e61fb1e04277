// Package httpapi exposes the engine over HTTP.
//
// Callers identify themselves with X-User-ID; the service is expected to
// sit behind an authenticating proxy that sets it. Mutating requests must
// carry an Idempotency-Key header. A retried request with the same key and
// body receives the original response bytes and Idempotent-Replayed: true.
//
// Every operation answers with its outcome document. The status code is
// derived from the outcome's reason kind: validation 400, not found 404,
// authorization 403, state conflict 409, blocked business rule 422.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/roach88/tableside/internal/engine"
)

// Header names.
const (
	HeaderUserID         = "X-User-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// Server routes HTTP requests to the engine.
type Server struct {
	engine *engine.Engine
	logger *slog.Logger
	health func(context.Context) error

	limit rate.Limit
	burst int
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithRateLimit sets the per-client request rate. A zero perSecond
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.limit = rate.Limit(perSecond)
		s.burst = burst
	}
}

// WithHealthCheck sets the probe behind GET /healthz.
func WithHealthCheck(fn func(context.Context) error) Option {
	return func(s *Server) {
		s.health = fn
	}
}

// New creates a Server over eng.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{engine: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.Router()
	if s.limit > 0 {
		h = newClientLimiter(s.limit, s.burst).Middleware(h)
	}
	h = loggingMiddleware(s.logger, h)
	h = recoverMiddleware(s.logger, h)
	return otelhttp.NewHandler(h, "tableside")
}

// Router returns the bare route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.Handle("/sessions", mutation(s, s.engine.EnsureSession, nil)).Methods(http.MethodPost)
	v1.Handle("/sessions/{session_id}/close", mutation(s, s.engine.CloseSession,
		func(r *http.Request, req *engine.CloseCheckRequest) { req.SessionID = mux.Vars(r)["session_id"] },
	)).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{session_id}/close-check", s.handleCloseCheck).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{session_id}/close-issues", s.handleCloseIssues).Methods(http.MethodGet)
	v1.Handle("/sessions/{session_id}/waves/{wave:[0-9]+}/fire", mutation(s, s.engine.FireWave, bindWave)).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{session_id}/events", s.handleListEvents).Methods(http.MethodGet)
	v1.Handle("/events", mutation(s, s.engine.RecordEvent, nil)).Methods(http.MethodPost)

	v1.Handle("/orders", mutation(s, s.engine.OpenOrder, nil)).Methods(http.MethodPost)
	v1.Handle("/orders/{order_id}/cancel", mutation(s, s.engine.CancelOrder,
		func(r *http.Request, req *engine.CancelOrderRequest) { req.OrderID = mux.Vars(r)["order_id"] },
	)).Methods(http.MethodPost)
	v1.Handle("/orders/{order_id}/items", mutation(s, s.engine.AddOrderItem,
		func(r *http.Request, req *engine.AddOrderItemRequest) { req.OrderID = mux.Vars(r)["order_id"] },
	)).Methods(http.MethodPost)
	v1.Handle("/orders/{order_id}/payments", mutation(s, s.engine.AddPayment,
		func(r *http.Request, req *engine.AddPaymentRequest) { req.OrderID = mux.Vars(r)["order_id"] },
	)).Methods(http.MethodPost)

	v1.Handle("/items/{item_id}", mutation(s, s.engine.UpdateOrderItem,
		func(r *http.Request, req *engine.UpdateOrderItemRequest) { req.OrderItemID = mux.Vars(r)["item_id"] },
	)).Methods(http.MethodPatch)
	itemActions := map[string]func(context.Context, engine.Requester, engine.ItemActionRequest) (engine.Reply[engine.ItemResult], error){
		"start":  s.engine.MarkItemPreparing,
		"ready":  s.engine.MarkItemReady,
		"serve":  s.engine.MarkItemServed,
		"void":   s.engine.VoidItem,
		"refire": s.engine.RefireItem,
	}
	for name, op := range itemActions {
		v1.Handle("/items/{item_id}/"+name, mutation(s, op, bindItem)).Methods(http.MethodPost)
	}

	v1.Handle("/payments/{payment_id}/complete", mutation(s, s.engine.CompletePayment, bindPayment)).Methods(http.MethodPost)
	v1.Handle("/payments/{payment_id}/refund", mutation(s, s.engine.RefundPayment, bindPayment)).Methods(http.MethodPost)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
