// Package relay forwards the session event stream to asynchronous
// consumers such as kitchen displays.
//
// The relay polls events after a persisted cursor, hands each batch to a
// Publisher and advances the cursor only after the publisher accepted the
// whole batch. Delivery is at-least-once: a crash between publish and
// cursor save re-sends that batch, so consumers dedupe on event id.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/tableside/internal/domain"
)

// Defaults for Relay options.
const (
	DefaultName      = "kds"
	DefaultBatchSize = 100
	DefaultInterval  = 2 * time.Second
)

// Log is the event stream the relay reads. *store.Tx satisfies it.
type Log interface {
	EventsAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.SessionEvent, error)
	RelayCursor(ctx context.Context, name string) (int64, error)
	SaveRelayCursor(ctx context.Context, name string, seq int64) error
}

// Publisher delivers a batch of events in seq order.
type Publisher interface {
	Publish(ctx context.Context, events []domain.SessionEvent) error
	Close() error
}

// Relay moves events from the log to a publisher.
type Relay struct {
	log       Log
	pub       Publisher
	name      string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithName sets the cursor name. Relays with different names track
// their positions independently.
func WithName(name string) Option {
	return func(r *Relay) {
		r.name = name
	}
}

// WithBatchSize sets the maximum number of events per publish.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithInterval sets the idle poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = l
	}
}

// New creates a relay from log to pub.
func New(log Log, pub Publisher, opts ...Option) *Relay {
	r := &Relay{
		log:       log,
		pub:       pub,
		name:      DefaultName,
		batchSize: DefaultBatchSize,
		interval:  DefaultInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Pump publishes at most one batch and returns how many events it sent.
func (r *Relay) Pump(ctx context.Context) (int, error) {
	cursor, err := r.log.RelayCursor(ctx, r.name)
	if err != nil {
		return 0, err
	}
	evs, err := r.log.EventsAfter(ctx, cursor, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(evs) == 0 {
		return 0, nil
	}

	if err := r.pub.Publish(ctx, evs); err != nil {
		return 0, fmt.Errorf("publish after seq %d: %w", cursor, err)
	}
	last := evs[len(evs)-1].Seq
	if err := r.log.SaveRelayCursor(ctx, r.name, last); err != nil {
		return 0, err
	}

	r.logger.Debug("relayed events", "relay", r.name, "count", len(evs), "seq", last)
	return len(evs), nil
}

// Run pumps until ctx is cancelled. Full batches are drained back to
// back; otherwise the relay waits one interval between polls. Publish
// failures are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("event relay started", "relay", r.name, "interval", r.interval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		wait := r.interval
		n, err := r.Pump(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("event relay failed", "relay", r.name, "error", err)
		case n == r.batchSize:
			wait = 0
		}
		timer.Reset(wait)
	}
}
