package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/tableside/internal/clock"
)

// Purger deletes idempotency records older than a cutoff.
type Purger interface {
	PurgeIdempotencyRecords(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper removes idempotency records past their retention window.
type Sweeper struct {
	purger    Purger
	clock     clock.Clock
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewSweeper creates a sweeper.
func NewSweeper(purger Purger, c clock.Clock, retention, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{purger: purger, clock: c, retention: retention, interval: interval, logger: logger}
}

// SweepOnce deletes records created more than the retention window ago.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.retention)
	n, err := s.purger.PurgeIdempotencyRecords(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("purged idempotency records", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("idempotency sweep failed", "error", err)
			}
		}
	}
}
