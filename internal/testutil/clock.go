package testutil

import (
	"sync"
	"time"
)

// DefaultEpoch is the instant FixedClock starts at when none is given.
var DefaultEpoch = time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)

// FixedClock is a manually advanced wall clock for tests.
//
// Unlike clock.System, FixedClock only moves when Advance or Set is called,
// so timestamps written to the store are reproducible across runs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock creates a clock frozen at start. A zero start uses DefaultEpoch.
func NewFixedClock(start time.Time) *FixedClock {
	if start.IsZero() {
		start = DefaultEpoch
	}
	return &FixedClock{now: start.UTC()}
}

// Now returns the current frozen instant.
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new instant.
func (c *FixedClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
