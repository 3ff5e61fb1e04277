// Package clock supplies wall-clock time and identifiers to the engine.
//
// Both are injected so tests and scenario runs can substitute deterministic
// implementations (see internal/testutil).
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current instant. Implementations must return UTC.
type Clock interface {
	Now() time.Time
}

// System is the production clock.
type System struct{}

// Now returns time.Now in UTC.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// IDGenerator produces identifiers for new sessions, orders, items,
// payments and events.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identifiers
// created later sort after earlier ones. This keeps primary-key order close
// to insertion order in the store.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
