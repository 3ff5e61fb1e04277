// Package idempotency makes mutating operations safe to retry.
//
// A client attaches a unique key to each mutating request. The first
// request with a key executes and its outcome is stored, inside the same
// transaction as the mutation. A retry with the same key and an identical
// request replays the stored outcome byte for byte without executing
// again. Reusing a key for a different request, route or user is a
// CONFLICT.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roach88/tableside/internal/canon"
	"github.com/roach88/tableside/internal/clock"
	"github.com/roach88/tableside/internal/domain"
)

// Records is the storage the guard needs. *store.Tx satisfies it.
type Records interface {
	IdempotencyRecord(ctx context.Context, key string) (domain.IdempotencyRecord, bool, error)
	InsertIdempotencyRecord(ctx context.Context, rec domain.IdempotencyRecord) error
}

// Request identifies one mutating call.
type Request struct {
	// Key is the client-supplied idempotency key.
	Key string

	// UserID is the authenticated caller.
	UserID string

	// Route names the operation, e.g. "fire_wave".
	Route string

	// Body is the operation's input. It is fingerprinted canonically, so
	// key order and Unicode normalization do not affect the hash.
	Body any
}

// Guard checks and records idempotency keys.
type Guard struct {
	clock clock.Clock
}

// NewGuard creates a guard that stamps records with c.
func NewGuard(c clock.Clock) *Guard {
	return &Guard{clock: c}
}

// Outcome is what Do returns: the decoded value, its stored bytes and
// whether it was replayed.
type Outcome[T any] struct {
	Value    T
	Body     []byte
	Replayed bool
}

// Do runs fn at most once per key.
//
// Do must be called inside the transaction that fn mutates, with recs bound
// to that transaction, so the stored outcome commits or rolls back with
// the mutation. When fn returns an error nothing is stored and the error
// is returned; the caller's transaction should roll back.
func Do[T any](ctx context.Context, g *Guard, recs Records, req Request, fn func() (T, error)) (Outcome[T], error) {
	var zero Outcome[T]

	if req.Key == "" {
		return zero, domain.Validation("idempotency key is required")
	}
	if req.UserID == "" {
		return zero, domain.NewError(domain.KindAuthorization, string(domain.ReasonUnauthorized), "caller identity is required")
	}

	hash, err := canon.RequestHash(req.Body)
	if err != nil {
		return zero, fmt.Errorf("idempotency: hash request: %w", err)
	}

	existing, found, err := recs.IdempotencyRecord(ctx, req.Key)
	if err != nil {
		return zero, fmt.Errorf("idempotency: lookup: %w", err)
	}
	if found {
		if existing.UserID != req.UserID || existing.Route != req.Route || existing.RequestHash != hash {
			return zero, domain.Conflict("idempotency key was already used for a different request")
		}
		var v T
		if err := json.Unmarshal(existing.Response, &v); err != nil {
			return zero, fmt.Errorf("idempotency: decode stored response: %w", err)
		}
		return Outcome[T]{Value: v, Body: existing.Response, Replayed: true}, nil
	}

	v, err := fn()
	if err != nil {
		return zero, err
	}

	body, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("idempotency: encode response: %w", err)
	}

	err = recs.InsertIdempotencyRecord(ctx, domain.IdempotencyRecord{
		Key:         req.Key,
		UserID:      req.UserID,
		Route:       req.Route,
		RequestHash: hash,
		Response:    body,
		CreatedAt:   g.clock.Now(),
	})
	if err != nil {
		return zero, fmt.Errorf("idempotency: store outcome: %w", err)
	}

	return Outcome[T]{Value: v, Body: body}, nil
}
