// Package events writes entries to the per-session audit stream.
//
// Events are appended inside the caller's transaction so an event exists
// if and only if the mutation it describes committed. Payloads are stored
// as canonical JSON.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/roach88/tableside/internal/canon"
	"github.com/roach88/tableside/internal/clock"
	"github.com/roach88/tableside/internal/domain"
)

// Appender persists an event and assigns its seq. *store.Tx satisfies it.
type Appender interface {
	AppendEvent(ctx context.Context, e *domain.SessionEvent) error
}

// Entry is an event to record.
type Entry struct {
	SessionID  string
	LocationID string
	Type       string
	Source     domain.EventSource
	// Payload is any JSON-marshalable value. nil records an empty object.
	Payload any
}

var typePattern = regexp.MustCompile(`^[a-z][a-z0-9_.]{0,63}$`)

// ValidType reports whether typ is an acceptable event type name:
// lowercase, starting with a letter, at most 64 characters.
func ValidType(typ string) bool {
	return typePattern.MatchString(typ)
}

// Recorder stamps and appends session events.
type Recorder struct {
	clock clock.Clock
	ids   clock.IDGenerator
}

// NewRecorder creates a recorder.
func NewRecorder(c clock.Clock, ids clock.IDGenerator) *Recorder {
	return &Recorder{clock: c, ids: ids}
}

// Record validates e, canonicalizes its payload and appends it.
func (r *Recorder) Record(ctx context.Context, a Appender, e Entry) (domain.SessionEvent, error) {
	if e.SessionID == "" {
		return domain.SessionEvent{}, domain.Validation("event session id is required")
	}
	if !ValidType(e.Type) {
		return domain.SessionEvent{}, domain.Validation("invalid event type %q", e.Type)
	}
	if !e.Source.Valid() {
		return domain.SessionEvent{}, domain.Validation("invalid event source %q", e.Source)
	}

	payload, err := encodePayload(e.Payload)
	if err != nil {
		return domain.SessionEvent{}, err
	}

	ev := domain.SessionEvent{
		ID:         r.ids.NewID(),
		SessionID:  e.SessionID,
		LocationID: e.LocationID,
		Type:       e.Type,
		Source:     e.Source,
		Payload:    payload,
		CreatedAt:  r.clock.Now(),
	}
	if err := a.AppendEvent(ctx, &ev); err != nil {
		return domain.SessionEvent{}, fmt.Errorf("record %s: %w", e.Type, err)
	}
	return ev, nil
}

func encodePayload(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return json.RawMessage(`{}`), nil
		}
		data, err := canon.Canonicalize(raw)
		if err != nil {
			return nil, domain.Validation("event payload is not valid JSON: %v", err)
		}
		return data, nil
	}
	data, err := canon.Value(v)
	if err != nil {
		return nil, fmt.Errorf("encode event payload: %w", err)
	}
	return data, nil
}
