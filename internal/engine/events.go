package engine

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/roach88/tableside/internal/canon"
	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/events"
	"github.com/roach88/tableside/internal/store"
)

// Event listing bounds.
const (
	DefaultEventLimit = 100
	MaxEventLimit     = 500
)

// RecordEventRequest appends a client-reported event, for example a
// table-page "guest requested check" or a KDS bump.
type RecordEventRequest struct {
	LocationID string             `json:"location_id"`
	SessionID  string             `json:"session_id"`
	Type       string             `json:"type"`
	Source     domain.EventSource `json:"source"`
	Payload    json.RawMessage    `json:"payload,omitempty"`
}

// RecordEventResult is the outcome of RecordEvent.
type RecordEventResult struct {
	domain.Result
	EventID string `json:"event_id,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
}

// RecordEvent appends an event to a session's stream. A payload that is
// not a single JSON object is rejected before the idempotency check.
func (e *Engine) RecordEvent(ctx context.Context, who Requester, req RecordEventRequest) (Reply[RecordEventResult], error) {
	payload, ok := objectPayload(req.Payload)
	if !ok {
		return Reply[RecordEventResult]{}, domain.Validation("payload must be a JSON object")
	}
	req.Payload = payload

	return mutate(ctx, e, who, "record_event", req, func(ctx context.Context, tx *store.Tx) (RecordEventResult, error) {
		if req.LocationID == "" || req.SessionID == "" {
			return RecordEventResult{Result: domain.Failf(domain.ReasonBadRequest, "location_id and session_id are required")}, nil
		}
		if !events.ValidType(req.Type) {
			return RecordEventResult{Result: domain.Failf(domain.ReasonBadRequest, "invalid event type")}, nil
		}
		if !req.Source.Valid() {
			return RecordEventResult{Result: domain.Failf(domain.ReasonBadRequest, "invalid event source")}, nil
		}
		s, err := tx.Session(ctx, req.SessionID)
		if missing(err) || (err == nil && s.LocationID != req.LocationID) {
			return RecordEventResult{Result: domain.Fail(domain.ReasonNotFound)}, nil
		}
		if err != nil {
			return RecordEventResult{}, err
		}
		deny, err := e.authorize(ctx, who.UserID, s.LocationID, domain.ReasonForbidden)
		if err != nil {
			return RecordEventResult{}, err
		}
		if deny != "" {
			return RecordEventResult{Result: domain.Fail(deny)}, nil
		}

		ev, err := e.record(ctx, tx, s.ID, s.LocationID, req.Type, req.Source, payload)
		if err != nil {
			return RecordEventResult{}, err
		}
		return RecordEventResult{Result: domain.Success(), EventID: ev.ID, Seq: ev.Seq}, nil
	})
}

// objectPayload canonicalizes a client payload. Empty means {}.
func objectPayload(raw json.RawMessage) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage(`{}`), true
	}
	if trimmed[0] != '{' {
		return nil, false
	}
	data, err := canon.Canonicalize(trimmed)
	if err != nil {
		return nil, false
	}
	return data, true
}

// ListEventsRequest pages through a session's events.
type ListEventsRequest struct {
	SessionID string `json:"session_id"`
	AfterSeq  int64  `json:"after_seq"`
	Limit     int    `json:"limit"`
}

// ListEventsResult is a page of events in seq order.
type ListEventsResult struct {
	domain.Result
	Events  []domain.SessionEvent `json:"events"`
	NextSeq int64                 `json:"next_seq"`
}

// ListEvents returns the session's events after AfterSeq. KDS clients
// poll with the last seq they saw.
func (e *Engine) ListEvents(ctx context.Context, userID string, req ListEventsRequest) (ListEventsResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}

	out := ListEventsResult{Events: []domain.SessionEvent{}, NextSeq: req.AfterSeq}
	err := e.view(ctx, "list_events", func(ctx context.Context, tx *store.Tx) error {
		s, err := tx.Session(ctx, req.SessionID)
		if missing(err) {
			out.Result = domain.Fail(domain.ReasonSessionNotFound)
			return nil
		}
		if err != nil {
			return err
		}
		if out.Result, err = e.authorizeResult(ctx, userID, s.LocationID); err != nil || !out.OK {
			return err
		}

		evs, err := tx.SessionEvents(ctx, s.ID, req.AfterSeq, limit)
		if err != nil {
			return err
		}
		out.Events = append(out.Events, evs...)
		if n := len(evs); n > 0 {
			out.NextSeq = evs[n-1].Seq
		}
		return nil
	})
	return out, err
}
