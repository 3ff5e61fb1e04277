package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tableside/internal/domain"
)

const eventColumns = `seq, id, session_id, location_id, type, source, payload, created_at`

func scanEvent(row rowScanner) (domain.SessionEvent, error) {
	var (
		e                  domain.SessionEvent
		payload, createdAt string
	)
	if err := row.Scan(&e.Seq, &e.ID, &e.SessionID, &e.LocationID, &e.Type, &e.Source, &payload, &createdAt); err != nil {
		return domain.SessionEvent{}, err
	}
	e.Payload = []byte(payload)
	var err error
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.SessionEvent{}, err
	}
	return e, nil
}

// AppendEvent writes e and sets e.Seq to the store-assigned sequence number.
func (t *Tx) AppendEvent(ctx context.Context, e *domain.SessionEvent) error {
	res, err := t.q.ExecContext(ctx, `
		INSERT INTO session_events (id, session_id, location_id, type, source, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SessionID, e.LocationID, e.Type, e.Source, string(e.Payload), formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.Type, err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append event %s: %w", e.Type, err)
	}
	e.Seq = seq
	return nil
}

func (t *Tx) queryEvents(ctx context.Context, query string, args ...any) ([]domain.SessionEvent, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []domain.SessionEvent{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// SessionEvents returns up to limit events for the session with seq
// greater than afterSeq, in seq order.
func (t *Tx) SessionEvents(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.SessionEvent, error) {
	return t.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM session_events
		WHERE session_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, sessionID, afterSeq, limit)
}

// EventsAfter returns up to limit events across all sessions with seq
// greater than afterSeq, in seq order.
func (t *Tx) EventsAfter(ctx context.Context, afterSeq int64, limit int) ([]domain.SessionEvent, error) {
	return t.queryEvents(ctx, `
		SELECT `+eventColumns+` FROM session_events
		WHERE seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, afterSeq, limit)
}

// RelayCursor returns the last delivered seq for the named relay, or 0.
func (t *Tx) RelayCursor(ctx context.Context, name string) (int64, error) {
	var seq int64
	err := t.q.QueryRowContext(ctx, `SELECT seq FROM relay_cursors WHERE name = ?`, name).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("relay cursor %s: %w", name, err)
	}
	return seq, nil
}

// SaveRelayCursor records the last delivered seq for the named relay.
func (t *Tx) SaveRelayCursor(ctx context.Context, name string, seq int64) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO relay_cursors (name, seq) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET seq = excluded.seq
	`, name, seq)
	if err != nil {
		return fmt.Errorf("save relay cursor %s: %w", name, err)
	}
	return nil
}
