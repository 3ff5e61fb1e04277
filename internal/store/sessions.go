package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tableside/internal/domain"
)

const sessionColumns = `id, location_id, table_id, server_id, status, guest_count, opened_at, closed_at`

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		s        domain.Session
		openedAt string
		closedAt sql.NullString
	)
	if err := row.Scan(&s.ID, &s.LocationID, &s.TableID, &s.ServerID, &s.Status, &s.GuestCount, &openedAt, &closedAt); err != nil {
		return domain.Session{}, err
	}
	var err error
	if s.OpenedAt, err = parseTime(openedAt); err != nil {
		return domain.Session{}, err
	}
	if s.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// Session returns the session with id, or ErrNotFound.
func (t *Tx) Session(ctx context.Context, id string) (domain.Session, error) {
	row := t.q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err != nil {
		return domain.Session{}, notFound(err, "session "+id)
	}
	return s, nil
}

// OpenSessionForTable returns the open session at a table. ok is false
// when the table has none.
func (t *Tx) OpenSessionForTable(ctx context.Context, tableID string) (s domain.Session, ok bool, err error) {
	row := t.q.QueryRowContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions WHERE table_id = ? AND status = 'open'
	`, tableID)
	s, err = scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("open session for table %s: %w", tableID, err)
	}
	return s, true, nil
}

// InsertSession writes a new session. The partial unique index rejects a
// second open session at the same table.
func (t *Tx) InsertSession(ctx context.Context, s domain.Session) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.LocationID, s.TableID, s.ServerID, s.Status, s.GuestCount, formatTime(s.OpenedAt), nullableTime(s.ClosedAt))
	if err != nil {
		return fmt.Errorf("insert session %s: %w", s.ID, err)
	}
	return nil
}

// CloseSession marks an open session closed. It returns false when the
// session was not open.
func (t *Tx) CloseSession(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE sessions SET status = 'closed', closed_at = ?
		WHERE id = ? AND status = 'open'
	`, formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("close session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("close session %s: %w", id, err)
	}
	return n == 1, nil
}
