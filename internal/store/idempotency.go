package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tableside/internal/domain"
)

// IdempotencyRecord returns the stored record for key. ok is false when
// the key has not been used.
func (t *Tx) IdempotencyRecord(ctx context.Context, key string) (rec domain.IdempotencyRecord, ok bool, err error) {
	var response, createdAt string
	err = t.q.QueryRowContext(ctx, `
		SELECT key, user_id, route, request_hash, response, created_at
		FROM idempotency_keys WHERE key = ?
	`, key).Scan(&rec.Key, &rec.UserID, &rec.Route, &rec.RequestHash, &response, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return domain.IdempotencyRecord{}, false, fmt.Errorf("idempotency record: %w", err)
	}
	rec.Response = []byte(response)
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.IdempotencyRecord{}, false, err
	}
	return rec, true, nil
}

// InsertIdempotencyRecord stores the outcome for a key. A key can only be
// stored once; a second insert fails on the primary key.
func (t *Tx) InsertIdempotencyRecord(ctx context.Context, rec domain.IdempotencyRecord) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO idempotency_keys (key, user_id, route, request_hash, response, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.Key, rec.UserID, rec.Route, rec.RequestHash, string(rec.Response), formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// PurgeIdempotencyRecords deletes records created before cutoff and
// returns how many were removed.
func (t *Tx) PurgeIdempotencyRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := t.q.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge idempotency records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge idempotency records: %w", err)
	}
	return n, nil
}

// PurgeIdempotencyRecords runs Tx.PurgeIdempotencyRecords in its own
// transaction.
func (s *Store) PurgeIdempotencyRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.InTx(ctx, func(tx *Tx) error {
		var err error
		n, err = tx.PurgeIdempotencyRecords(ctx, cutoff)
		return err
	})
	return n, err
}
