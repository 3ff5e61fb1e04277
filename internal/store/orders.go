package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tableside/internal/domain"
)

const orderColumns = `id, session_id, location_id, status, order_type, station, wave, fired_at,
	tax_rate, service_charge_rate, subtotal, tax, service_charge, tip, discount, total,
	payment_status, created_at, completed_at, cancelled_at`

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                                 domain.Order
		sessionID                         sql.NullString
		firedAt, completedAt, cancelledAt sql.NullString
		createdAt                         string
	)
	err := row.Scan(
		&o.ID, &sessionID, &o.LocationID, &o.Status, &o.Type, &o.Station, &o.Wave, &firedAt,
		&o.TaxRate, &o.ServiceChargeRate, &o.Subtotal, &o.Tax, &o.ServiceCharge, &o.Tip, &o.Discount, &o.Total,
		&o.PaymentStatus, &createdAt, &completedAt, &cancelledAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.SessionID = stringPtr(sessionID)
	if o.FiredAt, err = parseNullTime(firedAt); err != nil {
		return domain.Order{}, err
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Order{}, err
	}
	if o.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return domain.Order{}, err
	}
	if o.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (t *Tx) queryOrders(ctx context.Context, what, query string, args ...any) ([]domain.Order, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return orders, nil
}

// Order returns the order with id, or ErrNotFound.
func (t *Tx) Order(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(t.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		return domain.Order{}, notFound(err, "order "+id)
	}
	return o, nil
}

// OrderByWave returns the session's order for a wave, or ErrNotFound.
func (t *Tx) OrderByWave(ctx context.Context, sessionID string, wave int) (domain.Order, error) {
	o, err := scanOrder(t.q.QueryRowContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE session_id = ? AND wave = ?
	`, sessionID, wave))
	if err != nil {
		return domain.Order{}, notFound(err, fmt.Sprintf("order for session %s wave %d", sessionID, wave))
	}
	return o, nil
}

// OrdersForSession returns the session's orders in wave order.
func (t *Tx) OrdersForSession(ctx context.Context, sessionID string) ([]domain.Order, error) {
	return t.queryOrders(ctx, "session orders", `
		SELECT `+orderColumns+` FROM orders WHERE session_id = ? ORDER BY wave ASC, id ASC
	`, sessionID)
}

// NextWave returns one more than the session's highest wave number.
func (t *Tx) NextWave(ctx context.Context, sessionID string) (int, error) {
	var max sql.NullInt64
	err := t.q.QueryRowContext(ctx, `SELECT MAX(wave) FROM orders WHERE session_id = ?`, sessionID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("next wave: %w", err)
	}
	return int(max.Int64) + 1, nil
}

// InsertOrder writes a new order.
func (t *Tx) InsertOrder(ctx context.Context, o domain.Order) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, nullableString(o.SessionID), o.LocationID, o.Status, o.Type, o.Station, o.Wave, nullableTime(o.FiredAt),
		o.TaxRate, o.ServiceChargeRate, o.Subtotal, o.Tax, o.ServiceCharge, o.Tip, o.Discount, o.Total,
		o.PaymentStatus, formatTime(o.CreatedAt), nullableTime(o.CompletedAt), nullableTime(o.CancelledAt),
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

// UpdateOrderTotals persists the order's monetary fields.
func (t *Tx) UpdateOrderTotals(ctx context.Context, o domain.Order) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE orders SET subtotal = ?, tax = ?, service_charge = ?, tip = ?, discount = ?, total = ?, payment_status = ?
		WHERE id = ?
	`, o.Subtotal, o.Tax, o.ServiceCharge, o.Tip, o.Discount, o.Total, o.PaymentStatus, o.ID)
	if err != nil {
		return fmt.Errorf("update order totals %s: %w", o.ID, err)
	}
	return nil
}

// MarkOrderFired stamps fired_at if it is unset. It returns false when the
// order was already fired.
func (t *Tx) MarkOrderFired(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE orders SET fired_at = ? WHERE id = ? AND fired_at IS NULL
	`, formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("mark order fired %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark order fired %s: %w", id, err)
	}
	return n == 1, nil
}

// UpdateOrderStatus persists the order's status and its terminal timestamps.
func (t *Tx) UpdateOrderStatus(ctx context.Context, o domain.Order) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE orders SET status = ?, completed_at = ?, cancelled_at = ? WHERE id = ?
	`, o.Status, nullableTime(o.CompletedAt), nullableTime(o.CancelledAt), o.ID)
	if err != nil {
		return fmt.Errorf("update order status %s: %w", o.ID, err)
	}
	return nil
}
