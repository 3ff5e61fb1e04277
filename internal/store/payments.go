package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tableside/internal/domain"
)

const paymentColumns = `id, order_id, session_id, location_id, amount, tip_amount, status, method,
	provider, provider_ref, created_at, paid_at, refunded_at`

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p                domain.Payment
		sessionID        sql.NullString
		createdAt        string
		paidAt, refunded sql.NullString
	)
	err := row.Scan(
		&p.ID, &p.OrderID, &sessionID, &p.LocationID, &p.Amount, &p.TipAmount, &p.Status, &p.Method,
		&p.Provider, &p.ProviderRef, &createdAt, &paidAt, &refunded,
	)
	if err != nil {
		return domain.Payment{}, err
	}
	p.SessionID = stringPtr(sessionID)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Payment{}, err
	}
	if p.PaidAt, err = parseNullTime(paidAt); err != nil {
		return domain.Payment{}, err
	}
	if p.RefundedAt, err = parseNullTime(refunded); err != nil {
		return domain.Payment{}, err
	}
	return p, nil
}

func (t *Tx) queryPayments(ctx context.Context, what, query string, args ...any) ([]domain.Payment, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return payments, nil
}

// Payment returns the payment with id, or ErrNotFound.
func (t *Tx) Payment(ctx context.Context, id string) (domain.Payment, error) {
	p, err := scanPayment(t.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if err != nil {
		return domain.Payment{}, notFound(err, "payment "+id)
	}
	return p, nil
}

// PaymentsForOrder returns the order's payments in creation order.
func (t *Tx) PaymentsForOrder(ctx context.Context, orderID string) ([]domain.Payment, error) {
	return t.queryPayments(ctx, "order payments", `
		SELECT `+paymentColumns+` FROM payments WHERE order_id = ? ORDER BY created_at ASC, id ASC
	`, orderID)
}

// PaymentsForSession returns the payments against every order in the
// session, including those recorded without a session id.
func (t *Tx) PaymentsForSession(ctx context.Context, sessionID string) ([]domain.Payment, error) {
	return t.queryPayments(ctx, "session payments", `
		SELECT `+prefixed("p", paymentColumns)+`
		FROM payments p
		JOIN orders o ON o.id = p.order_id
		WHERE o.session_id = ?
		ORDER BY p.created_at ASC, p.id ASC
	`, sessionID)
}

// InsertPayment writes a new payment.
func (t *Tx) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.OrderID, nullableString(p.SessionID), p.LocationID, p.Amount, p.TipAmount, p.Status, p.Method,
		p.Provider, p.ProviderRef, formatTime(p.CreatedAt), nullableTime(p.PaidAt), nullableTime(p.RefundedAt),
	)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.ID, err)
	}
	return nil
}

// UpdatePaymentStatus persists the payment's status and timestamps.
func (t *Tx) UpdatePaymentStatus(ctx context.Context, p domain.Payment) error {
	_, err := t.q.ExecContext(ctx, `
		UPDATE payments SET status = ?, paid_at = ?, refunded_at = ? WHERE id = ?
	`, p.Status, nullableTime(p.PaidAt), nullableTime(p.RefundedAt), p.ID)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", p.ID, err)
	}
	return nil
}
