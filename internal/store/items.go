package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/tableside/internal/domain"
)

const itemColumns = `id, order_id, menu_item_id, name, price, quantity, customizations, customizations_total,
	line_total, notes, status, created_at, sent_to_kitchen_at, started_at, ready_at, served_at,
	voided_at, void_reason, refired_at, refire_reason`

func scanItem(row rowScanner) (domain.OrderItem, error) {
	var (
		it                           domain.OrderItem
		customizations, createdAt    string
		sent, started, ready, served sql.NullString
		voided, refired              sql.NullString
	)
	err := row.Scan(
		&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Price, &it.Quantity, &customizations, &it.CustomizationsTotal,
		&it.LineTotal, &it.Notes, &it.Status, &createdAt, &sent, &started, &ready, &served,
		&voided, &it.VoidReason, &refired, &it.RefireReason,
	)
	if err != nil {
		return domain.OrderItem{}, err
	}
	if err := json.Unmarshal([]byte(customizations), &it.Customizations); err != nil {
		return domain.OrderItem{}, fmt.Errorf("decode customizations: %w", err)
	}
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.OrderItem{}, err
	}
	stamps := []struct {
		src sql.NullString
		dst **time.Time
	}{
		{sent, &it.SentToKitchenAt},
		{started, &it.StartedAt},
		{ready, &it.ReadyAt},
		{served, &it.ServedAt},
		{voided, &it.VoidedAt},
		{refired, &it.RefiredAt},
	}
	for _, st := range stamps {
		if *st.dst, err = parseNullTime(st.src); err != nil {
			return domain.OrderItem{}, err
		}
	}
	return it, nil
}

func (t *Tx) queryItems(ctx context.Context, what, query string, args ...any) ([]domain.OrderItem, error) {
	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return items, nil
}

// OrderItem returns the item with id, or ErrNotFound.
func (t *Tx) OrderItem(ctx context.Context, id string) (domain.OrderItem, error) {
	it, err := scanItem(t.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM order_items WHERE id = ?`, id))
	if err != nil {
		return domain.OrderItem{}, notFound(err, "order item "+id)
	}
	return it, nil
}

// ItemsForOrder returns the order's items in creation order.
func (t *Tx) ItemsForOrder(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	return t.queryItems(ctx, "order items", `
		SELECT `+itemColumns+` FROM order_items WHERE order_id = ? ORDER BY created_at ASC, id ASC
	`, orderID)
}

// ItemsForSession returns the items of every order in the session.
func (t *Tx) ItemsForSession(ctx context.Context, sessionID string) ([]domain.OrderItem, error) {
	return t.queryItems(ctx, "session items", `
		SELECT `+prefixed("i", itemColumns)+`
		FROM order_items i
		JOIN orders o ON o.id = i.order_id
		WHERE o.session_id = ?
		ORDER BY o.wave ASC, i.created_at ASC, i.id ASC
	`, sessionID)
}

// InsertOrderItem writes a new item.
func (t *Tx) InsertOrderItem(ctx context.Context, it domain.OrderItem) error {
	customizations, err := encodeCustomizations(it.Customizations)
	if err != nil {
		return fmt.Errorf("insert order item %s: %w", it.ID, err)
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO order_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		it.ID, it.OrderID, it.MenuItemID, it.Name, it.Price, it.Quantity, customizations, it.CustomizationsTotal,
		it.LineTotal, it.Notes, it.Status, formatTime(it.CreatedAt),
		nullableTime(it.SentToKitchenAt), nullableTime(it.StartedAt), nullableTime(it.ReadyAt), nullableTime(it.ServedAt),
		nullableTime(it.VoidedAt), it.VoidReason, nullableTime(it.RefiredAt), it.RefireReason,
	)
	if err != nil {
		return fmt.Errorf("insert order item %s: %w", it.ID, err)
	}
	return nil
}

// UpdateOrderItem persists every mutable field of the item.
func (t *Tx) UpdateOrderItem(ctx context.Context, it domain.OrderItem) error {
	customizations, err := encodeCustomizations(it.Customizations)
	if err != nil {
		return fmt.Errorf("update order item %s: %w", it.ID, err)
	}
	_, err = t.q.ExecContext(ctx, `
		UPDATE order_items SET
			quantity = ?, customizations = ?, customizations_total = ?, line_total = ?, notes = ?, status = ?,
			sent_to_kitchen_at = ?, started_at = ?, ready_at = ?, served_at = ?,
			voided_at = ?, void_reason = ?, refired_at = ?, refire_reason = ?
		WHERE id = ?
	`,
		it.Quantity, customizations, it.CustomizationsTotal, it.LineTotal, it.Notes, it.Status,
		nullableTime(it.SentToKitchenAt), nullableTime(it.StartedAt), nullableTime(it.ReadyAt), nullableTime(it.ServedAt),
		nullableTime(it.VoidedAt), it.VoidReason, nullableTime(it.RefiredAt), it.RefireReason,
		it.ID,
	)
	if err != nil {
		return fmt.Errorf("update order item %s: %w", it.ID, err)
	}
	return nil
}

// SendUnsentItems stamps sent_to_kitchen_at on the order's unsent, unvoided
// items and returns their ids. Items already sent are left untouched.
func (t *Tx) SendUnsentItems(ctx context.Context, orderID string, at time.Time) ([]string, error) {
	rows, err := t.q.QueryContext(ctx, `
		SELECT id FROM order_items
		WHERE order_id = ? AND sent_to_kitchen_at IS NULL AND voided_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query unsent items: %w", err)
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan unsent item: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsent items: %w", err)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	_, err = t.q.ExecContext(ctx, `
		UPDATE order_items SET sent_to_kitchen_at = ?
		WHERE order_id = ? AND sent_to_kitchen_at IS NULL AND voided_at IS NULL
	`, formatTime(at), orderID)
	if err != nil {
		return nil, fmt.Errorf("stamp unsent items: %w", err)
	}
	return ids, nil
}

func encodeCustomizations(cs []domain.Customization) (string, error) {
	if len(cs) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(cs)
	if err != nil {
		return "", fmt.Errorf("encode customizations: %w", err)
	}
	return string(data), nil
}
