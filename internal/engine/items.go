package engine

import (
	"context"
	"time"

	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/store"
	"github.com/roach88/tableside/internal/transition"
)

// AddOrderItemRequest adds a menu item to an order.
type AddOrderItemRequest struct {
	OrderID        string                 `json:"order_id"`
	MenuItemID     string                 `json:"menu_item_id"`
	Quantity       int                    `json:"quantity"`
	Customizations []domain.Customization `json:"customizations,omitempty"`
	Notes          string                 `json:"notes,omitempty"`
}

// ItemResult is the outcome of item-level operations.
type ItemResult struct {
	domain.Result
	OrderItemID string            `json:"order_item_id,omitempty"`
	Status      domain.ItemStatus `json:"status,omitempty"`
	Totals      *domain.Totals    `json:"totals,omitempty"`
}

// AddOrderItem snapshots the menu item's name and price onto a new
// pending line and recomputes the order totals.
func (e *Engine) AddOrderItem(ctx context.Context, who Requester, req AddOrderItemRequest) (Reply[ItemResult], error) {
	return mutate(ctx, e, who, "add_order_item", req, func(ctx context.Context, tx *store.Tx) (ItemResult, error) {
		qty := req.Quantity
		if qty < 0 {
			return ItemResult{Result: domain.Failf(domain.ReasonBadRequest, "quantity must not be negative")}, nil
		}
		if qty == 0 {
			qty = 1
		}
		if req.MenuItemID == "" {
			return ItemResult{Result: domain.Failf(domain.ReasonBadRequest, "menu_item_id is required")}, nil
		}
		for _, c := range req.Customizations {
			if c.Price.IsNegative() {
				return ItemResult{Result: domain.Failf(domain.ReasonBadRequest, "customization price must not be negative")}, nil
			}
		}

		o, res, err := e.loadOrder(ctx, tx, who.UserID, req.OrderID)
		if err != nil || !res.OK {
			return ItemResult{Result: res}, err
		}
		s, ok, err := orderSession(ctx, tx, o)
		if err != nil {
			return ItemResult{}, err
		}
		if ok {
			if res := requireOpen(s); !res.OK {
				return ItemResult{Result: res}, nil
			}
		}
		if r := transition.CanAddToOrder(o); r != transition.Allowed {
			return ItemResult{Result: domain.Fail(r)}, nil
		}

		mi, err := tx.MenuItem(ctx, req.MenuItemID)
		if missing(err) || (err == nil && (mi.LocationID != o.LocationID || mi.Inactive)) {
			return ItemResult{Result: domain.Fail(domain.ReasonItemNotFound)}, nil
		}
		if err != nil {
			return ItemResult{}, err
		}

		it := domain.OrderItem{
			ID:             e.ids.NewID(),
			OrderID:        o.ID,
			MenuItemID:     mi.ID,
			Name:           mi.Name,
			Price:          mi.Price,
			Quantity:       qty,
			Customizations: req.Customizations,
			Notes:          req.Notes,
			Status:         domain.ItemPending,
			CreatedAt:      e.clock.Now(),
		}
		it.Reprice()
		if err := tx.InsertOrderItem(ctx, it); err != nil {
			return ItemResult{}, err
		}
		if err := e.refreshOrder(ctx, tx, &o); err != nil {
			return ItemResult{}, err
		}

		return ItemResult{Result: domain.Success(), OrderItemID: it.ID, Status: it.Status, Totals: totalsOf(o)}, nil
	})
}

// UpdateOrderItemRequest edits an unsent item. Nil fields are unchanged.
type UpdateOrderItemRequest struct {
	OrderItemID string  `json:"order_item_id"`
	Quantity    *int    `json:"quantity,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// UpdateOrderItem changes an item's quantity or notes until it is sent to
// the kitchen.
func (e *Engine) UpdateOrderItem(ctx context.Context, who Requester, req UpdateOrderItemRequest) (Reply[ItemResult], error) {
	return mutate(ctx, e, who, "update_order_item", req, func(ctx context.Context, tx *store.Tx) (ItemResult, error) {
		if req.Quantity != nil && *req.Quantity < 1 {
			return ItemResult{Result: domain.Failf(domain.ReasonBadRequest, "quantity must be at least 1")}, nil
		}

		it, o, res, err := e.loadItem(ctx, tx, req.OrderItemID)
		if err != nil || !res.OK {
			return ItemResult{Result: res}, err
		}
		if r := transition.CanModifyOrderItem(it); r != transition.Allowed {
			return ItemResult{Result: domain.Fail(r), OrderItemID: it.ID, Status: it.Status}, nil
		}
		if res, err := e.authorizeResult(ctx, who.UserID, o.LocationID); err != nil || !res.OK {
			return ItemResult{Result: res}, err
		}
		s, ok, err := orderSession(ctx, tx, o)
		if err != nil {
			return ItemResult{}, err
		}
		if ok {
			if res := requireOpen(s); !res.OK {
				return ItemResult{Result: res}, nil
			}
		}

		if req.Quantity != nil {
			it.Quantity = *req.Quantity
		}
		if req.Notes != nil {
			it.Notes = *req.Notes
		}
		it.Reprice()
		if err := tx.UpdateOrderItem(ctx, it); err != nil {
			return ItemResult{}, err
		}
		if err := e.refreshOrder(ctx, tx, &o); err != nil {
			return ItemResult{}, err
		}
		return ItemResult{Result: domain.Success(), OrderItemID: it.ID, Status: it.Status, Totals: totalsOf(o)}, nil
	})
}

// ItemActionRequest names an item for a kitchen or correction action.
type ItemActionRequest struct {
	OrderItemID string             `json:"order_item_id"`
	Reason      string             `json:"reason,omitempty"`
	Source      domain.EventSource `json:"source,omitempty"`
}

// itemStep describes one kitchen or correction action on an item.
type itemStep struct {
	route   string
	guard   func(domain.OrderItem) domain.Reason
	apply   func(it *domain.OrderItem, reason string, now time.Time)
	event   string
	refresh bool
}

var (
	startStep = itemStep{
		route: "mark_item_preparing",
		guard: transition.CanStartItem,
		apply: func(it *domain.OrderItem, _ string, now time.Time) {
			if it.Status == domain.ItemPending {
				it.Status = domain.ItemPreparing
			}
			it.StartedAt = &now
		},
	}
	readyStep = itemStep{
		route: "mark_item_ready",
		guard: func(it domain.OrderItem) domain.Reason { return transition.CanAdvanceItem(it, domain.ItemReady) },
		apply: func(it *domain.OrderItem, _ string, now time.Time) {
			it.Status = domain.ItemReady
			it.ReadyAt = &now
		},
		event: domain.EventItemReady,
	}
	serveStep = itemStep{
		route: "mark_item_served",
		guard: func(it domain.OrderItem) domain.Reason { return transition.CanAdvanceItem(it, domain.ItemServed) },
		apply: func(it *domain.OrderItem, _ string, now time.Time) {
			it.Status = domain.ItemServed
			it.ServedAt = &now
		},
		event: domain.EventItemServed,
	}
	voidStep = itemStep{
		route: "void_item",
		guard: transition.CanVoidItem,
		apply: func(it *domain.OrderItem, reason string, now time.Time) {
			it.VoidedAt = &now
			it.VoidReason = reason
		},
		event:   domain.EventItemVoided,
		refresh: true,
	}
	// Refiring an item the kitchen already received sends it again and
	// waits for a fresh start. The status ladder is untouched.
	refireStep = itemStep{
		route: "refire_item",
		guard: transition.CanRefireItem,
		apply: func(it *domain.OrderItem, reason string, now time.Time) {
			it.RefiredAt = &now
			it.RefireReason = reason
			if it.Sent() {
				it.SentToKitchenAt = &now
				it.StartedAt = nil
			}
		},
		event: domain.EventItemRefired,
	}
)

// MarkItemPreparing records that the kitchen started the item. For an
// item refired after it reached the kitchen, only the start is stamped
// again. No event is emitted.
func (e *Engine) MarkItemPreparing(ctx context.Context, who Requester, req ItemActionRequest) (Reply[ItemResult], error) {
	return e.itemAction(ctx, who, req, startStep)
}

// MarkItemReady moves a preparing item to ready.
func (e *Engine) MarkItemReady(ctx context.Context, who Requester, req ItemActionRequest) (Reply[ItemResult], error) {
	return e.itemAction(ctx, who, req, readyStep)
}

// MarkItemServed moves a ready item to served.
func (e *Engine) MarkItemServed(ctx context.Context, who Requester, req ItemActionRequest) (Reply[ItemResult], error) {
	return e.itemAction(ctx, who, req, serveStep)
}

// VoidItem voids an item at any stage. Void is single-use and removes the
// item from the order totals.
func (e *Engine) VoidItem(ctx context.Context, who Requester, req ItemActionRequest) (Reply[ItemResult], error) {
	return e.itemAction(ctx, who, req, voidStep)
}

// RefireItem asks the kitchen to remake an item. Refire is single-use.
func (e *Engine) RefireItem(ctx context.Context, who Requester, req ItemActionRequest) (Reply[ItemResult], error) {
	return e.itemAction(ctx, who, req, refireStep)
}

// itemAction is load, guard, authorize, write, then event.
func (e *Engine) itemAction(ctx context.Context, who Requester, req ItemActionRequest, step itemStep) (Reply[ItemResult], error) {
	return mutate(ctx, e, who, step.route, req, func(ctx context.Context, tx *store.Tx) (ItemResult, error) {
		if req.Source != "" && !req.Source.Valid() {
			return ItemResult{Result: domain.Failf(domain.ReasonBadRequest, "unknown source")}, nil
		}
		it, o, res, err := e.loadItem(ctx, tx, req.OrderItemID)
		if err != nil || !res.OK {
			return ItemResult{Result: res}, err
		}
		if r := step.guard(it); r != transition.Allowed {
			return ItemResult{Result: domain.Fail(r), OrderItemID: it.ID, Status: it.Status}, nil
		}
		if res, err := e.authorizeResult(ctx, who.UserID, o.LocationID); err != nil || !res.OK {
			return ItemResult{Result: res}, err
		}

		now := e.clock.Now()
		step.apply(&it, req.Reason, now)
		if err := tx.UpdateOrderItem(ctx, it); err != nil {
			return ItemResult{}, err
		}

		out := ItemResult{Result: domain.Success(), OrderItemID: it.ID, Status: it.Status}
		if step.refresh {
			if err := e.refreshOrder(ctx, tx, &o); err != nil {
				return ItemResult{}, err
			}
			out.Totals = totalsOf(o)
		}

		if step.event != "" && o.SessionID != nil {
			payload := map[string]any{
				"itemId":   it.ID,
				"orderId":  o.ID,
				"name":     it.Name,
				"quantity": it.Quantity,
			}
			if req.Reason != "" {
				payload["reason"] = req.Reason
			}
			if _, err := e.record(ctx, tx, *o.SessionID, o.LocationID, step.event, req.Source, payload); err != nil {
				return ItemResult{}, err
			}
		}

		e.logger.Debug("item updated", "route", step.route, "item_id", it.ID, "status", it.Status)
		return out, nil
	})
}

// loadItem loads an item and its order. It does not authorize.
func (e *Engine) loadItem(ctx context.Context, tx *store.Tx, itemID string) (domain.OrderItem, domain.Order, domain.Result, error) {
	if itemID == "" {
		return domain.OrderItem{}, domain.Order{}, domain.Failf(domain.ReasonBadRequest, "order_item_id is required"), nil
	}
	it, err := tx.OrderItem(ctx, itemID)
	if missing(err) {
		return domain.OrderItem{}, domain.Order{}, domain.Fail(domain.ReasonNotFound), nil
	}
	if err != nil {
		return domain.OrderItem{}, domain.Order{}, domain.Result{}, err
	}
	o, err := tx.Order(ctx, it.OrderID)
	if err != nil {
		return domain.OrderItem{}, domain.Order{}, domain.Result{}, err
	}
	return it, o, domain.Success(), nil
}
