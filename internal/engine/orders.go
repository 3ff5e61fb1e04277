package engine

import (
	"context"

	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/store"
	"github.com/roach88/tableside/internal/transition"
)

// OpenOrderRequest opens a ticket. With a session the order joins it as
// the next wave; without one it is a counter order at LocationID.
type OpenOrderRequest struct {
	SessionID  string           `json:"session_id,omitempty"`
	LocationID string           `json:"location_id,omitempty"`
	OrderType  domain.OrderType `json:"order_type,omitempty"`
	Station    string           `json:"station,omitempty"`
}

// OrderResult is the outcome of order-level operations.
type OrderResult struct {
	domain.Result
	OrderID string             `json:"order_id,omitempty"`
	Wave    int                `json:"wave,omitempty"`
	Status  domain.OrderStatus `json:"status,omitempty"`
	Totals  *domain.Totals     `json:"totals,omitempty"`
}

// OpenOrder creates an order. Orders in a session are numbered by wave:
// the first is wave 1, the next wave 2 and so on.
func (e *Engine) OpenOrder(ctx context.Context, who Requester, req OpenOrderRequest) (Reply[OrderResult], error) {
	return mutate(ctx, e, who, "open_order", req, func(ctx context.Context, tx *store.Tx) (OrderResult, error) {
		typ := req.OrderType
		if typ != "" && !typ.Valid() {
			return OrderResult{Result: domain.Failf(domain.ReasonBadRequest, "unknown order_type")}, nil
		}

		var (
			sessionID  *string
			locationID = req.LocationID
			wave       int
		)
		if req.SessionID != "" {
			s, err := tx.Session(ctx, req.SessionID)
			if missing(err) || (err == nil && locationID != "" && s.LocationID != locationID) {
				return OrderResult{Result: domain.Fail(domain.ReasonSessionNotFound)}, nil
			}
			if err != nil {
				return OrderResult{}, err
			}
			locationID = s.LocationID
			sessionID = &s.ID

			deny, err := e.authorize(ctx, who.UserID, locationID, domain.ReasonUnauthorized)
			if err != nil {
				return OrderResult{}, err
			}
			if deny != "" {
				return OrderResult{Result: domain.Fail(deny)}, nil
			}
			if res := requireOpen(s); !res.OK {
				return OrderResult{Result: res}, nil
			}
			if wave, err = tx.NextWave(ctx, s.ID); err != nil {
				return OrderResult{}, err
			}
			if typ == "" {
				typ = domain.OrderDineIn
			}
		} else {
			if locationID == "" {
				return OrderResult{Result: domain.Failf(domain.ReasonBadRequest, "session_id or location_id is required")}, nil
			}
			deny, err := e.authorize(ctx, who.UserID, locationID, domain.ReasonUnauthorized)
			if err != nil {
				return OrderResult{}, err
			}
			if deny != "" {
				return OrderResult{Result: domain.Fail(deny)}, nil
			}
			if typ == "" {
				typ = domain.OrderTakeout
			}
		}

		loc, err := tx.Location(ctx, locationID)
		if missing(err) {
			return OrderResult{Result: domain.Fail(domain.ReasonLocationNotFound)}, nil
		}
		if err != nil {
			return OrderResult{}, err
		}

		o := domain.Order{
			ID:                e.ids.NewID(),
			SessionID:         sessionID,
			LocationID:        locationID,
			Status:            domain.OrderOpen,
			Type:              typ,
			Station:           req.Station,
			Wave:              wave,
			TaxRate:           loc.TaxRate,
			ServiceChargeRate: loc.ServiceChargeRate,
			CreatedAt:         e.clock.Now(),
		}
		o.Recalculate(nil, nil)
		if err := tx.InsertOrder(ctx, o); err != nil {
			return OrderResult{}, err
		}

		e.logger.Debug("order opened", "order_id", o.ID, "wave", o.Wave)
		return OrderResult{Result: domain.Success(), OrderID: o.ID, Wave: o.Wave, Status: o.Status, Totals: totalsOf(o)}, nil
	})
}

// CancelOrderRequest cancels an order that never reached the kitchen.
type CancelOrderRequest struct {
	OrderID string             `json:"order_id"`
	Reason  string             `json:"reason,omitempty"`
	Source  domain.EventSource `json:"source,omitempty"`
}

// CancelOrder cancels an order. Cancelled orders drop out of the session
// balance and close checks.
func (e *Engine) CancelOrder(ctx context.Context, who Requester, req CancelOrderRequest) (Reply[OrderResult], error) {
	return mutate(ctx, e, who, "cancel_order", req, func(ctx context.Context, tx *store.Tx) (OrderResult, error) {
		if req.Source != "" && !req.Source.Valid() {
			return OrderResult{Result: domain.Failf(domain.ReasonBadRequest, "unknown source")}, nil
		}
		o, res, err := e.loadOrder(ctx, tx, who.UserID, req.OrderID)
		if err != nil || !res.OK {
			return OrderResult{Result: res}, err
		}

		items, err := tx.ItemsForOrder(ctx, o.ID)
		if err != nil {
			return OrderResult{}, err
		}
		if r := transition.CanCancelOrder(o, items); r != transition.Allowed {
			return OrderResult{Result: domain.Fail(r), OrderID: o.ID}, nil
		}

		now := e.clock.Now()
		o.Status = domain.OrderCancelled
		o.CancelledAt = &now
		if err := tx.UpdateOrderStatus(ctx, o); err != nil {
			return OrderResult{}, err
		}

		if o.SessionID != nil {
			_, err = e.record(ctx, tx, *o.SessionID, o.LocationID, domain.EventOrderCancelled, req.Source, map[string]any{
				"orderId": o.ID,
				"wave":    o.Wave,
				"reason":  req.Reason,
			})
			if err != nil {
				return OrderResult{}, err
			}
		}
		return OrderResult{Result: domain.Success(), OrderID: o.ID, Wave: o.Wave, Status: o.Status, Totals: totalsOf(o)}, nil
	})
}

// loadOrder loads an order and authorizes the caller at its location.
func (e *Engine) loadOrder(ctx context.Context, tx *store.Tx, userID, orderID string) (domain.Order, domain.Result, error) {
	if orderID == "" {
		return domain.Order{}, domain.Failf(domain.ReasonBadRequest, "order_id is required"), nil
	}
	o, err := tx.Order(ctx, orderID)
	if missing(err) {
		return domain.Order{}, domain.Fail(domain.ReasonOrderNotFound), nil
	}
	if err != nil {
		return domain.Order{}, domain.Result{}, err
	}
	deny, err := e.authorize(ctx, userID, o.LocationID, domain.ReasonUnauthorized)
	if err != nil {
		return domain.Order{}, domain.Result{}, err
	}
	if deny != "" {
		return domain.Order{}, domain.Fail(deny), nil
	}
	return o, domain.Success(), nil
}

// orderSession returns the order's session, or ok=false for a counter
// order.
func orderSession(ctx context.Context, tx *store.Tx, o domain.Order) (s domain.Session, ok bool, err error) {
	if o.SessionID == nil {
		return domain.Session{}, false, nil
	}
	s, err = tx.Session(ctx, *o.SessionID)
	if err != nil {
		return domain.Session{}, false, err
	}
	return s, true, nil
}
