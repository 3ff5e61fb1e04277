// Package transition holds the pure guards that decide whether a state
// change on a session, order, item or payment is allowed.
//
// Every guard returns the empty Reason when the change is allowed and the
// failure tag otherwise. Guards never touch storage; callers load the
// entities and apply the change themselves.
package transition

import "github.com/roach88/tableside/internal/domain"

// Allowed is the Reason guards return when a change may proceed.
const Allowed domain.Reason = ""

// CanAddItems reports whether new items may be added to the session.
func CanAddItems(s domain.Session) domain.Reason {
	if !s.Open() {
		return domain.ReasonSessionNotOpen
	}
	return Allowed
}

// CanModifyOrderItem reports whether the item's quantity or notes may be
// edited. Items become read-only once sent to the kitchen.
func CanModifyOrderItem(item domain.OrderItem) domain.Reason {
	if item.Sent() {
		return domain.ReasonItemSentToKitchen
	}
	if item.Voided() {
		return domain.ReasonItemAlreadyVoided
	}
	return Allowed
}

// Advance reports whether an item may move from current to requested.
// Only single forward steps are allowed.
func Advance(current, requested domain.ItemStatus) domain.Reason {
	switch requested {
	case domain.ItemPreparing:
		if current != domain.ItemPending {
			return domain.ReasonItemNotPending
		}
	case domain.ItemReady:
		if current != domain.ItemPreparing {
			return domain.ReasonItemNotPreparing
		}
	case domain.ItemServed:
		if current != domain.ItemReady {
			return domain.ReasonItemNotReady
		}
	default:
		return domain.ReasonInvalidTransition
	}
	return Allowed
}

// CanAdvanceItem is Advance for a stored item. Voided items cannot move.
func CanAdvanceItem(item domain.OrderItem, requested domain.ItemStatus) domain.Reason {
	if item.Voided() {
		return domain.ReasonItemAlreadyVoided
	}
	return Advance(item.Status, requested)
}

// Restarting reports whether the item was refired after reaching the
// kitchen and is waiting for the kitchen to start the remake.
func Restarting(item domain.OrderItem) bool {
	return item.RefiredAt != nil && item.Sent() && item.StartedAt == nil && item.Status != domain.ItemPending
}

// CanStartItem reports whether the kitchen may start the item. A pending
// item moves to preparing. A refired item keeps its status and only has
// its start stamped again.
func CanStartItem(item domain.OrderItem) domain.Reason {
	if item.Voided() {
		return domain.ReasonItemAlreadyVoided
	}
	if Restarting(item) {
		return Allowed
	}
	return Advance(item.Status, domain.ItemPreparing)
}

// CanVoidItem reports whether the item may be voided. Void is single-use.
func CanVoidItem(item domain.OrderItem) domain.Reason {
	if item.Voided() {
		return domain.ReasonItemAlreadyVoided
	}
	return Allowed
}

// CanRefireItem reports whether the item may be refired. Refire is
// single-use and a voided item cannot be refired.
func CanRefireItem(item domain.OrderItem) domain.Reason {
	if item.RefiredAt != nil {
		return domain.ReasonItemAlreadyRefired
	}
	if item.Voided() {
		return domain.ReasonItemAlreadyVoided
	}
	return Allowed
}

// CanFireWave reports whether the order's wave may be sent to the kitchen.
func CanFireWave(order domain.Order) domain.Reason {
	if order.Cancelled() {
		return domain.ReasonOrderCancelled
	}
	if order.Fired() {
		return domain.ReasonWaveAlreadyFired
	}
	return Allowed
}

// CanAddToOrder reports whether items may be added to the order.
// Once a wave is fired the next course goes on a new order.
func CanAddToOrder(order domain.Order) domain.Reason {
	if order.Cancelled() {
		return domain.ReasonOrderCancelled
	}
	if order.Fired() {
		return domain.ReasonOrderAlreadyFired
	}
	return Allowed
}

// CanCancelOrder reports whether the order may be cancelled. Nothing on it
// may have reached the kitchen.
func CanCancelOrder(order domain.Order, items []domain.OrderItem) domain.Reason {
	if order.Cancelled() {
		return domain.ReasonOrderCancelled
	}
	if order.Fired() {
		return domain.ReasonOrderAlreadyFired
	}
	for _, it := range items {
		if it.Sent() {
			return domain.ReasonOrderAlreadyFired
		}
	}
	return Allowed
}

// CanCompletePayment reports whether a payment may be captured.
func CanCompletePayment(p domain.Payment) domain.Reason {
	if p.Status != domain.PaymentPending {
		return domain.ReasonPaymentNotPending
	}
	return Allowed
}

// CanRefundPayment reports whether a payment may be refunded.
func CanRefundPayment(p domain.Payment) domain.Reason {
	if p.Status != domain.PaymentCompleted {
		return domain.ReasonPaymentNotComplete
	}
	return Allowed
}
