package transition

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/tableside/internal/domain"
)

var stamp = time.Date(2026, 1, 15, 19, 0, 0, 0, time.UTC)

func TestCanAddItems(t *testing.T) {
	assert.Equal(t, Allowed, CanAddItems(domain.Session{Status: domain.SessionOpen}))
	assert.Equal(t, domain.ReasonSessionNotOpen, CanAddItems(domain.Session{Status: domain.SessionClosed}))
}

func TestCanModifyOrderItem(t *testing.T) {
	assert.Equal(t, Allowed, CanModifyOrderItem(domain.OrderItem{Status: domain.ItemPending}))
	assert.Equal(t, domain.ReasonItemSentToKitchen,
		CanModifyOrderItem(domain.OrderItem{Status: domain.ItemPending, SentToKitchenAt: &stamp}))
	assert.Equal(t, domain.ReasonItemAlreadyVoided,
		CanModifyOrderItem(domain.OrderItem{Status: domain.ItemPending, VoidedAt: &stamp}))
}

// TestAdvance_Exhaustive checks every (current, requested) pair: exactly the
// three single forward steps are allowed.
func TestAdvance_Exhaustive(t *testing.T) {
	statuses := []domain.ItemStatus{domain.ItemPending, domain.ItemPreparing, domain.ItemReady, domain.ItemServed}
	failure := map[domain.ItemStatus]domain.Reason{
		domain.ItemPending:   domain.ReasonInvalidTransition,
		domain.ItemPreparing: domain.ReasonItemNotPending,
		domain.ItemReady:     domain.ReasonItemNotPreparing,
		domain.ItemServed:    domain.ReasonItemNotReady,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			t.Run(fmt.Sprintf("%s_to_%s", from, to), func(t *testing.T) {
				got := Advance(from, to)
				if to.Rank() == from.Rank()+1 {
					assert.Equal(t, Allowed, got)
					return
				}
				assert.Equal(t, failure[to], got)
			})
		}
	}
}

func TestAdvance_UnknownStatus(t *testing.T) {
	assert.Equal(t, domain.ReasonInvalidTransition, Advance(domain.ItemPending, "cooking"))
}

func TestCanAdvanceItem_Voided(t *testing.T) {
	item := domain.OrderItem{Status: domain.ItemPending, VoidedAt: &stamp}
	assert.Equal(t, domain.ReasonItemAlreadyVoided, CanAdvanceItem(item, domain.ItemPreparing))
}

func TestVoidAndRefire_SingleUse(t *testing.T) {
	item := domain.OrderItem{Status: domain.ItemServed}
	assert.Equal(t, Allowed, CanVoidItem(item))
	assert.Equal(t, Allowed, CanRefireItem(item))

	refired := item
	refired.RefiredAt = &stamp
	assert.Equal(t, domain.ReasonItemAlreadyRefired, CanRefireItem(refired))
	assert.Equal(t, Allowed, CanVoidItem(refired))

	voided := item
	voided.VoidedAt = &stamp
	assert.Equal(t, domain.ReasonItemAlreadyVoided, CanVoidItem(voided))
	assert.Equal(t, domain.ReasonItemAlreadyVoided, CanRefireItem(voided))
}

func TestCanFireWave(t *testing.T) {
	assert.Equal(t, Allowed, CanFireWave(domain.Order{Status: domain.OrderOpen}))
	assert.Equal(t, domain.ReasonWaveAlreadyFired, CanFireWave(domain.Order{Status: domain.OrderOpen, FiredAt: &stamp}))
	assert.Equal(t, domain.ReasonOrderCancelled, CanFireWave(domain.Order{Status: domain.OrderCancelled}))
}

func TestCanAddToOrder(t *testing.T) {
	assert.Equal(t, Allowed, CanAddToOrder(domain.Order{Status: domain.OrderOpen}))
	assert.Equal(t, domain.ReasonOrderAlreadyFired, CanAddToOrder(domain.Order{Status: domain.OrderOpen, FiredAt: &stamp}))
	assert.Equal(t, domain.ReasonOrderCancelled, CanAddToOrder(domain.Order{Status: domain.OrderCancelled}))
}

func TestCanCancelOrder(t *testing.T) {
	open := domain.Order{Status: domain.OrderOpen}
	pending := []domain.OrderItem{{Status: domain.ItemPending}}
	sent := []domain.OrderItem{{Status: domain.ItemPending, SentToKitchenAt: &stamp}}

	assert.Equal(t, Allowed, CanCancelOrder(open, pending))
	assert.Equal(t, domain.ReasonOrderAlreadyFired, CanCancelOrder(open, sent))
	assert.Equal(t, domain.ReasonOrderAlreadyFired, CanCancelOrder(domain.Order{Status: domain.OrderOpen, FiredAt: &stamp}, nil))
	assert.Equal(t, domain.ReasonOrderCancelled, CanCancelOrder(domain.Order{Status: domain.OrderCancelled}, nil))
}

func TestPaymentGuards(t *testing.T) {
	tests := []struct {
		status       domain.PaymentStatus
		wantComplete domain.Reason
		wantRefund   domain.Reason
	}{
		{domain.PaymentPending, Allowed, domain.ReasonPaymentNotComplete},
		{domain.PaymentCompleted, domain.ReasonPaymentNotPending, Allowed},
		{domain.PaymentRefunded, domain.ReasonPaymentNotPending, domain.ReasonPaymentNotComplete},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			p := domain.Payment{Status: tt.status}
			assert.Equal(t, tt.wantComplete, CanCompletePayment(p))
			assert.Equal(t, tt.wantRefund, CanRefundPayment(p))
		})
	}
}

func TestCanStartItem(t *testing.T) {
	assert.Equal(t, Allowed, CanStartItem(domain.OrderItem{Status: domain.ItemPending}))
	assert.Equal(t, domain.ReasonItemNotPending, CanStartItem(domain.OrderItem{Status: domain.ItemReady, StartedAt: &stamp}))
	assert.Equal(t, domain.ReasonItemAlreadyVoided, CanStartItem(domain.OrderItem{Status: domain.ItemPending, VoidedAt: &stamp}))

	// A served item refired after leaving the kitchen waits for a restart.
	refired := domain.OrderItem{Status: domain.ItemServed, SentToKitchenAt: &stamp, RefiredAt: &stamp}
	assert.True(t, Restarting(refired))
	assert.Equal(t, Allowed, CanStartItem(refired))

	refired.StartedAt = &stamp
	assert.False(t, Restarting(refired))
	assert.Equal(t, domain.ReasonItemNotPending, CanStartItem(refired))
}
