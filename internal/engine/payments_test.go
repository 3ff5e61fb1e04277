package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableside/internal/domain"
)

func TestAddPayment_PaymentStatus(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)
	ord := env.openOrder(t, sid)
	env.addItem(t, ord.OrderID, "burger", 1) // total 13.50

	partial := env.pay(t, ord.OrderID, "5.00")
	assert.Equal(t, domain.OrderPartial, partial.Totals.PaymentStatus)

	// The tip raises both the total and what was collected.
	r, err := env.engine.AddPayment(context.Background(), env.server(), AddPaymentRequest{
		OrderID: ord.OrderID, Amount: dec("8.50"), TipAmount: dec("2.00"), Method: "card", Provider: "stripe", ProviderRef: "ch_1",
	})
	require.NoError(t, err)
	require.True(t, r.Value.OK)
	assert.Equal(t, "2.00", r.Value.Totals.Tip.StringFixed(2))
	assert.Equal(t, "15.50", r.Value.Totals.Total.StringFixed(2))
	assert.Equal(t, domain.OrderPaid, r.Value.Totals.PaymentStatus)

	assert.Equal(t, 2, countEvents(env.events(t, sid), domain.EventPaymentRecorded))
}

func TestAddPayment_Validation(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)
	ord := env.openOrder(t, sid)

	tests := []struct {
		name string
		req  AddPaymentRequest
		want domain.Reason
	}{
		{"zero amount", AddPaymentRequest{OrderID: ord.OrderID, Method: "cash"}, domain.ReasonBadRequest},
		{"negative tip", AddPaymentRequest{OrderID: ord.OrderID, Amount: dec("1"), TipAmount: dec("-1"), Method: "cash"}, domain.ReasonBadRequest},
		{"no method", AddPaymentRequest{OrderID: ord.OrderID, Amount: dec("1")}, domain.ReasonBadRequest},
		{"refunded status", AddPaymentRequest{OrderID: ord.OrderID, Amount: dec("1"), Method: "cash", Status: domain.PaymentRefunded}, domain.ReasonBadRequest},
		{"unknown order", AddPaymentRequest{OrderID: "nope", Amount: dec("1"), Method: "cash"}, domain.ReasonOrderNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := env.engine.AddPayment(context.Background(), env.server(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Value.Reason)
		})
	}
}

func TestPaymentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)
	ord := env.openOrder(t, sid)
	env.addItem(t, ord.OrderID, "salad", 1) // total 9.72

	pending, err := env.engine.AddPayment(context.Background(), env.server(), AddPaymentRequest{
		OrderID: ord.OrderID, Amount: dec("9.72"), Method: "card", Status: domain.PaymentPending,
	})
	require.NoError(t, err)
	require.True(t, pending.Value.OK)
	assert.Equal(t, domain.OrderUnpaid, pending.Value.Totals.PaymentStatus)
	pid := pending.Value.PaymentID

	refund, err := env.engine.RefundPayment(context.Background(), env.server(), PaymentActionRequest{PaymentID: pid})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonPaymentNotComplete, refund.Value.Reason)

	done, err := env.engine.CompletePayment(context.Background(), env.server(), PaymentActionRequest{PaymentID: pid})
	require.NoError(t, err)
	require.True(t, done.Value.OK)
	assert.Equal(t, domain.OrderPaid, done.Value.Totals.PaymentStatus)

	again, err := env.engine.CompletePayment(context.Background(), env.server(), PaymentActionRequest{PaymentID: pid})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonPaymentNotPending, again.Value.Reason)

	refund, err = env.engine.RefundPayment(context.Background(), env.server(), PaymentActionRequest{PaymentID: pid})
	require.NoError(t, err)
	require.True(t, refund.Value.OK)
	assert.Equal(t, domain.PaymentRefunded, refund.Value.Status)
	assert.Equal(t, domain.OrderUnpaid, refund.Value.Totals.PaymentStatus)

	p, err := env.store.Reader().Payment(context.Background(), pid)
	require.NoError(t, err)
	assert.NotNil(t, p.PaidAt)
	assert.NotNil(t, p.RefundedAt)

	missing, err := env.engine.CompletePayment(context.Background(), env.server(), PaymentActionRequest{PaymentID: "nope"})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonPaymentNotFound, missing.Value.Reason)

	assert.Equal(t, []string{
		domain.EventSessionOpened,
		domain.EventPaymentRecorded,
		domain.EventPaymentCompleted,
		domain.EventPaymentRefunded,
	}, eventTypes(env.events(t, sid)))
}
