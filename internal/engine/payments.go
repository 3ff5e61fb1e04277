package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/store"
	"github.com/roach88/tableside/internal/transition"
)

// AddPaymentRequest records a tender against an order. Status defaults
// to completed; terminals that capture later send pending.
type AddPaymentRequest struct {
	OrderID     string               `json:"order_id"`
	Amount      decimal.Decimal      `json:"amount"`
	TipAmount   decimal.Decimal      `json:"tip_amount"`
	Method      string               `json:"method"`
	Provider    string               `json:"provider,omitempty"`
	ProviderRef string               `json:"provider_ref,omitempty"`
	Status      domain.PaymentStatus `json:"status,omitempty"`
}

// PaymentResult is the outcome of payment operations.
type PaymentResult struct {
	domain.Result
	PaymentID string               `json:"payment_id,omitempty"`
	Status    domain.PaymentStatus `json:"status,omitempty"`
	Totals    *domain.Totals       `json:"totals,omitempty"`
}

// AddPayment records a payment and updates the order's payment status.
func (e *Engine) AddPayment(ctx context.Context, who Requester, req AddPaymentRequest) (Reply[PaymentResult], error) {
	return mutate(ctx, e, who, "add_payment", req, func(ctx context.Context, tx *store.Tx) (PaymentResult, error) {
		if !req.Amount.IsPositive() {
			return PaymentResult{Result: domain.Failf(domain.ReasonBadRequest, "amount must be positive")}, nil
		}
		if req.TipAmount.IsNegative() {
			return PaymentResult{Result: domain.Failf(domain.ReasonBadRequest, "tip_amount must not be negative")}, nil
		}
		if req.Method == "" {
			return PaymentResult{Result: domain.Failf(domain.ReasonBadRequest, "method is required")}, nil
		}
		status := req.Status
		if status == "" {
			status = domain.PaymentCompleted
		}
		if status != domain.PaymentCompleted && status != domain.PaymentPending {
			return PaymentResult{Result: domain.Failf(domain.ReasonBadRequest, "status must be pending or completed")}, nil
		}

		o, res, err := e.loadOrder(ctx, tx, who.UserID, req.OrderID)
		if err != nil || !res.OK {
			return PaymentResult{Result: res}, err
		}
		if o.Cancelled() {
			return PaymentResult{Result: domain.Fail(domain.ReasonOrderCancelled)}, nil
		}

		now := e.clock.Now()
		p := domain.Payment{
			ID:          e.ids.NewID(),
			OrderID:     o.ID,
			SessionID:   o.SessionID,
			LocationID:  o.LocationID,
			Amount:      req.Amount,
			TipAmount:   req.TipAmount,
			Status:      status,
			Method:      req.Method,
			Provider:    req.Provider,
			ProviderRef: req.ProviderRef,
			CreatedAt:   now,
		}
		if status == domain.PaymentCompleted {
			p.PaidAt = &now
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return PaymentResult{}, err
		}
		if err := e.refreshOrder(ctx, tx, &o); err != nil {
			return PaymentResult{}, err
		}
		if err := e.recordPayment(ctx, tx, o, p, domain.EventPaymentRecorded); err != nil {
			return PaymentResult{}, err
		}

		e.logger.Info("payment recorded", "order_id", o.ID, "payment_id", p.ID, "status", p.Status)
		return PaymentResult{Result: domain.Success(), PaymentID: p.ID, Status: p.Status, Totals: totalsOf(o)}, nil
	})
}

// PaymentActionRequest names a payment to capture or refund.
type PaymentActionRequest struct {
	PaymentID string `json:"payment_id"`
}

// CompletePayment captures a pending payment.
func (e *Engine) CompletePayment(ctx context.Context, who Requester, req PaymentActionRequest) (Reply[PaymentResult], error) {
	return e.paymentAction(ctx, who, "complete_payment", req, transition.CanCompletePayment,
		func(p *domain.Payment, now time.Time) {
			p.Status = domain.PaymentCompleted
			p.PaidAt = &now
		}, domain.EventPaymentCompleted)
}

// RefundPayment refunds a completed payment.
func (e *Engine) RefundPayment(ctx context.Context, who Requester, req PaymentActionRequest) (Reply[PaymentResult], error) {
	return e.paymentAction(ctx, who, "refund_payment", req, transition.CanRefundPayment,
		func(p *domain.Payment, now time.Time) {
			p.Status = domain.PaymentRefunded
			p.RefundedAt = &now
		}, domain.EventPaymentRefunded)
}

func (e *Engine) paymentAction(
	ctx context.Context,
	who Requester,
	route string,
	req PaymentActionRequest,
	guard func(domain.Payment) domain.Reason,
	apply func(p *domain.Payment, now time.Time),
	event string,
) (Reply[PaymentResult], error) {
	return mutate(ctx, e, who, route, req, func(ctx context.Context, tx *store.Tx) (PaymentResult, error) {
		if req.PaymentID == "" {
			return PaymentResult{Result: domain.Failf(domain.ReasonBadRequest, "payment_id is required")}, nil
		}
		p, err := tx.Payment(ctx, req.PaymentID)
		if missing(err) {
			return PaymentResult{Result: domain.Fail(domain.ReasonPaymentNotFound)}, nil
		}
		if err != nil {
			return PaymentResult{}, err
		}
		if r := guard(p); r != transition.Allowed {
			return PaymentResult{Result: domain.Fail(r), PaymentID: p.ID, Status: p.Status}, nil
		}
		o, res, err := e.loadOrder(ctx, tx, who.UserID, p.OrderID)
		if err != nil || !res.OK {
			return PaymentResult{Result: res}, err
		}

		apply(&p, e.clock.Now())
		if err := tx.UpdatePaymentStatus(ctx, p); err != nil {
			return PaymentResult{}, err
		}
		if err := e.refreshOrder(ctx, tx, &o); err != nil {
			return PaymentResult{}, err
		}
		if err := e.recordPayment(ctx, tx, o, p, event); err != nil {
			return PaymentResult{}, err
		}
		return PaymentResult{Result: domain.Success(), PaymentID: p.ID, Status: p.Status, Totals: totalsOf(o)}, nil
	})
}

func (e *Engine) recordPayment(ctx context.Context, tx *store.Tx, o domain.Order, p domain.Payment, event string) error {
	if o.SessionID == nil {
		return nil
	}
	_, err := e.record(ctx, tx, *o.SessionID, o.LocationID, event, domain.SourceAPI, map[string]any{
		"paymentId":     p.ID,
		"orderId":       o.ID,
		"amount":        p.Amount.StringFixed(2),
		"tipAmount":     p.TipAmount.StringFixed(2),
		"status":        string(p.Status),
		"paymentStatus": string(o.PaymentStatus),
	})
	return err
}
