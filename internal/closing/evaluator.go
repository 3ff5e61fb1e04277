// Package closing decides whether a dining session may be closed.
//
// The evaluator is pure: it works on a Snapshot loaded by the caller and
// runs a fixed sequence of checks:
//
//  1. the session is open
//  2. every non-voided item has been served
//  3. the kitchen is not mid-fire on any item (sent but not started)
//  4. no payment is still pending
//  5. the remaining balance is within tolerance
//
// Evaluate stops at the first failing check. Outstanding runs them all
// and keeps the failures; Checks reports every check's result.
package closing

import (
	"github.com/shopspring/decimal"

	"github.com/roach88/tableside/internal/domain"
)

// DefaultTolerance is the balance below which a session counts as paid.
var DefaultTolerance = decimal.New(1, -2)

// Snapshot is everything the evaluator needs about one session.
type Snapshot struct {
	Session  domain.Session
	Orders   []domain.Order
	Items    []domain.OrderItem
	Payments []domain.Payment
}

// Options tune the balance check.
type Options struct {
	// Tolerance is the largest remaining balance still treated as paid.
	// Zero uses DefaultTolerance.
	Tolerance decimal.Decimal

	// Incoming is an amount about to be tendered, credited before the
	// balance check.
	Incoming decimal.Decimal
}

func (o Options) tolerance() decimal.Decimal {
	if o.Tolerance.IsZero() {
		return DefaultTolerance
	}
	return o.Tolerance
}

// ItemSummary describes an item blocking the close.
type ItemSummary struct {
	ID       string            `json:"id"`
	OrderID  string            `json:"order_id"`
	Name     string            `json:"name"`
	Quantity int               `json:"quantity"`
	Status   domain.ItemStatus `json:"status"`
}

// Evaluation is the result of a close check.
type Evaluation struct {
	domain.Result
	SessionID        string        `json:"session_id"`
	UnfinishedItems  []ItemSummary `json:"unfinished_items,omitempty"`
	MidFireItems     []ItemSummary `json:"mid_fire_items,omitempty"`
	PendingPayments  []string      `json:"pending_payments,omitempty"`
	RemainingBalance string        `json:"remaining_balance,omitempty"`
	SessionTotal     string        `json:"session_total,omitempty"`
	PaymentsTotal    string        `json:"payments_total,omitempty"`
}

type check struct {
	reason domain.Reason
	run    func(s Snapshot, opts Options, ev *Evaluation) bool
}

// checks run in this order. Each returns true when the session passes.
var checks = []check{
	{domain.ReasonSessionNotOpen, checkOpen},
	{domain.ReasonUnfinishedItems, checkServed},
	{domain.ReasonKitchenMidFire, checkNotMidFire},
	{domain.ReasonPaymentInProgress, checkNoPendingPayments},
	{domain.ReasonUnpaidBalance, checkBalance},
}

// Evaluate runs the checks in order and returns the first failure, or a
// successful evaluation when every check passes.
func Evaluate(s Snapshot, opts Options) Evaluation {
	for _, c := range checks {
		ev := Evaluation{SessionID: s.Session.ID}
		if !c.run(s, opts, &ev) {
			ev.Result = domain.Fail(c.reason)
			return ev
		}
	}
	return Evaluation{Result: domain.Success(), SessionID: s.Session.ID}
}

// Outstanding runs every check and returns all failures in check order.
// An empty slice means the session may be closed.
func Outstanding(s Snapshot, opts Options) []Evaluation {
	failures := []Evaluation{}
	for _, c := range checks {
		ev := Evaluation{SessionID: s.Session.ID}
		if !c.run(s, opts, &ev) {
			ev.Result = domain.Fail(c.reason)
			failures = append(failures, ev)
		}
	}
	return failures
}

// Checks runs every check independently and returns one evaluation per
// check, passing or failing, in check order.
func Checks(s Snapshot, opts Options) []Evaluation {
	out := make([]Evaluation, 0, len(checks))
	for _, c := range checks {
		ev := Evaluation{Result: domain.Success(), SessionID: s.Session.ID}
		if !c.run(s, opts, &ev) {
			ev.Result = domain.Fail(c.reason)
		}
		out = append(out, ev)
	}
	return out
}

func checkOpen(s Snapshot, _ Options, _ *Evaluation) bool {
	return s.Session.Open()
}

func checkServed(s Snapshot, _ Options, ev *Evaluation) bool {
	for _, it := range liveItems(s) {
		if it.Status != domain.ItemServed {
			ev.UnfinishedItems = append(ev.UnfinishedItems, summarize(it))
		}
	}
	return len(ev.UnfinishedItems) == 0
}

func checkNotMidFire(s Snapshot, _ Options, ev *Evaluation) bool {
	for _, it := range liveItems(s) {
		if it.SentToKitchenAt != nil && it.StartedAt == nil {
			ev.MidFireItems = append(ev.MidFireItems, summarize(it))
		}
	}
	return len(ev.MidFireItems) == 0
}

func checkNoPendingPayments(s Snapshot, _ Options, ev *Evaluation) bool {
	for _, p := range s.Payments {
		if p.Status == domain.PaymentPending {
			ev.PendingPayments = append(ev.PendingPayments, p.ID)
		}
	}
	return len(ev.PendingPayments) == 0
}

func checkBalance(s Snapshot, opts Options, ev *Evaluation) bool {
	total, paid := Balance(s)
	remaining := total.Sub(paid).Sub(opts.Incoming)
	if remaining.LessThanOrEqual(opts.tolerance()) {
		return true
	}
	ev.RemainingBalance = remaining.StringFixed(2)
	ev.SessionTotal = total.StringFixed(2)
	ev.PaymentsTotal = paid.StringFixed(2)
	return false
}

// Balance returns the session total across non-cancelled orders and the
// amount collected by completed payments (amount plus tip).
//
// Order totals are recomputed from the snapshot's items and payments
// rather than read from the stored order rows.
func Balance(s Snapshot) (total, paid decimal.Decimal) {
	total = decimal.Zero
	for _, o := range s.Orders {
		if o.Cancelled() {
			continue
		}
		o.Recalculate(s.Items, s.Payments)
		total = total.Add(o.Total)
	}

	paid = decimal.Zero
	for _, p := range s.Payments {
		if p.Status == domain.PaymentCompleted {
			paid = paid.Add(p.Collected())
		}
	}
	return total, paid
}

// liveItems returns non-voided items on non-cancelled orders.
func liveItems(s Snapshot) []domain.OrderItem {
	cancelled := make(map[string]bool)
	for _, o := range s.Orders {
		if o.Cancelled() {
			cancelled[o.ID] = true
		}
	}
	live := make([]domain.OrderItem, 0, len(s.Items))
	for _, it := range s.Items {
		if it.Voided() || cancelled[it.OrderID] {
			continue
		}
		live = append(live, it)
	}
	return live
}

func summarize(it domain.OrderItem) ItemSummary {
	return ItemSummary{
		ID:       it.ID,
		OrderID:  it.OrderID,
		Name:     it.Name,
		Quantity: it.Quantity,
		Status:   it.Status,
	}
}
