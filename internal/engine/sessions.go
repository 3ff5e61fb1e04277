package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tableside/internal/closing"
	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/store"
	"github.com/roach88/tableside/internal/transition"
)

// EnsureSessionRequest seats a party at a table.
type EnsureSessionRequest struct {
	LocationID string `json:"location_id"`
	TableID    string `json:"table_id"`
	GuestCount int    `json:"guest_count"`
}

// SessionResult is the outcome of EnsureSession.
type SessionResult struct {
	domain.Result
	SessionID string `json:"session_id,omitempty"`
	Created   bool   `json:"created,omitempty"`
}

// EnsureSession returns the table's open session, creating one when the
// table has none. Concurrent calls for the same table return the same
// session.
func (e *Engine) EnsureSession(ctx context.Context, who Requester, req EnsureSessionRequest) (Reply[SessionResult], error) {
	return mutate(ctx, e, who, "ensure_session", req, func(ctx context.Context, tx *store.Tx) (SessionResult, error) {
		if req.LocationID == "" || req.TableID == "" {
			return SessionResult{Result: domain.Failf(domain.ReasonBadRequest, "location_id and table_id are required")}, nil
		}
		guests := req.GuestCount
		if guests < 0 {
			return SessionResult{Result: domain.Failf(domain.ReasonBadRequest, "guest_count must not be negative")}, nil
		}
		if guests == 0 {
			guests = 1
		}

		deny, err := e.authorize(ctx, who.UserID, req.LocationID, domain.ReasonNotStaff)
		if err != nil {
			return SessionResult{}, err
		}
		if deny != "" {
			return SessionResult{Result: domain.Fail(deny)}, nil
		}

		tbl, err := tx.Table(ctx, req.TableID)
		if missing(err) || (err == nil && tbl.LocationID != req.LocationID) {
			return SessionResult{Result: domain.Fail(domain.ReasonTableNotFound)}, nil
		}
		if err != nil {
			return SessionResult{}, err
		}

		existing, ok, err := tx.OpenSessionForTable(ctx, tbl.ID)
		if err != nil {
			return SessionResult{}, err
		}
		if ok {
			return SessionResult{Result: domain.Success(), SessionID: existing.ID}, nil
		}

		s := domain.Session{
			ID:         e.ids.NewID(),
			LocationID: tbl.LocationID,
			TableID:    tbl.ID,
			ServerID:   who.UserID,
			Status:     domain.SessionOpen,
			GuestCount: guests,
			OpenedAt:   e.clock.Now(),
		}
		if err := tx.InsertSession(ctx, s); err != nil {
			return SessionResult{}, err
		}
		_, err = e.record(ctx, tx, s.ID, s.LocationID, domain.EventSessionOpened, domain.SourceSystem, map[string]any{
			"tableId":    tbl.ID,
			"guestCount": guests,
		})
		if err != nil {
			return SessionResult{}, err
		}

		e.logger.Info("session opened", "session_id", s.ID, "table_id", tbl.ID, "guests", guests)
		return SessionResult{Result: domain.Success(), SessionID: s.ID, Created: true}, nil
	})
}

// CloseCheckRequest asks whether a session may be closed.
type CloseCheckRequest struct {
	SessionID string `json:"session_id"`

	// IncomingPaymentAmount is a tender about to be recorded. It counts
	// toward the balance check.
	IncomingPaymentAmount decimal.Decimal `json:"incoming_payment_amount"`
}

// CanCloseSession evaluates the close checks against a consistent
// snapshot and returns the first failure. It does not write.
func (e *Engine) CanCloseSession(ctx context.Context, userID string, req CloseCheckRequest) (closing.Evaluation, error) {
	var ev closing.Evaluation
	err := e.view(ctx, "can_close_session", func(ctx context.Context, tx *store.Tx) error {
		snap, res, err := e.closeSnapshot(ctx, tx, userID, req.SessionID)
		if err != nil || !res.OK {
			ev = closing.Evaluation{Result: res, SessionID: req.SessionID}
			return err
		}
		ev = closing.Evaluate(snap, e.closeOptions(req))
		return nil
	})
	return ev, err
}

// CloseIssuesResult lists every reason a session cannot close yet.
type CloseIssuesResult struct {
	domain.Result
	SessionID string               `json:"session_id"`
	Issues    []closing.Evaluation `json:"issues"`
}

// CloseIssues runs every close check and returns all failures. OK is
// true even when issues exist; it reports that the session was found and
// readable.
func (e *Engine) CloseIssues(ctx context.Context, userID string, req CloseCheckRequest) (CloseIssuesResult, error) {
	out := CloseIssuesResult{SessionID: req.SessionID, Issues: []closing.Evaluation{}}
	err := e.view(ctx, "close_issues", func(ctx context.Context, tx *store.Tx) error {
		snap, res, err := e.closeSnapshot(ctx, tx, userID, req.SessionID)
		out.Result = res
		if err != nil || !res.OK {
			return err
		}
		out.Issues = closing.Outstanding(snap, e.closeOptions(req))
		return nil
	})
	return out, err
}

// CloseSessionResult is the outcome of CloseSession.
type CloseSessionResult struct {
	closing.Evaluation
	ClosedAt *time.Time `json:"closed_at,omitempty"`
}

// CloseSession re-runs the close checks inside the write transaction and,
// when they pass, closes the session and completes its open orders.
func (e *Engine) CloseSession(ctx context.Context, who Requester, req CloseCheckRequest) (Reply[CloseSessionResult], error) {
	return mutate(ctx, e, who, "close_session", req, func(ctx context.Context, tx *store.Tx) (CloseSessionResult, error) {
		snap, res, err := e.closeSnapshot(ctx, tx, who.UserID, req.SessionID)
		if err != nil {
			return CloseSessionResult{}, err
		}
		if !res.OK {
			return CloseSessionResult{Evaluation: closing.Evaluation{Result: res, SessionID: req.SessionID}}, nil
		}

		ev := closing.Evaluate(snap, e.closeOptions(req))
		if !ev.OK {
			return CloseSessionResult{Evaluation: ev}, nil
		}

		now := e.clock.Now()
		closed, err := tx.CloseSession(ctx, snap.Session.ID, now)
		if err != nil {
			return CloseSessionResult{}, err
		}
		if !closed {
			return CloseSessionResult{}, domain.Internal(fmt.Errorf("session %s changed while closing", snap.Session.ID))
		}

		for _, o := range snap.Orders {
			if o.Status != domain.OrderOpen {
				continue
			}
			o.Status = domain.OrderCompleted
			o.CompletedAt = &now
			if err := tx.UpdateOrderStatus(ctx, o); err != nil {
				return CloseSessionResult{}, err
			}
		}

		total, paid := closing.Balance(snap)
		_, err = e.record(ctx, tx, snap.Session.ID, snap.Session.LocationID, domain.EventSessionClosed, domain.SourceSystem, map[string]any{
			"sessionTotal":  total.StringFixed(2),
			"paymentsTotal": paid.StringFixed(2),
		})
		if err != nil {
			return CloseSessionResult{}, err
		}

		e.logger.Info("session closed", "session_id", snap.Session.ID)
		return CloseSessionResult{Evaluation: ev, ClosedAt: &now}, nil
	})
}

// closeSnapshot loads and authorizes the session for a close check. A
// failed Result means the session is missing or the caller may not see it.
func (e *Engine) closeSnapshot(ctx context.Context, tx *store.Tx, userID, sessionID string) (closing.Snapshot, domain.Result, error) {
	if sessionID == "" {
		return closing.Snapshot{}, domain.Failf(domain.ReasonBadRequest, "session_id is required"), nil
	}
	s, err := tx.Session(ctx, sessionID)
	if missing(err) {
		return closing.Snapshot{}, domain.Fail(domain.ReasonSessionNotFound), nil
	}
	if err != nil {
		return closing.Snapshot{}, domain.Result{}, err
	}

	deny, err := e.authorize(ctx, userID, s.LocationID, domain.ReasonUnauthorized)
	if err != nil {
		return closing.Snapshot{}, domain.Result{}, err
	}
	if deny != "" {
		return closing.Snapshot{}, domain.Fail(deny), nil
	}

	snap, err := snapshot(ctx, tx, s)
	if err != nil {
		return closing.Snapshot{}, domain.Result{}, err
	}
	return snap, domain.Success(), nil
}

func (e *Engine) closeOptions(req CloseCheckRequest) closing.Options {
	return closing.Options{Tolerance: e.tolerance, Incoming: req.IncomingPaymentAmount}
}

// requireOpen returns the session's add-items guard as a Result.
func requireOpen(s domain.Session) domain.Result {
	if r := transition.CanAddItems(s); r != transition.Allowed {
		return domain.Fail(r)
	}
	return domain.Success()
}
