package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/store"
	"github.com/roach88/tableside/internal/transition"
)

// FireWaveRequest sends a session's wave to the kitchen.
type FireWaveRequest struct {
	SessionID string             `json:"session_id"`
	Wave      int                `json:"wave"`
	Source    domain.EventSource `json:"source,omitempty"`
}

// FireWaveResult is the outcome of FireWave.
type FireWaveResult struct {
	domain.Result
	SessionID string     `json:"session_id,omitempty"`
	OrderID   string     `json:"order_id,omitempty"`
	Wave      int        `json:"wave,omitempty"`
	FiredAt   *time.Time `json:"fired_at,omitempty"`
	ItemCount int        `json:"item_count"`
	ItemIDs   []string   `json:"affected_items,omitempty"`
}

// FireWave stamps every unsent item on the wave's order as sent and marks
// the order fired, all in one transaction. A wave fires at most once: the
// second attempt observes fired_at and fails with wave_already_fired
// without touching any item.
func (e *Engine) FireWave(ctx context.Context, who Requester, req FireWaveRequest) (Reply[FireWaveResult], error) {
	return mutate(ctx, e, who, "fire_wave", req, func(ctx context.Context, tx *store.Tx) (FireWaveResult, error) {
		if req.SessionID == "" {
			return FireWaveResult{Result: domain.Failf(domain.ReasonBadRequest, "session_id is required")}, nil
		}
		if req.Wave < 1 {
			return FireWaveResult{Result: domain.Failf(domain.ReasonBadRequest, "wave must be at least 1")}, nil
		}
		if req.Source != "" && !req.Source.Valid() {
			return FireWaveResult{Result: domain.Failf(domain.ReasonBadRequest, "unknown source")}, nil
		}

		s, err := tx.Session(ctx, req.SessionID)
		if missing(err) {
			return FireWaveResult{Result: domain.Fail(domain.ReasonSessionNotFound)}, nil
		}
		if err != nil {
			return FireWaveResult{}, err
		}
		if res, err := e.authorizeResult(ctx, who.UserID, s.LocationID); err != nil || !res.OK {
			return FireWaveResult{Result: res}, err
		}

		o, err := tx.OrderByWave(ctx, s.ID, req.Wave)
		if missing(err) {
			return FireWaveResult{Result: domain.Fail(domain.ReasonOrderNotFound), SessionID: s.ID, Wave: req.Wave}, nil
		}
		if err != nil {
			return FireWaveResult{}, err
		}
		if r := transition.CanFireWave(o); r != transition.Allowed {
			return FireWaveResult{Result: domain.Fail(r), SessionID: s.ID, OrderID: o.ID, Wave: o.Wave, FiredAt: o.FiredAt}, nil
		}

		now := e.clock.Now()
		ids, err := tx.SendUnsentItems(ctx, o.ID, now)
		if err != nil {
			return FireWaveResult{}, err
		}
		if len(ids) == 0 {
			return FireWaveResult{Result: domain.Fail(domain.ReasonNoWaveToFire), SessionID: s.ID, OrderID: o.ID, Wave: o.Wave}, nil
		}

		fired, err := tx.MarkOrderFired(ctx, o.ID, now)
		if err != nil {
			return FireWaveResult{}, err
		}
		if !fired {
			return FireWaveResult{}, domain.Internal(fmt.Errorf("order %s fired concurrently", o.ID))
		}

		_, err = e.record(ctx, tx, s.ID, s.LocationID, domain.EventWaveFired, req.Source, map[string]any{
			"waveNumber": o.Wave,
			"itemCount":  len(ids),
			"orderId":    o.ID,
		})
		if err != nil {
			return FireWaveResult{}, err
		}

		e.logger.Info("wave fired", "session_id", s.ID, "order_id", o.ID, "wave", o.Wave, "items", len(ids))
		return FireWaveResult{
			Result:    domain.Success(),
			SessionID: s.ID,
			OrderID:   o.ID,
			Wave:      o.Wave,
			FiredAt:   &now,
			ItemCount: len(ids),
			ItemIDs:   ids,
		}, nil
	})
}
