package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableside/internal/domain"
)

// TestScenario_FireThenCloseBlocked seats a table, adds three items,
// fires wave 1 and checks the session cannot close with unserved items.
func TestScenario_FireThenCloseBlocked(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)
	ord := env.openOrder(t, sid)
	require.Equal(t, 1, ord.Wave)

	ids := []string{
		env.addItem(t, ord.OrderID, "burger", 1),
		env.addItem(t, ord.OrderID, "salad", 1),
		env.addItem(t, ord.OrderID, "soup", 1),
	}

	fired := env.fire(t, sid, 1)
	require.True(t, fired.OK, fired.Reason)
	assert.Equal(t, 3, fired.ItemCount)
	assert.ElementsMatch(t, ids, fired.ItemIDs)

	for _, id := range ids {
		assert.NotNil(t, env.item(t, id).SentToKitchenAt)
	}
	assert.NotNil(t, env.order(t, ord.OrderID).FiredAt)
	assert.Equal(t, 1, countEvents(env.events(t, sid), domain.EventWaveFired))

	ev := env.canClose(t, sid)
	assert.False(t, ev.OK)
	assert.Equal(t, domain.ReasonUnfinishedItems, ev.Reason)
	require.Len(t, ev.UnfinishedItems, 3)
	got := make([]string, 0, 3)
	for _, it := range ev.UnfinishedItems {
		got = append(got, it.ID)
		assert.Equal(t, domain.ItemPending, it.Status)
		assert.Equal(t, ord.OrderID, it.OrderID)
	}
	assert.ElementsMatch(t, ids, got)
}

// TestScenario_ServeAndPayThenClose continues the fire scenario through
// service and payment until the session may close.
func TestScenario_ServeAndPayThenClose(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)
	ord := env.openOrder(t, sid)
	ids := []string{
		env.addItem(t, ord.OrderID, "burger", 1),
		env.addItem(t, ord.OrderID, "salad", 1),
		env.addItem(t, ord.OrderID, "soup", 1),
	}
	require.True(t, env.fire(t, sid, 1).OK)

	for _, id := range ids {
		env.serve(t, id)
	}

	// 12.50 + 9.00 + 6.25 = 27.75, tax 8% = 2.22
	o := env.order(t, ord.OrderID)
	assert.Equal(t, "29.97", o.Total.StringFixed(2))

	paid := env.pay(t, ord.OrderID, o.Total.String())
	assert.Equal(t, domain.OrderPaid, paid.Totals.PaymentStatus)

	ev := env.canClose(t, sid)
	assert.True(t, ev.OK, ev.Reason)

	r, err := env.engine.CloseSession(context.Background(), env.server(), CloseCheckRequest{SessionID: sid})
	require.NoError(t, err)
	require.True(t, r.Value.OK, r.Value.Reason)
	require.NotNil(t, r.Value.ClosedAt)

	s, err := env.store.Reader().Session(context.Background(), sid)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionClosed, s.Status)
	assert.Equal(t, domain.OrderCompleted, env.order(t, ord.OrderID).Status)
	assert.Equal(t, 1, countEvents(env.events(t, sid), domain.EventSessionClosed))

	// A closed session cannot close again or take new orders.
	assert.Equal(t, domain.ReasonSessionNotOpen, env.canClose(t, sid).Reason)
	again, err := env.engine.OpenOrder(context.Background(), env.server(), OpenOrderRequest{SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonSessionNotOpen, again.Value.Reason)
}

// TestScenario_KitchenMidFire refires a served item: the kitchen has the
// remake but has not started it, so the session cannot close.
func TestScenario_KitchenMidFire(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 1)
	ord := env.openOrder(t, sid)
	id := env.addItem(t, ord.OrderID, "burger", 1)
	require.True(t, env.fire(t, sid, 1).OK)
	env.serve(t, id)

	env.clock.Advance(5 * time.Minute)
	r, err := env.engine.RefireItem(context.Background(), env.server(), ItemActionRequest{OrderItemID: id, Reason: "undercooked"})
	require.NoError(t, err)
	require.True(t, r.Value.OK, r.Value.Reason)

	it := env.item(t, id)
	assert.Equal(t, domain.ItemServed, it.Status, "refire does not regress the status")
	assert.Nil(t, it.StartedAt)
	assert.True(t, env.clock.Now().Equal(*it.SentToKitchenAt))

	ev := env.canClose(t, sid)
	assert.Equal(t, domain.ReasonKitchenMidFire, ev.Reason)
	require.Len(t, ev.MidFireItems, 1)
	assert.Equal(t, id, ev.MidFireItems[0].ID)

	// The kitchen starts the remake and the block clears.
	env.act(t, env.engine.MarkItemPreparing, id)
	assert.Equal(t, domain.ItemServed, env.item(t, id).Status)
	assert.Equal(t, domain.ReasonUnpaidBalance, env.canClose(t, sid).Reason)
}

// TestScenario_ConcurrentSeating races two devices seating the same table.
func TestScenario_ConcurrentSeating(t *testing.T) {
	env := newTestEnv(t)

	const devices = 8
	ids := make([]string, devices)
	created := make([]bool, devices)
	var wg sync.WaitGroup
	for i := 0; i < devices; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := env.engine.EnsureSession(context.Background(), env.as("server-2"), EnsureSessionRequest{
				LocationID: "loc-1", TableID: "tbl-2", GuestCount: 4,
			})
			if assert.NoError(t, err) && assert.True(t, r.Value.OK) {
				ids[i] = r.Value.SessionID
				created[i] = r.Value.Created
			}
		}(i)
	}
	wg.Wait()

	creators := 0
	for i := range ids {
		assert.Equal(t, ids[0], ids[i])
		if created[i] {
			creators++
		}
	}
	assert.Equal(t, 1, creators)

	var n int
	require.NoError(t, env.store.DB().QueryRow(`SELECT COUNT(*) FROM sessions WHERE table_id = 'tbl-2'`).Scan(&n))
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, countEvents(env.events(t, ids[0]), domain.EventSessionOpened))
}
