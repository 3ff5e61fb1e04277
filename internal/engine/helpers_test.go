package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableside/internal/closing"
	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/store"
	"github.com/roach88/tableside/internal/testutil"
)

type testEnv struct {
	engine *Engine
	store  *store.Store
	clock  *testutil.FixedClock
	keys   atomic.Int64
}

func testSeed() store.Seed {
	return store.Seed{
		Locations: []domain.Location{
			{ID: "loc-1", MerchantID: "m-1", Name: "Bistro", TaxRate: dec("0.08"), ServiceChargeRate: decimal.Zero},
			{ID: "loc-2", MerchantID: "m-2", Name: "Elsewhere", TaxRate: decimal.Zero, ServiceChargeRate: decimal.Zero},
		},
		Tables: []domain.Table{
			{ID: "tbl-1", LocationID: "loc-1", Label: "T1"},
			{ID: "tbl-2", LocationID: "loc-1", Label: "T2"},
			{ID: "tbl-9", LocationID: "loc-2", Label: "T9"},
		},
		MenuItems: []domain.MenuItem{
			{ID: "burger", LocationID: "loc-1", Name: "Burger", Price: dec("12.50"), Station: "grill"},
			{ID: "salad", LocationID: "loc-1", Name: "Salad", Price: dec("9.00"), Station: "cold"},
			{ID: "soup", LocationID: "loc-1", Name: "Soup", Price: dec("6.25"), Station: "hot"},
			{ID: "retired", LocationID: "loc-1", Name: "Old Special", Price: dec("20.00"), Inactive: true},
			{ID: "far-away", LocationID: "loc-2", Name: "Pie", Price: dec("5.00")},
		},
		Staff: []store.StaffMember{
			{LocationID: "loc-1", UserID: "server-1", Role: "server"},
			{LocationID: "loc-1", UserID: "server-2", Role: "server"},
			{LocationID: "loc-2", UserID: "stranger", Role: "server"},
		},
		Admins: []string{"admin-1"},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.ApplySeed(context.Background(), testSeed()))

	clk := testutil.NewFixedClock(testutil.DefaultEpoch)
	eng := New(st,
		WithClock(clk),
		WithIDGenerator(testutil.NewSequenceGenerator("id")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	return &testEnv{engine: eng, store: st, clock: clk}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// as returns a requester with a fresh idempotency key.
func (env *testEnv) as(user string) Requester {
	n := env.keys.Add(1)
	return Requester{UserID: user, IdempotencyKey: fmt.Sprintf("key-%04d", n)}
}

func (env *testEnv) server() Requester {
	return env.as("server-1")
}

// seat opens a session at tbl-1 and returns its id.
func (env *testEnv) seat(t *testing.T, guests int) string {
	t.Helper()
	r, err := env.engine.EnsureSession(context.Background(), env.server(), EnsureSessionRequest{
		LocationID: "loc-1", TableID: "tbl-1", GuestCount: guests,
	})
	require.NoError(t, err)
	require.True(t, r.Value.OK, r.Value.Reason)
	return r.Value.SessionID
}

// openOrder opens the session's next wave.
func (env *testEnv) openOrder(t *testing.T, sessionID string) OrderResult {
	t.Helper()
	r, err := env.engine.OpenOrder(context.Background(), env.server(), OpenOrderRequest{SessionID: sessionID})
	require.NoError(t, err)
	require.True(t, r.Value.OK, r.Value.Reason)
	return r.Value
}

// addItem adds qty of a menu item and returns the new item id.
func (env *testEnv) addItem(t *testing.T, orderID, menuItemID string, qty int) string {
	t.Helper()
	r, err := env.engine.AddOrderItem(context.Background(), env.server(), AddOrderItemRequest{
		OrderID: orderID, MenuItemID: menuItemID, Quantity: qty,
	})
	require.NoError(t, err)
	require.True(t, r.Value.OK, r.Value.Reason)
	return r.Value.OrderItemID
}

func (env *testEnv) fire(t *testing.T, sessionID string, wave int) FireWaveResult {
	t.Helper()
	r, err := env.engine.FireWave(context.Background(), env.server(), FireWaveRequest{
		SessionID: sessionID, Wave: wave, Source: domain.SourceTablePage,
	})
	require.NoError(t, err)
	return r.Value
}

// act runs one item action and requires it to succeed.
func (env *testEnv) act(t *testing.T, action func(context.Context, Requester, ItemActionRequest) (Reply[ItemResult], error), itemID string) {
	t.Helper()
	r, err := action(context.Background(), env.server(), ItemActionRequest{OrderItemID: itemID, Source: domain.SourceKDS})
	require.NoError(t, err)
	require.True(t, r.Value.OK, r.Value.Reason)
}

// serve walks an item through preparing, ready and served.
func (env *testEnv) serve(t *testing.T, itemID string) {
	t.Helper()
	env.act(t, env.engine.MarkItemPreparing, itemID)
	env.act(t, env.engine.MarkItemReady, itemID)
	env.act(t, env.engine.MarkItemServed, itemID)
}

func (env *testEnv) pay(t *testing.T, orderID, amount string) PaymentResult {
	t.Helper()
	r, err := env.engine.AddPayment(context.Background(), env.server(), AddPaymentRequest{
		OrderID: orderID, Amount: dec(amount), Method: "card",
	})
	require.NoError(t, err)
	require.True(t, r.Value.OK, r.Value.Reason)
	return r.Value
}

func (env *testEnv) canClose(t *testing.T, sessionID string) closing.Evaluation {
	t.Helper()
	ev, err := env.engine.CanCloseSession(context.Background(), "server-1", CloseCheckRequest{SessionID: sessionID})
	require.NoError(t, err)
	return ev
}

func (env *testEnv) item(t *testing.T, id string) domain.OrderItem {
	t.Helper()
	it, err := env.store.Reader().OrderItem(context.Background(), id)
	require.NoError(t, err)
	return it
}

func (env *testEnv) order(t *testing.T, id string) domain.Order {
	t.Helper()
	o, err := env.store.Reader().Order(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (env *testEnv) events(t *testing.T, sessionID string) []domain.SessionEvent {
	t.Helper()
	evs, err := env.store.Reader().SessionEvents(context.Background(), sessionID, 0, 1000)
	require.NoError(t, err)
	return evs
}

func eventTypes(evs []domain.SessionEvent) []string {
	types := make([]string, len(evs))
	for i, ev := range evs {
		types[i] = ev.Type
	}
	return types
}

func countEvents(evs []domain.SessionEvent, typ string) int {
	n := 0
	for _, ev := range evs {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
