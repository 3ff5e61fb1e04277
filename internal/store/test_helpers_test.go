package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableside/internal/domain"
)

var testNow = time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createSeededStore creates a store with one location, two tables, a
// staff member and a menu.
func createSeededStore(t *testing.T) *Store {
	t.Helper()
	s := createTestStore(t)
	require.NoError(t, s.ApplySeed(context.Background(), testSeed()))
	return s
}

func testSeed() Seed {
	return Seed{
		Locations: []domain.Location{{
			ID: "loc-1", MerchantID: "m-1", Name: "Bistro",
			TaxRate: decimal.RequireFromString("0.08"), ServiceChargeRate: decimal.Zero,
		}},
		Tables: []domain.Table{
			{ID: "tbl-1", LocationID: "loc-1", Label: "T1"},
			{ID: "tbl-2", LocationID: "loc-1", Label: "T2"},
		},
		MenuItems: []domain.MenuItem{
			{ID: "burger", LocationID: "loc-1", Name: "Burger", Price: decimal.RequireFromString("12.50"), Station: "grill"},
			{ID: "salad", LocationID: "loc-1", Name: "Salad", Price: decimal.RequireFromString("9.00"), Station: "cold"},
		},
		Staff:  []StaffMember{{LocationID: "loc-1", UserID: "user-1", Role: "server"}},
		Admins: []string{"admin-1"},
	}
}

func testSession(id, tableID string) domain.Session {
	return domain.Session{
		ID: id, LocationID: "loc-1", TableID: tableID, ServerID: "user-1",
		Status: domain.SessionOpen, GuestCount: 2, OpenedAt: testNow,
	}
}

func testOrder(id, sessionID string, wave int) domain.Order {
	return domain.Order{
		ID: id, SessionID: &sessionID, LocationID: "loc-1",
		Status: domain.OrderOpen, Type: domain.OrderDineIn, Wave: wave,
		TaxRate: decimal.RequireFromString("0.08"), PaymentStatus: domain.OrderUnpaid,
		CreatedAt: testNow,
	}
}

func testItem(id, orderID string, offset time.Duration) domain.OrderItem {
	it := domain.OrderItem{
		ID: id, OrderID: orderID, MenuItemID: "burger", Name: "Burger",
		Price: decimal.RequireFromString("12.50"), Quantity: 1,
		Status: domain.ItemPending, CreatedAt: testNow.Add(offset),
	}
	it.Reprice()
	return it
}

// inTx runs fn in a transaction and fails the test on error.
func inTx(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	require.NoError(t, s.InTx(context.Background(), fn))
}
