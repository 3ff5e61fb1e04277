package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySeed(t *testing.T) {
	s := createSeededStore(t)
	r := s.Reader()
	ctx := context.Background()

	loc, err := r.Location(ctx, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, "m-1", loc.MerchantID)
	assert.Equal(t, "0.08", loc.TaxRate.String())

	tbl, err := r.Table(ctx, "tbl-2")
	require.NoError(t, err)
	assert.Equal(t, "loc-1", tbl.LocationID)

	mi, err := r.MenuItem(ctx, "burger")
	require.NoError(t, err)
	assert.Equal(t, "12.5", mi.Price.String())
	assert.False(t, mi.Inactive)

	role, ok, err := r.StaffRole(ctx, "loc-1", "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "server", role)

	_, ok, err = r.StaffRole(ctx, "loc-1", "stranger")
	require.NoError(t, err)
	assert.False(t, ok)

	admin, err := r.IsAdmin(ctx, "admin-1")
	require.NoError(t, err)
	assert.True(t, admin)
}

func TestApplySeed_Upserts(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	seed := testSeed()
	seed.Locations[0].Name = "Renamed"
	seed.Staff[0].Role = "manager"
	require.NoError(t, s.ApplySeed(ctx, seed))

	loc, err := s.Reader().Location(ctx, "loc-1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loc.Name)

	role, _, err := s.Reader().StaffRole(ctx, "loc-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "manager", role)
}

func TestRemoveStaff(t *testing.T) {
	s := createSeededStore(t)
	ctx := context.Background()

	inTx(t, s, func(tx *Tx) error { return tx.RemoveStaff(ctx, "loc-1", "user-1") })

	_, ok, err := s.Reader().StaffRole(ctx, "loc-1", "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}
