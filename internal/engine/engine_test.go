package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableside/internal/domain"
)

func TestMutate_ReplayIsByteIdentical(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)
	ord := env.openOrder(t, sid)
	env.addItem(t, ord.OrderID, "burger", 2)

	who := env.server()
	req := FireWaveRequest{SessionID: sid, Wave: 1, Source: domain.SourceKDS}

	first, err := env.engine.FireWave(context.Background(), who, req)
	require.NoError(t, err)
	require.True(t, first.Value.OK)
	assert.False(t, first.Replayed)

	env.clock.Advance(1000)
	second, err := env.engine.FireWave(context.Background(), who, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Body, second.Body)
	assert.True(t, first.Value.FiredAt.Equal(*second.Value.FiredAt))

	assert.Equal(t, 1, countEvents(env.events(t, sid), domain.EventWaveFired))
}

func TestMutate_FailuresReplayToo(t *testing.T) {
	env := newTestEnv(t)
	who := env.server()
	req := OpenOrderRequest{SessionID: "no-such-session"}

	first, err := env.engine.OpenOrder(context.Background(), who, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonSessionNotFound, first.Value.Reason)

	second, err := env.engine.OpenOrder(context.Background(), who, req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Body, second.Body)
}

func TestMutate_KeyReuseConflicts(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)
	ord := env.openOrder(t, sid)

	who := env.server()
	_, err := env.engine.AddOrderItem(context.Background(), who, AddOrderItemRequest{OrderID: ord.OrderID, MenuItemID: "burger", Quantity: 1})
	require.NoError(t, err)

	_, err = env.engine.AddOrderItem(context.Background(), who, AddOrderItemRequest{OrderID: ord.OrderID, MenuItemID: "salad", Quantity: 1})
	require.Error(t, err)
	assert.True(t, domain.IsConflict(err))
	assert.Equal(t, domain.KindStateConflict, domain.KindOf(err))

	items, err := env.store.Reader().ItemsForOrder(context.Background(), ord.OrderID)
	require.NoError(t, err)
	assert.Len(t, items, 1, "the conflicting request wrote nothing")

	// The same key on another route conflicts as well.
	_, err = env.engine.VoidItem(context.Background(), who, ItemActionRequest{OrderItemID: items[0].ID})
	assert.True(t, domain.IsConflict(err))
}

func TestMutate_KeyOrderDoesNotMatter(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)
	ord := env.openOrder(t, sid)
	id := env.addItem(t, ord.OrderID, "burger", 1)

	who := env.server()
	_, err := env.engine.VoidItem(context.Background(), who, ItemActionRequest{OrderItemID: id, Reason: "guest changed mind"})
	require.NoError(t, err)

	// Same logical request, same key: replayed rather than a conflict.
	r, err := env.engine.VoidItem(context.Background(), who, ItemActionRequest{Reason: "guest changed mind", OrderItemID: id})
	require.NoError(t, err)
	assert.True(t, r.Replayed)
	assert.True(t, r.Value.OK)
}

func TestMutate_RequiresKeyAndUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.EnsureSession(context.Background(), Requester{UserID: "server-1"}, EnsureSessionRequest{LocationID: "loc-1", TableID: "tbl-1"})
	assert.True(t, domain.IsValidation(err))

	_, err = env.engine.EnsureSession(context.Background(), Requester{IdempotencyKey: "k"}, EnsureSessionRequest{LocationID: "loc-1", TableID: "tbl-1"})
	assert.Equal(t, domain.KindAuthorization, domain.KindOf(err))
}

func TestMutate_AnotherUserCannotReplay(t *testing.T) {
	env := newTestEnv(t)
	req := EnsureSessionRequest{LocationID: "loc-1", TableID: "tbl-1", GuestCount: 2}

	_, err := env.engine.EnsureSession(context.Background(), Requester{UserID: "server-1", IdempotencyKey: "shared"}, req)
	require.NoError(t, err)

	_, err = env.engine.EnsureSession(context.Background(), Requester{UserID: "server-2", IdempotencyKey: "shared"}, req)
	assert.True(t, domain.IsConflict(err))
}

func TestReply_Outcome(t *testing.T) {
	r := Reply[ItemResult]{Value: ItemResult{Result: domain.Fail(domain.ReasonItemNotReady)}}
	assert.Equal(t, domain.ReasonItemNotReady, r.Outcome().Reason)

	ok := Reply[CloseSessionResult]{Value: CloseSessionResult{}}
	ok.Value.Result = domain.Success()
	assert.True(t, ok.Outcome().OK)
}
