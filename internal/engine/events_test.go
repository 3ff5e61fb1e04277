package engine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableside/internal/domain"
)

func TestRecordEvent(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)

	who := env.server()
	req := RecordEventRequest{
		LocationID: "loc-1",
		SessionID:  sid,
		Type:       "check_requested",
		Source:     domain.SourceTablePage,
		Payload:    json.RawMessage(`{"seat": 2, "note": "split"}`),
	}
	r, err := env.engine.RecordEvent(context.Background(), who, req)
	require.NoError(t, err)
	require.True(t, r.Value.OK)
	assert.NotEmpty(t, r.Value.EventID)
	assert.Positive(t, r.Value.Seq)

	// Retried with reordered keys: replayed, one event total.
	req.Payload = json.RawMessage(`{"note":"split","seat":2}`)
	again, err := env.engine.RecordEvent(context.Background(), who, req)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, r.Body, again.Body)

	evs := env.events(t, sid)
	assert.Equal(t, 1, countEvents(evs, "check_requested"))
	assert.Equal(t, `{"note":"split","seat":2}`, string(evs[len(evs)-1].Payload))
}

func TestRecordEvent_Failures(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)

	tests := []struct {
		name string
		user string
		req  RecordEventRequest
		want domain.Reason
	}{
		{"bad type", "server-1", RecordEventRequest{LocationID: "loc-1", SessionID: sid, Type: "Bad Type", Source: domain.SourceKDS}, domain.ReasonBadRequest},
		{"bad source", "server-1", RecordEventRequest{LocationID: "loc-1", SessionID: sid, Type: "bump", Source: "fax"}, domain.ReasonBadRequest},
		{"unknown session", "server-1", RecordEventRequest{LocationID: "loc-1", SessionID: "nope", Type: "bump", Source: domain.SourceKDS}, domain.ReasonNotFound},
		{"wrong location", "server-1", RecordEventRequest{LocationID: "loc-2", SessionID: sid, Type: "bump", Source: domain.SourceKDS}, domain.ReasonNotFound},
		{"forbidden", "stranger", RecordEventRequest{LocationID: "loc-1", SessionID: sid, Type: "bump", Source: domain.SourceKDS}, domain.ReasonForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := env.engine.RecordEvent(context.Background(), env.as(tt.user), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Value.Reason)
		})
	}

	for _, payload := range []string{`[1,2]`, `"ready"`, `{broken`, `{} {}`} {
		_, err := env.engine.RecordEvent(context.Background(), env.server(), RecordEventRequest{
			LocationID: "loc-1", SessionID: sid, Type: "bump", Source: domain.SourceKDS, Payload: json.RawMessage(payload),
		})
		assert.True(t, domain.IsValidation(err), payload)
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)
	sid := env.seat(t, 2)
	ord := env.openOrder(t, sid)
	id := env.addItem(t, ord.OrderID, "burger", 1)
	require.True(t, env.fire(t, sid, 1).OK)
	env.serve(t, id)

	page, err := env.engine.ListEvents(context.Background(), "server-1", ListEventsRequest{SessionID: sid, Limit: 2})
	require.NoError(t, err)
	require.True(t, page.OK)
	assert.Equal(t, []string{domain.EventSessionOpened, domain.EventWaveFired}, eventTypes(page.Events))

	rest, err := env.engine.ListEvents(context.Background(), "server-1", ListEventsRequest{SessionID: sid, AfterSeq: page.NextSeq})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.EventItemReady, domain.EventItemServed}, eventTypes(rest.Events))

	tail, err := env.engine.ListEvents(context.Background(), "server-1", ListEventsRequest{SessionID: sid, AfterSeq: rest.NextSeq})
	require.NoError(t, err)
	assert.Empty(t, tail.Events)
	assert.Equal(t, rest.NextSeq, tail.NextSeq)

	denied, err := env.engine.ListEvents(context.Background(), "stranger", ListEventsRequest{SessionID: sid})
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonUnauthorized, denied.Reason)
}
