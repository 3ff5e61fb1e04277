package harness

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/store"
)

func testSeed() store.Seed {
	return store.Seed{
		Locations: []domain.Location{{ID: "loc-1", MerchantID: "m-1", Name: "Test", TaxRate: decimal.Zero}},
		Tables:    []domain.Table{{ID: "tbl-1", LocationID: "loc-1", Label: "T1"}},
		MenuItems: []domain.MenuItem{{ID: "burger", LocationID: "loc-1", Name: "Burger", Price: decimal.RequireFromString("12.50"), Station: "grill"}},
		Staff:     []store.StaffMember{{LocationID: "loc-1", UserID: "server-1", Role: "server"}},
	}
}

func boolPtr(b bool) *bool { return &b }

func TestRun_SavesVariablesAndRecordsTrace(t *testing.T) {
	scenario := &Scenario{
		Name:        "seat_and_order",
		Description: "seat a table and open an order",
		User:        "server-1",
		Seed:        testSeed(),
		Flow: []Step{
			{Op: "ensure_session", Args: map[string]any{"location_id": "loc-1", "table_id": "tbl-1", "guest_count": 2}, Save: map[string]string{"session": "session_id"}},
			{Op: "open_order", Args: map[string]any{"session_id": "$session"}, Save: map[string]string{"order": "order_id"}},
			{Op: "add_item", Args: map[string]any{"order_id": "$order", "menu_item_id": "burger", "quantity": 2}, Expect: &Expect{Result: map[string]any{"totals.subtotal": "25"}}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Op: "open_order", Args: map[string]any{"session_id": "$session"}},
			{Type: AssertEvents, Session: "$session", Types: []string{domain.EventSessionOpened}},
			{Type: AssertFinalState, Table: "order_items", Where: map[string]any{"order_id": "$order"}, Expect: map[string]any{"quantity": 2, "status": "pending"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 3)
	assert.Equal(t, "server-1", result.Trace[0].As)
	assert.Equal(t, result.Vars["session"], result.Trace[1].Args["session_id"])
	assert.NotEmpty(t, result.Vars["order"])

	require.Len(t, result.Events, 1)
	assert.Equal(t, TimelineEvent{Seq: 1, Session: "$session", Type: domain.EventSessionOpened, Source: string(domain.SourceSystem)}, result.Events[0])
}

func TestRun_ExpectationFailures(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "every expect clause is wrong",
		User:        "server-1",
		Seed:        testSeed(),
		Flow: []Step{
			{Op: "ensure_session", Args: map[string]any{"location_id": "loc-1", "table_id": "tbl-1"}, Expect: &Expect{OK: boolPtr(false)}},
			{Op: "ensure_session", As: "stranger", Args: map[string]any{"location_id": "loc-1", "table_id": "tbl-1"}},
			{Op: "ensure_session", Args: map[string]any{"location_id": "loc-1", "table_id": "tbl-x"}, Expect: &Expect{Reason: "not_staff"}},
			{Op: "ensure_session", Args: map[string]any{"location_id": "loc-1", "table_id": "tbl-1"}, Expect: &Expect{Result: map[string]any{"created": true, "missing": 1}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{
		"flow[0] ensure_session: expected ok=false, got ok=true ()",
		"flow[1] ensure_session: expected success, got not_staff",
		`flow[2] ensure_session: expected reason not_staff, got "table_not_found"`,
		`flow[3] ensure_session: result field "created" missing`,
		`flow[3] ensure_session: result field "missing" missing`,
	}, result.Errors)
}

func TestRun_IdempotencyKeys(t *testing.T) {
	args := map[string]any{"location_id": "loc-1", "table_id": "tbl-1", "guest_count": 2}
	scenario := &Scenario{
		Name:        "keys",
		Description: "explicit keys replay and conflict",
		User:        "server-1",
		Seed:        testSeed(),
		Flow: []Step{
			{Op: "ensure_session", Key: "seat-1", Args: args},
			{Op: "ensure_session", Key: "seat-1", Args: args, Expect: &Expect{Replayed: boolPtr(true)}},
			{Op: "ensure_session", Key: "seat-1", Args: map[string]any{"location_id": "loc-1", "table_id": "tbl-1", "guest_count": 5}, Expect: &Expect{Error: domain.CodeConflict}},
			{Op: "ensure_session", Args: args, Expect: &Expect{Replayed: boolPtr(false)}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, domain.CodeConflict, result.Trace[2].Error)
	assert.False(t, result.Trace[2].OK)
	assert.Equal(t, result.Trace[0].Body["session_id"], result.Trace[3].Body["session_id"])
	assert.NotContains(t, result.Trace[3].Body, "created")
}

func TestRun_PerStepCaller(t *testing.T) {
	scenario := &Scenario{
		Name:        "per_step",
		Description: "every step names its caller",
		Seed:        testSeed(),
		Flow: []Step{
			{Op: "ensure_session", As: "server-1", Args: map[string]any{"location_id": "loc-1", "table_id": "tbl-1"}},
			{Op: "list_events", As: "server-1", Args: map[string]any{"session_id": "nope"}, Expect: &Expect{Reason: string(domain.ReasonSessionNotFound)}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_UndefinedVariable(t *testing.T) {
	scenario := &Scenario{
		Name:        "undefined",
		Description: "reference a variable nothing saved",
		User:        "server-1",
		Seed:        testSeed(),
		Flow: []Step{
			{Op: "open_order", Args: map[string]any{"session_id": "$session"}},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "undefined variable $session")
}

func TestRun_UnknownArgument(t *testing.T) {
	scenario := &Scenario{
		Name:        "typo",
		Description: "misspelled request field",
		User:        "server-1",
		Seed:        testSeed(),
		Flow: []Step{
			{Op: "ensure_session", Args: map[string]any{"location": "loc-1"}},
		},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode args")
}

func TestRun_SaveMissingField(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_save",
		Description: "save a field the outcome lacks",
		User:        "server-1",
		Seed:        testSeed(),
		Flow: []Step{
			{Op: "ensure_session", Args: map[string]any{"location_id": "loc-1", "table_id": "tbl-1"}, Save: map[string]string{"x": "nope"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{`flow[0] ensure_session: cannot save "x": field "nope" missing`}, result.Errors)
}

func TestOperations(t *testing.T) {
	ops := Operations()
	assert.Len(t, ops, 19)
	assert.Contains(t, ops, "fire_wave")
	assert.Contains(t, ops, "can_close_session")
	assert.IsIncreasing(t, ops)
}

func TestLookup(t *testing.T) {
	doc := map[string]any{"totals": map[string]any{"total": "13.50"}, "ok": true}

	v, ok := lookup(doc, "totals.total")
	assert.True(t, ok)
	assert.Equal(t, "13.50", v)

	_, ok = lookup(doc, "ok.nested")
	assert.False(t, ok)
	_, ok = lookup(doc, "absent")
	assert.False(t, ok)
}
