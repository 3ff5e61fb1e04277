// Package harness runs end-to-end operation scenarios against a fresh
// engine and store.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: fire_then_close_blocked
//	description: "Firing a wave leaves the session unable to close"
//	user: server-1
//	seed:
//	  locations: [{id: loc-1, merchant_id: m-1, name: Bistro, tax_rate: "0.08"}]
//	  tables: [{id: tbl-1, location_id: loc-1, label: T1}]
//	  menu_items: [{id: burger, location_id: loc-1, name: Burger, price: "12.50"}]
//	  staff: [{location_id: loc-1, user_id: server-1, role: server}]
//	flow:
//	  - op: ensure_session
//	    args: {location_id: loc-1, table_id: tbl-1, guest_count: 2}
//	    save: {session: session_id}
//	  - op: fire_wave
//	    args: {session_id: $session, wave: 1}
//	    expect:
//	      ok: false
//	      reason: no_wave_to_fire
//	assertions:
//	  - type: events
//	    session: $session
//	    types: [session_opened]
//
// String arguments of the form $name are replaced with values saved by
// earlier steps. Each step runs as the scenario user unless it names
// another with "as", and under a key derived from the step index unless
// it sets "key"; two steps sharing a key exercise replay. "advance" moves
// the fixed clock forward before the step runs.
//
// # Assertion Types
//
//   - trace_contains: an operation appears in the trace with matching args
//   - trace_order: operations appear in the given order
//   - trace_count: an operation appears exactly N times
//   - events: a session's timeline has exactly the given event types
//   - final_state: a row in a store table has the expected column values
//
// # Deterministic Testing
//
// Every scenario runs against its own database with a fixed clock starting
// at testutil.DefaultEpoch and sequential ids, so traces and timelines are
// identical across runs and can be compared with golden files.
package harness
