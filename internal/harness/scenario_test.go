package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_Testdata(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/fire_then_close.yaml")
	require.NoError(t, err)

	assert.Equal(t, "fire_then_close", scenario.Name)
	assert.Equal(t, "server-1", scenario.User)
	assert.Empty(t, scenario.SeedFile, "seed file is merged on load")
	require.Len(t, scenario.Seed.Locations, 1)
	assert.Equal(t, "0.08", scenario.Seed.Locations[0].TaxRate.String())
	assert.Len(t, scenario.Seed.MenuItems, 3)
	assert.Equal(t, []string{"admin-1"}, scenario.Seed.Admins)

	require.NotEmpty(t, scenario.Flow)
	assert.Equal(t, "ensure_session", scenario.Flow[0].Op)
	assert.Equal(t, map[string]string{"session": "session_id"}, scenario.Flow[0].Save)
	assert.Equal(t, "kds-1", scenario.Flow[7].As)
	assert.Equal(t, "12m", scenario.Flow[10].Advance)
}

func TestLoadScenario_InlineSeedAppendsToFile(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "seed.yaml", `
locations:
  - {id: loc-1, name: One, tax_rate: "0"}
`)
	path := writeScenario(t, dir, "s.yaml", `
name: inline
description: "inline seed rows follow the file"
user: server-1
seed_file: seed.yaml
seed:
  tables:
    - {id: tbl-1, location_id: loc-1, label: T1}
flow:
  - op: ensure_session
    args: {location_id: loc-1, table_id: tbl-1}
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Len(t, scenario.Seed.Locations, 1)
	assert.Len(t, scenario.Seed.Tables, 1)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MissingSeedFile(t *testing.T) {
	path := writeScenario(t, t.TempDir(), "s.yaml", `
name: no_seed
description: "seed file does not exist"
user: server-1
seed_file: nowhere.yaml
flow:
  - op: ensure_session
    args: {}
`)
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read seed file")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			content: "name: [unclosed",
			wantErr: "failed to parse YAML",
		},
		{
			name: "unknown field",
			content: `
name: typo
description: "x"
user: u
flwo: []
`,
			wantErr: "failed to parse YAML",
		},
		{
			name: "missing name",
			content: `
description: "x"
user: u
flow:
  - op: ensure_session
`,
			wantErr: "name is required",
		},
		{
			name: "bad name",
			content: `
name: Has Spaces
description: "x"
user: u
flow:
  - op: ensure_session
`,
			wantErr: "must be lowercase",
		},
		{
			name: "missing description",
			content: `
name: x
user: u
flow:
  - op: ensure_session
`,
			wantErr: "description is required",
		},
		{
			name: "empty flow",
			content: `
name: x
description: "x"
user: u
flow: []
`,
			wantErr: "flow list is required",
		},
		{
			name: "unknown op",
			content: `
name: x
description: "x"
user: u
flow:
  - op: teleport_item
`,
			wantErr: `unknown op "teleport_item"`,
		},
		{
			name: "no caller",
			content: `
name: x
description: "x"
flow:
  - op: ensure_session
`,
			wantErr: "as is required",
		},
		{
			name: "bad advance",
			content: `
name: x
description: "x"
user: u
flow:
  - op: ensure_session
    advance: soon
`,
			wantErr: "non-negative duration",
		},
		{
			name: "negative advance",
			content: `
name: x
description: "x"
user: u
flow:
  - op: ensure_session
    advance: -5m
`,
			wantErr: "non-negative duration",
		},
		{
			name: "error with reason",
			content: `
name: x
description: "x"
user: u
flow:
  - op: ensure_session
    expect: {error: CONFLICT, reason: not_staff}
`,
			wantErr: "error excludes ok and reason",
		},
		{
			name: "unknown assertion",
			content: `
name: x
description: "x"
user: u
flow:
  - op: ensure_session
assertions:
  - type: vibes
`,
			wantErr: `unknown assertion type "vibes"`,
		},
		{
			name: "trace_order needs two ops",
			content: `
name: x
description: "x"
user: u
flow:
  - op: ensure_session
assertions:
  - type: trace_order
    ops: [ensure_session]
`,
			wantErr: "at least 2 ops",
		},
		{
			name: "events needs session",
			content: `
name: x
description: "x"
user: u
flow:
  - op: ensure_session
assertions:
  - type: events
    types: [session_opened]
`,
			wantErr: "events requires session",
		},
		{
			name: "final_state needs where",
			content: `
name: x
description: "x"
user: u
flow:
  - op: ensure_session
assertions:
  - type: final_state
    table: sessions
    expect: {status: open}
`,
			wantErr: "final_state requires where",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScenario(t, t.TempDir(), "s.yaml", tt.content)
			_, err := LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFindScenarios(t *testing.T) {
	files, err := FindScenarios("testdata", "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "fire_then_close.yaml"),
		filepath.Join("testdata", "scenarios", "refire_blocks_close.yaml"),
		filepath.Join("testdata", "seed.yaml"),
	}, files)

	files, err = FindScenarios("testdata/scenarios", "refire*")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("testdata", "scenarios", "refire_blocks_close.yaml")}, files)
}

func TestFindScenarios_Errors(t *testing.T) {
	_, err := FindScenarios("testdata/nope", "")
	var nf *ScenarioNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "testdata/nope", nf.Path)

	_, err = FindScenarios("testdata", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
