package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tableside/internal/canon"
)

// Snapshot is the golden form of a scenario run: the outcome of each step
// and the resulting event timeline. Generated ids and timestamps are left
// out so snapshots stay readable.
type Snapshot struct {
	ScenarioName string          `json:"scenario_name"`
	Steps        []StepSnapshot  `json:"steps"`
	Events       []TimelineEvent `json:"events"`
}

// StepSnapshot is the golden form of one trace event.
type StepSnapshot struct {
	Step     int    `json:"step"`
	Op       string `json:"op"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
	Replayed bool   `json:"replayed,omitempty"`
}

// NewSnapshot builds the snapshot of result.
func NewSnapshot(scenarioName string, result *Result) Snapshot {
	steps := make([]StepSnapshot, len(result.Trace))
	for i, ev := range result.Trace {
		steps[i] = StepSnapshot{
			Step:     ev.Step,
			Op:       ev.Op,
			OK:       ev.OK,
			Reason:   ev.Reason,
			Error:    ev.Error,
			Replayed: ev.Replayed,
		}
	}
	events := result.Events
	if events == nil {
		events = []TimelineEvent{}
	}
	return Snapshot{ScenarioName: scenarioName, Steps: steps, Events: events}
}

// Marshal returns the snapshot as canonical JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	return canon.Value(s)
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(scenarioName, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
