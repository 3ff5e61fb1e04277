package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tableside/internal/store"
)

// Scenario defines an end-to-end operation flow and what must hold after it.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// User is the default caller for flow steps.
	User string `yaml:"user"`

	// Seed is the reference data loaded before the flow.
	Seed store.Seed `yaml:"seed"`

	// SeedFile names a YAML seed file, relative to the scenario file.
	// Its rows are applied before Seed.
	SeedFile string `yaml:"seed_file,omitempty"`

	// Flow is the sequence of operations to run.
	Flow []Step `yaml:"flow"`

	// Assertions validate the trace, timeline and final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation call.
type Step struct {
	// Op names the operation, e.g. "fire_wave".
	Op string `yaml:"op"`

	// As overrides the scenario user.
	As string `yaml:"as,omitempty"`

	// Key overrides the generated idempotency key.
	Key string `yaml:"key,omitempty"`

	// Advance moves the clock forward before the step, e.g. "5m".
	Advance string `yaml:"advance,omitempty"`

	// Args is the operation request.
	Args map[string]any `yaml:"args"`

	// Save copies outcome fields into variables: var name -> field.
	Save map[string]string `yaml:"save,omitempty"`

	// Expect describes the expected outcome. When nil the step must
	// succeed.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect describes an expected outcome.
type Expect struct {
	OK       *bool          `yaml:"ok,omitempty"`
	Reason   string         `yaml:"reason,omitempty"`
	Error    string         `yaml:"error,omitempty"`
	Replayed *bool          `yaml:"replayed,omitempty"`
	Result   map[string]any `yaml:"result,omitempty"`
}

// Assertion validates the trace, the event timeline or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the operation name (trace_contains, trace_count).
	Op string `yaml:"op,omitempty"`

	// Args are the expected arguments (trace_contains), subset match.
	Args map[string]any `yaml:"args,omitempty"`

	// Count is the expected number of calls (trace_count).
	Count int `yaml:"count,omitempty"`

	// Ops is the expected call order (trace_order).
	Ops []string `yaml:"ops,omitempty"`

	// Session is the session id or $var (events).
	Session string `yaml:"session,omitempty"`

	// Types is the exact expected event type list (events).
	Types []string `yaml:"types,omitempty"`

	// Table, Where and Expect describe a row check (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertEvents        = "events"
	AssertFinalState    = "final_state"
)

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.SeedFile != "" {
		seedPath := scenario.SeedFile
		if !filepath.IsAbs(seedPath) {
			seedPath = filepath.Join(filepath.Dir(path), seedPath)
		}
		seed, err := LoadSeed(seedPath)
		if err != nil {
			return nil, err
		}
		scenario.Seed = mergeSeed(seed, scenario.Seed)
		scenario.SeedFile = ""
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadSeed reads a reference data file.
func LoadSeed(path string) (store.Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return store.Seed{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed store.Seed
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&seed); err != nil {
		return store.Seed{}, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	return seed, nil
}

func mergeSeed(a, b store.Seed) store.Seed {
	return store.Seed{
		Locations: append(a.Locations, b.Locations...),
		Tables:    append(a.Tables, b.Tables...),
		MenuItems: append(a.MenuItems, b.MenuItems...),
		Staff:     append(a.Staff, b.Staff...),
		Admins:    append(a.Admins, b.Admins...),
	}
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validName.MatchString(s.Name) {
		return fmt.Errorf("name %q must be lowercase letters, digits, '_' or '-'", s.Name)
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if step.Op == "" {
			return fmt.Errorf("flow[%d]: op is required", i)
		}
		if _, ok := operations[step.Op]; !ok {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.As == "" && s.User == "" {
			return fmt.Errorf("flow[%d]: as is required when the scenario has no user", i)
		}
		if step.Advance != "" {
			if d, err := time.ParseDuration(step.Advance); err != nil || d < 0 {
				return fmt.Errorf("flow[%d]: advance %q is not a non-negative duration", i, step.Advance)
			}
		}
		if step.Expect != nil && step.Expect.Error != "" && (step.Expect.OK != nil || step.Expect.Reason != "") {
			return fmt.Errorf("flow[%d].expect: error excludes ok and reason", i)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: trace_contains requires op", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) < 2 {
			return fmt.Errorf("assertions[%d]: trace_order requires at least 2 ops", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: trace_count requires op", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: trace_count requires a non-negative count", index)
		}
	case AssertEvents:
		if a.Session == "" {
			return fmt.Errorf("assertions[%d]: events requires session", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: final_state requires table", index)
		}
		if len(a.Where) == 0 {
			return fmt.Errorf("assertions[%d]: final_state requires where", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: final_state requires expect", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
