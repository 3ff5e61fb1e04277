package harness

// TraceEvent records one executed flow step.
type TraceEvent struct {
	Step     int            `json:"step"`
	Op       string         `json:"op"`
	As       string         `json:"as"`
	Args     map[string]any `json:"args,omitempty"`
	OK       bool           `json:"ok"`
	Reason   string         `json:"reason,omitempty"`
	Error    string         `json:"error,omitempty"`
	Replayed bool           `json:"replayed,omitempty"`

	// Body is the operation's decoded outcome document.
	Body map[string]any `json:"-"`
}

// TimelineEvent is a recorded session event without its generated ids.
type TimelineEvent struct {
	Seq     int64  `json:"seq"`
	Session string `json:"session"`
	Type    string `json:"type"`
	Source  string `json:"source"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace lists the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Events is the full session event log after the flow.
	Events []TimelineEvent `json:"events"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Vars holds the values saved by the flow.
	Vars map[string]string `json:"vars,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Events: []TimelineEvent{},
		Errors: []string{},
		Vars:   make(map[string]string),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
