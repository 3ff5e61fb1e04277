package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/roach88/tableside/internal/domain"
	"github.com/roach88/tableside/internal/engine"
	"github.com/roach88/tableside/internal/store"
	"github.com/roach88/tableside/internal/testutil"
)

// maxTimeline bounds the events read back after a flow.
const maxTimeline = 10000

// outcome is what a step produced, normalized across operation kinds.
type outcome struct {
	result   domain.Result
	body     []byte
	replayed bool
}

// operation runs one named engine call with JSON-encoded arguments.
type operation func(ctx context.Context, e *engine.Engine, who engine.Requester, args []byte) (outcome, error)

func mutation[Req, Res any](op func(*engine.Engine, context.Context, engine.Requester, Req) (engine.Reply[Res], error)) operation {
	return func(ctx context.Context, e *engine.Engine, who engine.Requester, args []byte) (outcome, error) {
		var req Req
		if err := decodeArgs(args, &req); err != nil {
			return outcome{}, err
		}
		reply, err := op(e, ctx, who, req)
		if err != nil {
			return outcome{}, err
		}
		return outcome{result: reply.Outcome(), body: reply.Body, replayed: reply.Replayed}, nil
	}
}

func view[Req any, Res interface{ Outcome() domain.Result }](op func(*engine.Engine, context.Context, string, Req) (Res, error)) operation {
	return func(ctx context.Context, e *engine.Engine, who engine.Requester, args []byte) (outcome, error) {
		var req Req
		if err := decodeArgs(args, &req); err != nil {
			return outcome{}, err
		}
		res, err := op(e, ctx, who.UserID, req)
		if err != nil {
			return outcome{}, err
		}
		body, err := json.Marshal(res)
		if err != nil {
			return outcome{}, fmt.Errorf("encode outcome: %w", err)
		}
		return outcome{result: res.Outcome(), body: body}, nil
	}
}

var operations = map[string]operation{
	"ensure_session":    mutation((*engine.Engine).EnsureSession),
	"open_order":        mutation((*engine.Engine).OpenOrder),
	"cancel_order":      mutation((*engine.Engine).CancelOrder),
	"add_item":          mutation((*engine.Engine).AddOrderItem),
	"update_item":       mutation((*engine.Engine).UpdateOrderItem),
	"start_item":        mutation((*engine.Engine).MarkItemPreparing),
	"mark_item_ready":   mutation((*engine.Engine).MarkItemReady),
	"mark_item_served":  mutation((*engine.Engine).MarkItemServed),
	"void_item":         mutation((*engine.Engine).VoidItem),
	"refire_item":       mutation((*engine.Engine).RefireItem),
	"fire_wave":         mutation((*engine.Engine).FireWave),
	"record_event":      mutation((*engine.Engine).RecordEvent),
	"add_payment":       mutation((*engine.Engine).AddPayment),
	"complete_payment":  mutation((*engine.Engine).CompletePayment),
	"refund_payment":    mutation((*engine.Engine).RefundPayment),
	"close_session":     mutation((*engine.Engine).CloseSession),
	"can_close_session": view((*engine.Engine).CanCloseSession),
	"close_issues":      view((*engine.Engine).CloseIssues),
	"list_events":       view((*engine.Engine).ListEvents),
}

// Operations lists the operation names a scenario may use.
func Operations() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decodeArgs(args []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}

// Harness holds the per-scenario runtime.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	clock  *testutil.FixedClock
	logger *slog.Logger
	vars   map[string]string
}

// Run executes a scenario against a fresh database and returns the result.
//
// Execution flow:
//  1. Create a fresh database in a temporary directory
//  2. Apply the scenario seed
//  3. Execute flow steps, checking expect clauses and saving variables
//  4. Read back the event timeline
//  5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "tableside-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if err := st.ApplySeed(ctx, scenario.Seed); err != nil {
		return nil, fmt.Errorf("failed to apply seed: %w", err)
	}

	clk := testutil.NewFixedClock(testutil.DefaultEpoch)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &Harness{
		store: st,
		engine: engine.New(st,
			engine.WithClock(clk),
			engine.WithIDGenerator(testutil.NewSequenceGenerator("id")),
			engine.WithLogger(logger),
		),
		clock:  clk,
		logger: logger,
		vars:   make(map[string]string),
	}

	result := NewResult()
	if err := h.executeFlow(ctx, scenario, result); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}
	if err := h.readTimeline(ctx, result); err != nil {
		return nil, err
	}
	for k, v := range h.vars {
		result.Vars[k] = v
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, Vars: h.vars}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// executeFlow runs all flow steps and validates expect clauses.
// Domain errors become failed steps; only infrastructure faults abort.
func (h *Harness) executeFlow(ctx context.Context, scenario *Scenario, result *Result) error {
	for i, step := range scenario.Flow {
		if step.Advance != "" {
			d, err := time.ParseDuration(step.Advance)
			if err != nil {
				return fmt.Errorf("flow step %d: %w", i, err)
			}
			h.clock.Advance(d)
		}

		resolved, err := h.resolve(step.Args)
		if err != nil {
			return fmt.Errorf("flow step %d: %w", i, err)
		}
		args, _ := resolved.(map[string]any)
		if args == nil {
			args = map[string]any{}
		}
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("flow step %d: encode args: %w", i, err)
		}

		who := engine.Requester{
			UserID:         firstNonEmpty(step.As, scenario.User),
			IdempotencyKey: firstNonEmpty(step.Key, fmt.Sprintf("%s-%03d", scenario.Name, i)),
		}

		ev := TraceEvent{Step: i, Op: step.Op, As: who.UserID, Args: args}
		out, err := operations[step.Op](ctx, h.engine, who, raw)
		switch {
		case err == nil:
			ev.OK = out.result.OK
			ev.Reason = string(out.result.Reason)
			ev.Replayed = out.replayed
			if len(out.body) > 0 {
				if err := json.Unmarshal(out.body, &ev.Body); err != nil {
					return fmt.Errorf("flow step %d: decode outcome: %w", i, err)
				}
			}
		case domain.KindOf(err) == domain.KindInternal:
			return fmt.Errorf("flow step %d (%s): %w", i, step.Op, err)
		default:
			var de *domain.Error
			if errors.As(err, &de) {
				ev.Error = de.Code
			} else {
				ev.Error = err.Error()
			}
		}
		result.Trace = append(result.Trace, ev)

		for _, msg := range checkExpect(step, ev) {
			result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Op, msg))
		}
		h.save(i, step, ev, result)

		h.logger.Debug("flow step completed",
			"step", i,
			"op", step.Op,
			"ok", ev.OK,
			"reason", ev.Reason,
			"error", ev.Error,
		)
	}
	return nil
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(step Step, ev TraceEvent) []string {
	exp := step.Expect
	if exp == nil {
		if ev.Error != "" {
			return []string{fmt.Sprintf("expected success, got error %s", ev.Error)}
		}
		if !ev.OK {
			return []string{fmt.Sprintf("expected success, got %s", ev.Reason)}
		}
		return nil
	}

	var errs []string
	if exp.Error != "" {
		if ev.Error != exp.Error {
			errs = append(errs, fmt.Sprintf("expected error %s, got %q", exp.Error, ev.Error))
		}
		return errs
	}
	if ev.Error != "" {
		return []string{fmt.Sprintf("unexpected error %s", ev.Error)}
	}
	if exp.OK != nil && *exp.OK != ev.OK {
		errs = append(errs, fmt.Sprintf("expected ok=%t, got ok=%t (%s)", *exp.OK, ev.OK, ev.Reason))
	}
	if exp.Reason != "" && exp.Reason != ev.Reason {
		errs = append(errs, fmt.Sprintf("expected reason %s, got %q", exp.Reason, ev.Reason))
	}
	if exp.Replayed != nil && *exp.Replayed != ev.Replayed {
		errs = append(errs, fmt.Sprintf("expected replayed=%t, got %t", *exp.Replayed, ev.Replayed))
	}
	for _, key := range sortedKeys(exp.Result) {
		got, ok := lookup(ev.Body, key)
		if !ok {
			errs = append(errs, fmt.Sprintf("result field %q missing", key))
			continue
		}
		if !valuesEqual(got, exp.Result[key]) {
			errs = append(errs, fmt.Sprintf("result field %q = %v, want %v", key, got, exp.Result[key]))
		}
	}
	return errs
}

// save copies outcome fields into scenario variables.
func (h *Harness) save(i int, step Step, ev TraceEvent, result *Result) {
	for _, name := range sortedKeys(step.Save) {
		field := step.Save[name]
		v, ok := lookup(ev.Body, field)
		if !ok {
			result.AddError(fmt.Sprintf("flow[%d] %s: cannot save %q: field %q missing", i, step.Op, name, field))
			continue
		}
		h.vars[name] = fmt.Sprint(v)
	}
}

// resolve substitutes $var references in v.
func (h *Harness) resolve(v any) (any, error) {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, "$") {
			return val, nil
		}
		name := strings.TrimPrefix(val, "$")
		saved, ok := h.vars[name]
		if !ok {
			return nil, fmt.Errorf("undefined variable $%s", name)
		}
		return saved, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			r, err := h.resolve(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	default:
		return val, nil
	}
}

// readTimeline loads the full event log, naming sessions by the variable
// that holds their id.
func (h *Harness) readTimeline(ctx context.Context, result *Result) error {
	evs, err := h.store.Reader().EventsAfter(ctx, 0, maxTimeline)
	if err != nil {
		return fmt.Errorf("failed to read events: %w", err)
	}
	names := make(map[string]string, len(h.vars))
	for _, name := range sortedKeys(h.vars) {
		if _, taken := names[h.vars[name]]; !taken {
			names[h.vars[name]] = "$" + name
		}
	}
	for _, ev := range evs {
		session := ev.SessionID
		if name, ok := names[session]; ok {
			session = name
		}
		result.Events = append(result.Events, TimelineEvent{
			Seq:     ev.Seq,
			Session: session,
			Type:    ev.Type,
			Source:  string(ev.Source),
		})
	}
	return nil
}

// lookup reads a dotted path from a decoded JSON document.
func lookup(doc map[string]any, path string) (any, bool) {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
