package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/roach88/tableside/internal/authz"
	"github.com/roach88/tableside/internal/closing"
	"github.com/roach88/tableside/internal/engine"
	"github.com/roach88/tableside/internal/store"
)

// operatorUser names the caller of operator commands in logs and events.
const operatorUser = "operator"

// InspectOptions holds flags for the read-only session commands.
type InspectOptions struct {
	DatabaseOptions
	User string
}

func (o *InspectOptions) bind(cmd *cobra.Command) {
	o.DatabaseOptions.bind(cmd)
	cmd.Flags().StringVar(&o.User, "user", operatorUser, "user the query runs as")
}

// openEngine opens the database and builds an engine that trusts the
// operator for every location.
func (o *InspectOptions) openEngine(cmd *cobra.Command) (*engine.Engine, *store.Store, error) {
	cfg, st, err := o.openStore()
	if err != nil {
		return nil, nil, err
	}
	eng := engine.New(st,
		engine.WithOracle(authz.NewTrusted(st.Reader())),
		engine.WithTolerance(cfg.Closing.Tolerance),
		engine.WithLogger(newLogger(cfg, cmd.ErrOrStderr())),
	)
	return eng, st, nil
}

// closeCheckView renders a close evaluation.
type closeCheckView struct {
	closing.Evaluation
}

func (v closeCheckView) WriteText(w io.Writer) {
	if v.OK {
		fmt.Fprintf(w, "Session %s can close\n", v.SessionID)
	} else {
		fmt.Fprintf(w, "Session %s cannot close: %s\n", v.SessionID, v.Reason)
	}
	for _, it := range v.UnfinishedItems {
		fmt.Fprintf(w, "  unfinished  %s x%d (%s) %s\n", it.Name, it.Quantity, it.Status, it.ID)
	}
	for _, it := range v.MidFireItems {
		fmt.Fprintf(w, "  mid-fire    %s x%d (%s) %s\n", it.Name, it.Quantity, it.Status, it.ID)
	}
	for _, id := range v.PendingPayments {
		fmt.Fprintf(w, "  pending     payment %s\n", id)
	}
	if v.RemainingBalance != "" {
		fmt.Fprintf(w, "  balance     %s of %s unpaid (%s paid)\n", v.RemainingBalance, v.SessionTotal, v.PaymentsTotal)
	}
}

// NewCloseCheckCommand creates the close-check command.
func NewCloseCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{DatabaseOptions: DatabaseOptions{RootOptions: rootOpts}}
	var incoming string

	cmd := &cobra.Command{
		Use:   "close-check <session-id>",
		Short: "Report whether a session can close",
		Long: `Run the session close checks and report the first failure, or every
failure with --all.

Exit codes:
  0 - The session can close
  1 - The session cannot close
  2 - Command error

Example:
  tableside close-check --db ./tableside.db sess-123
  tableside close-check --db ./tableside.db sess-123 --incoming 20.00 --all`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount := decimal.Zero
			if incoming != "" {
				d, err := decimal.NewFromString(incoming)
				if err != nil {
					return WrapExitError(ExitCommandError, "invalid --incoming amount", err)
				}
				amount = d
			}

			eng, st, err := opts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			all, _ := cmd.Flags().GetBool("all")
			req := engine.CloseCheckRequest{SessionID: args[0], IncomingPaymentAmount: amount}
			out := formatter(rootOpts, cmd)

			if all {
				res, err := eng.CloseIssues(cmd.Context(), opts.User, req)
				if err != nil {
					return WrapExitError(ExitCommandError, "close check failed", err)
				}
				if !res.OK {
					_ = out.Error(CodeRejected, res.Reason.Message(), nil)
					return NewExitError(ExitFailure, string(res.Reason))
				}
				views := make([]closeCheckView, len(res.Issues))
				for i, ev := range res.Issues {
					views[i] = closeCheckView{ev}
				}
				if err := out.Success(issuesView(views)); err != nil {
					return err
				}
				if len(views) > 0 {
					return NewExitError(ExitFailure, fmt.Sprintf("%d close issue(s)", len(views)))
				}
				return nil
			}

			ev, err := eng.CanCloseSession(cmd.Context(), opts.User, req)
			if err != nil {
				return WrapExitError(ExitCommandError, "close check failed", err)
			}
			if err := out.Success(closeCheckView{ev}); err != nil {
				return err
			}
			if !ev.OK {
				return NewExitError(ExitFailure, string(ev.Reason))
			}
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&incoming, "incoming", "", "payment amount about to be tendered")
	cmd.Flags().Bool("all", false, "report every failing check")
	return cmd
}

type issuesView []closeCheckView

func (v issuesView) WriteText(w io.Writer) {
	if len(v) == 0 {
		fmt.Fprintln(w, "No close issues")
		return
	}
	for _, ev := range v {
		ev.WriteText(w)
	}
}

// eventsView renders a page of session events.
type eventsView engine.ListEventsResult

func (v eventsView) WriteText(w io.Writer) {
	for _, ev := range v.Events {
		fmt.Fprintf(w, "%6d  %s  %-18s %-10s %s\n",
			ev.Seq, ev.CreatedAt.Format(time.RFC3339), ev.Type, ev.Source, ev.Payload)
	}
	fmt.Fprintf(w, "next seq: %d\n", v.NextSeq)
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{DatabaseOptions: DatabaseOptions{RootOptions: rootOpts}}
	var after int64
	var limit int

	cmd := &cobra.Command{
		Use:   "events <session-id>",
		Short: "List a session's event timeline",
		Long: `List the events recorded for a session in seq order. Pass the printed
next seq as --after to continue.

Example:
  tableside events --db ./tableside.db sess-123
  tableside events --db ./tableside.db sess-123 --after 12 --limit 50 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, st, err := opts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			res, err := eng.ListEvents(cmd.Context(), opts.User, engine.ListEventsRequest{
				SessionID: args[0],
				AfterSeq:  after,
				Limit:     limit,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "list events failed", err)
			}
			out := formatter(rootOpts, cmd)
			if !res.OK {
				_ = out.Error(CodeRejected, res.Reason.Message(), nil)
				return NewExitError(ExitFailure, string(res.Reason))
			}
			return out.Success(eventsView(res))
		},
	}
	opts.bind(cmd)
	cmd.Flags().Int64Var(&after, "after", 0, "list events after this seq")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum events to list (0 for the server default)")
	return cmd
}
