package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tradeledger/internal/execution"
	"github.com/roach88/tradeledger/internal/holdings"
)

// ExecuteOptions holds flags for the execute command.
type ExecuteOptions struct {
	*RootOptions
	Input     string
	Reconcile bool
}

// OutcomeView is one executed instruction in command output.
type OutcomeView struct {
	Key          string `json:"key"`
	Status       string `json:"status"`
	EntryID      string `json:"entry_id"`
	AttemptCount int    `json:"attempt_count"`
	TradeID      string `json:"trade_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ExecuteResult is the output of the execute command.
type ExecuteResult struct {
	Outcomes   []OutcomeView     `json:"outcomes"`
	Reconciled []holdings.Result `json:"reconciled,omitempty"`
}

func (r ExecuteResult) WriteText(w io.Writer) {
	for _, o := range r.Outcomes {
		fmt.Fprintf(w, "%-16s %s  entry=%s attempts=%d", o.Status, o.Key, o.EntryID, o.AttemptCount)
		if o.TradeID != "" {
			fmt.Fprintf(w, " trade=%s", o.TradeID)
		}
		if o.Error != "" {
			fmt.Fprintf(w, " error=%q", o.Error)
		}
		fmt.Fprintln(w)
	}
	for _, res := range r.Reconciled {
		ReconcileResult{Result: res}.WriteText(w)
	}
}

// NewExecuteCommand creates the execute command.
func NewExecuteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecuteOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute trade instructions at most once",
		Long: `Execute trade instructions through the ledger against a paper exchange.

Each instruction is claimed before the order is placed. Re-running the same
file places nothing new: every instruction is reported as a duplicate.
Retries of failed entries follow the retry section of the config.

With --reconcile, executed instructions are folded into each user's
holdings afterwards.

Input:
  instructions:
    - key: msg-1
      user: u1
      symbol: BTC/KRW
      side: buy
      diff: 1
      category: major
      quantity: "0.01"
      price: "91000000"
      expires_in: 1m

Example:
  ledger execute --input instructions.yaml --reconcile`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Input, "input", "", "instructions YAML file (required)")
	_ = cmd.MarkFlagRequired("input")
	cmd.Flags().BoolVar(&opts.Reconcile, "reconcile", false, "reconcile holdings for executed instructions")

	return cmd
}

func runExecute(opts *ExecuteOptions, cmd *cobra.Command) error {
	var file InstructionsFile
	if err := decodeStrict(opts.Input, &file); err != nil {
		return WrapExitError(ExitCommandError, "invalid instructions file", err)
	}
	instructions, err := file.ToInstructions(time.Now())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid instructions file", err)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close(opts.RootOptions)

	exchange := opts.exchange
	if exchange == nil {
		exchange = execution.NewPaperExchange(nil)
	}
	executor := execution.New(a.ledger, exchange, a.records,
		execution.WithRetryPolicy(opts.Config.Retry.Policy()),
		execution.WithLogger(opts.Logger),
	)

	ctx := cmd.Context()
	var (
		result   ExecuteResult
		outcomes []execution.Outcome
		failed   int
		conflict int
	)
	for _, in := range instructions {
		out, err := executor.Execute(ctx, in)
		view := OutcomeView{
			Key:          in.Key().String(),
			Status:       string(out.Status),
			EntryID:      out.Entry.ID,
			AttemptCount: out.Entry.AttemptCount,
		}
		if err != nil {
			switch out.Status {
			case execution.StatusFailed:
				failed++
				view.Error = out.Entry.Error
			case execution.StatusConflict:
				conflict++
				view.Error = err.Error()
			default:
				return WrapExitError(ExitFailure, fmt.Sprintf("execute %s", in.Key()), err)
			}
		}
		if out.Trade != nil {
			view.TradeID = out.Trade.ID
		}
		result.Outcomes = append(result.Outcomes, view)
		outcomes = append(outcomes, out)
	}

	if opts.Reconcile {
		byUser := make(map[string][]execution.Outcome)
		for _, o := range outcomes {
			if o.Filled() {
				byUser[o.Instruction.UserID] = append(byUser[o.Instruction.UserID], o)
			}
		}
		users := make([]string, 0, len(byUser))
		for u := range byUser {
			users = append(users, u)
		}
		sort.Strings(users)

		for _, u := range users {
			res, err := a.service.Reconcile(ctx, u, execution.Settle(byUser[u]))
			if err != nil {
				return WrapExitError(ExitFailure, "reconciliation failed", err)
			}
			result.Reconciled = append(result.Reconciled, res)
		}
	}

	if err := opts.formatter(cmd).Success(result); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d orders rejected", failed, len(instructions)))
	}
	if conflict > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d orders filled against a finished entry", conflict, len(instructions)))
	}
	return nil
}
