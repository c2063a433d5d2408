package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tradeledger/internal/holdings"
	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/reconcile"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	User  string
	Input string
}

// ReconcileResult is the output of the reconcile command.
type ReconcileResult struct {
	holdings.Result
}

func (r ReconcileResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Reconciled %s: %d held (+%d -%d)\n", r.UserID, len(r.Holdings), len(r.Added), len(r.Removed))
	writeHoldings(w, r.Holdings)
}

// HoldingsResult is the output of the holdings command.
type HoldingsResult struct {
	UserID   string              `json:"user_id"`
	Holdings []model.HoldingItem `json:"holdings"`
}

func (r HoldingsResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Holdings for %s: %d\n", r.UserID, len(r.Holdings))
	writeHoldings(w, r.Holdings)
}

func writeHoldings(w io.Writer, items []model.HoldingItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, h := range items {
		fmt.Fprintf(w, "  %3d  %-12s %s\n", h.Index, h.Symbol, h.Category)
	}
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Fold settled executions into a user's holdings",
		Long: `Fold a batch of settled executions into a user's holdings snapshot.

Buys with a known category add a position. Sells with diff -1 remove it;
a sell without a category removes every category holding the symbol.
Partial sells change nothing. Trade labels come from reconcile.buy_type
and reconcile.sell_type in the config.

Example:
  ledger reconcile --user u1 --input executions.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&opts.Input, "input", "", "executions YAML file (required)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runReconcile(opts *ReconcileOptions, cmd *cobra.Command) error {
	var file ExecutionsFile
	if err := decodeStrict(opts.Input, &file); err != nil {
		return WrapExitError(ExitCommandError, "invalid executions file", err)
	}
	executions, err := file.ToExecutions()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid executions file", err)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close(opts.RootOptions)

	res, err := a.service.Reconcile(cmd.Context(), opts.User, executions)
	if reconcile.IsContractError(err) {
		return WrapExitError(ExitFailure, "stored holdings violate the reconciler contract", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "reconciliation failed", err)
	}
	return opts.formatter(cmd).Success(ReconcileResult{Result: res})
}

// NewHoldingsCommand creates the holdings command.
func NewHoldingsCommand(opts *RootOptions) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "holdings",
		Short: "Show a user's holdings snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close(opts)

			items, err := a.holdings.Snapshot(cmd.Context(), user)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read holdings", err)
			}
			return opts.formatter(cmd).Success(HoldingsResult{UserID: user, Holdings: items})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
