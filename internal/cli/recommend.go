package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tradeledger/internal/records"
)

// RecommendResult is the output of the recommend command.
type RecommendResult struct {
	records.Recommendation
}

func (r RecommendResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Recorded recommendation %s (seq %d)\n", r.ID, r.Seq)
}

// NewRecommendCommand creates the recommend command.
func NewRecommendCommand(opts *RootOptions) *cobra.Command {
	var rec records.Recommendation

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Record a recommendation decision",
		Long: `Record a recommendation decision, stamped with the next sequence number.

Example:
  ledger recommend --user u1 --symbol BTC/KRW --decision buy --diff 0.5 --category major`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close(opts)

			saved, err := a.records.AddRecommendation(cmd.Context(), rec)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to record recommendation", err)
			}
			return opts.formatter(cmd).Success(RecommendResult{Recommendation: saved})
		},
	}

	cmd.Flags().StringVar(&rec.UserID, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&rec.Symbol, "symbol", "", "symbol (required)")
	_ = cmd.MarkFlagRequired("symbol")
	cmd.Flags().StringVar(&rec.Decision, "decision", "", "decision label, e.g. buy|sell|hold (required)")
	_ = cmd.MarkFlagRequired("decision")
	cmd.Flags().Float64Var(&rec.Diff, "diff", 0, "position change as a fraction of the prior position (-1 = sell all)")
	cmd.Flags().StringVar(&rec.Category, "category", "", "position category")
	cmd.Flags().StringVar(&rec.Reason, "reason", "", "free-form rationale")

	return cmd
}
