package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/tradeledger/internal/model"
)

// SeqResult is the output of the seq commands.
type SeqResult struct {
	Seq model.SequenceNumber `json:"seq"`
}

func (r SeqResult) WriteText(w io.Writer) {
	fmt.Fprintln(w, int64(r.Seq))
}

// NewSeqCommand creates the seq command group.
func NewSeqCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seq",
		Short: "Issue or inspect global sequence numbers",
		Long: `Issue or inspect global sequence numbers.

Sequence numbers are strictly increasing across every process sharing the
database and are never reissued.

Examples:
  ledger seq next --db ./ledger.db
  ledger seq current --db ./ledger.db --format json`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "next",
		Short: "Issue the next sequence number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close(opts)

			seq, err := a.seq.Next(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to issue sequence number", err)
			}
			return opts.formatter(cmd).Success(SeqResult{Seq: seq})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Show the highest sequence number issued (0 if none)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts)
			if err != nil {
				return err
			}
			defer a.Close(opts)

			seq, err := a.seq.Current(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read sequence", err)
			}
			return opts.formatter(cmd).Success(SeqResult{Seq: seq})
		},
	})

	return cmd
}
