package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tradeledger/internal/canon"
	"github.com/roach88/tradeledger/internal/ledger"
	"github.com/roach88/tradeledger/internal/model"
)

// ClaimOptions holds flags for the claim command.
type ClaimOptions struct {
	*RootOptions
	Module    string
	Key       string
	User      string
	Payload   string
	ExpiresIn time.Duration
}

// ClaimResult is the output of the claim command.
type ClaimResult struct {
	ledger.Claim
}

func (r ClaimResult) WriteText(w io.Writer) {
	if r.IsNew {
		fmt.Fprintf(w, "Claimed %s (new)\n", r.Entry.ID)
	} else {
		fmt.Fprintf(w, "Already claimed %s (skip)\n", r.Entry.ID)
	}
	writeEntry(w, r.Entry)
	if r.PayloadMismatch {
		fmt.Fprintln(w, "WARNING: payload differs from the claimed instruction")
	}
	if r.Stale {
		fmt.Fprintln(w, "WARNING: claim is past its expiry")
	}
}

// EntryResult is the output of complete, fail and entry.
type EntryResult struct {
	model.LedgerEntry
}

func (r EntryResult) WriteText(w io.Writer) {
	writeEntry(w, r.LedgerEntry)
}

func writeEntry(w io.Writer, e model.LedgerEntry) {
	fmt.Fprintf(w, "  id:       %s\n", e.ID)
	fmt.Fprintf(w, "  key:      %s\n", e.IdempotencyKey)
	fmt.Fprintf(w, "  status:   %s\n", e.Status)
	fmt.Fprintf(w, "  attempts: %d\n", e.AttemptCount)
	fmt.Fprintf(w, "  started:  %s\n", e.StartedAt.Format(time.RFC3339))
	if !e.Validity.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "  expires:  %s\n", e.Validity.ExpiresAt.Format(time.RFC3339))
	}
	if !e.FinishedAt.IsZero() {
		fmt.Fprintf(w, "  finished: %s\n", e.FinishedAt.Format(time.RFC3339))
	}
	if e.Result != "" {
		fmt.Fprintf(w, "  result:   %s\n", e.Result)
	}
	if e.Error != "" {
		fmt.Fprintf(w, "  error:    %s\n", e.Error)
	}
}

// NewClaimCommand creates the claim command.
func NewClaimCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ClaimOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim an instruction in the execution ledger",
		Long: `Claim an instruction in the execution ledger.

The first claim for a (module, key, user) tuple is new and may proceed to
the exchange. Every later claim reports the existing entry and must not.
The payload is hashed canonically; a later claim with a different payload
is flagged.

Examples:
  ledger claim --module trade --key msg-1 --user u1 --payload '{"symbol":"BTC/KRW"}'
  ledger claim --module trade --key msg-1 --user u1 --expires-in 30s`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClaim(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "logical workflow (required)")
	_ = cmd.MarkFlagRequired("module")
	cmd.Flags().StringVar(&opts.Key, "key", "", "caller idempotency key (required)")
	_ = cmd.MarkFlagRequired("key")
	cmd.Flags().StringVar(&opts.User, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")
	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "instruction payload as a JSON object")
	cmd.Flags().DurationVar(&opts.ExpiresIn, "expires-in", 0, "validity window from now (0 = no expiry)")

	return cmd
}

func runClaim(opts *ClaimOptions, cmd *cobra.Command) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(opts.Payload), &payload); err != nil {
		return WrapExitError(ExitCommandError, "payload must be a JSON object", err)
	}
	hash, err := canon.PayloadHash(payload)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash payload", err)
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close(opts.RootOptions)

	now := time.Now()
	validity := model.Validity{GeneratedAt: now}
	if opts.ExpiresIn > 0 {
		validity.ExpiresAt = now.Add(opts.ExpiresIn)
	}

	claim, err := a.ledger.Claim(cmd.Context(), ledger.ClaimRequest{
		Key:         model.IdempotencyKey{Module: opts.Module, MessageKey: opts.Key, UserID: opts.User},
		PayloadHash: hash,
		Validity:    validity,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidClaim) {
			return WrapExitError(ExitCommandError, "invalid claim", err)
		}
		return WrapExitError(ExitFailure, "claim failed", err)
	}
	return opts.formatter(cmd).Success(ClaimResult{Claim: claim})
}

// NewCompleteCommand creates the complete command.
func NewCompleteCommand(opts *RootOptions) *cobra.Command {
	var result string

	cmd := &cobra.Command{
		Use:   "complete <entry-id>",
		Short: "Mark a processing entry completed",
		Long: `Mark a processing entry completed.

Completing an entry that is already completed or failed changes nothing and
is not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return finishEntry(opts, cmd, args[0], func(l *ledger.Ledger) (model.LedgerEntry, error) {
				return l.Complete(cmd.Context(), args[0], result)
			})
		},
	}
	cmd.Flags().StringVar(&result, "result", "", "result payload to store")
	return cmd
}

// NewFailCommand creates the fail command.
func NewFailCommand(opts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "fail <entry-id>",
		Short: "Mark a processing entry failed",
		Long: `Mark a processing entry failed.

Failing an entry that is already completed or failed changes nothing and is
not an error.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return finishEntry(opts, cmd, args[0], func(l *ledger.Ledger) (model.LedgerEntry, error) {
				return l.Fail(cmd.Context(), args[0], reason)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

// NewEntryCommand creates the entry command.
func NewEntryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "entry <entry-id>",
		Short: "Show a ledger entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return finishEntry(opts, cmd, args[0], func(l *ledger.Ledger) (model.LedgerEntry, error) {
				return l.Get(cmd.Context(), args[0])
			})
		},
	}
}

func finishEntry(opts *RootOptions, cmd *cobra.Command, id string, op func(*ledger.Ledger) (model.LedgerEntry, error)) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer a.Close(opts)

	entry, err := op(a.ledger)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		return WrapExitError(ExitFailure, fmt.Sprintf("entry %s not found", id), err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "ledger operation failed", err)
	}
	return opts.formatter(cmd).Success(EntryResult{LedgerEntry: entry})
}
