package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/roach88/tradeledger/internal/execution"
	"github.com/roach88/tradeledger/internal/model"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Schedule  string
	Once      bool
	Fail      bool
	FailAfter time.Duration
}

// SweepResult is the output of one sweep pass.
type SweepResult struct {
	CheckedAt time.Time           `json:"checked_at"`
	Stale     []model.LedgerEntry `json:"stale"`
	Failed    int                 `json:"failed"`
	// InFlight counts stale entries left alone by --fail because their
	// attempt started too recently.
	InFlight int `json:"in_flight"`
}

func (r SweepResult) WriteText(w io.Writer) {
	fmt.Fprintf(w, "%s: %d stale entries", r.CheckedAt.Format(time.RFC3339), len(r.Stale))
	if r.Failed > 0 {
		fmt.Fprintf(w, " (%d marked failed)", r.Failed)
	}
	if r.InFlight > 0 {
		fmt.Fprintf(w, " (%d still in flight)", r.InFlight)
	}
	fmt.Fprintln(w)
	for _, e := range r.Stale {
		fmt.Fprintf(w, "  %s  %s  expired %s\n", e.ID, e.IdempotencyKey, e.Validity.ExpiresAt.Format(time.RFC3339))
	}
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Report processing entries whose validity has expired",
		Long: `Report processing entries whose validity has expired.

Without --once the sweep runs on a cron schedule (sweep.schedule in the
config, or --schedule) until interrupted. With --fail the stale entries
are marked failed so a retry policy can pick them up. Only attempts that
started at least sweep.fail_after ago (or --fail-after) are failed; a
younger attempt may still be placing its order.

Examples:
  ledger sweep --once
  ledger sweep --schedule "*/5 * * * *" --fail`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "cron schedule (default from config)")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single pass and exit")
	cmd.Flags().BoolVar(&opts.Fail, "fail", false, "mark stale entries failed")
	cmd.Flags().DurationVar(&opts.FailAfter, "fail-after", 0, "minimum attempt age for --fail (default from config)")

	return cmd
}

func runSweep(opts *SweepOptions, cmd *cobra.Command) error {
	schedule := opts.Schedule
	if schedule == "" {
		schedule = opts.Config.Sweep.Schedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid schedule %q", schedule), err)
	}
	failAfter := opts.FailAfter
	if failAfter <= 0 {
		failAfter = opts.Config.Sweep.FailAfterDuration()
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close(opts.RootOptions)

	out := opts.formatter(cmd)
	log := opts.Logger

	if opts.Once {
		res, err := sweep(cmd.Context(), a, opts.Fail, failAfter, log)
		if err != nil {
			return WrapExitError(ExitFailure, "sweep failed", err)
		}
		return out.Success(res)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cron.New(
		cron.WithLogger(cronLogger{log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log})),
	)
	if _, err := c.AddFunc(schedule, func() {
		res, err := sweep(ctx, a, opts.Fail, failAfter, log)
		if err != nil {
			log.Error("sweep failed", "error", err)
			return
		}
		if err := out.Success(res); err != nil {
			log.Error("failed to write sweep result", "error", err)
		}
	}); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid schedule %q", schedule), err)
	}

	log.Info("sweep scheduled", "schedule", schedule)
	c.Start()
	<-ctx.Done()

	log.Info("stopping sweep")
	<-c.Stop().Done()
	return nil
}

// sweep lists stale entries and, when fail is set, fails those whose
// attempt started at least failAfter ago.
func sweep(ctx context.Context, a *app, fail bool, failAfter time.Duration, log *slog.Logger) (SweepResult, error) {
	now := time.Now()
	stale, err := a.ledger.ListStale(ctx, now)
	if err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{CheckedAt: now, Stale: stale}
	if !fail {
		return res, nil
	}
	for _, e := range stale {
		if now.Sub(e.StartedAt) < failAfter {
			res.InFlight++
			continue
		}
		entry, err := a.ledger.Fail(ctx, e.ID, execution.ReasonExpired)
		if err != nil {
			return res, err
		}
		// A worker may have finished the entry between the scan and here.
		if entry.Status == model.StatusFailed && entry.Error == execution.ReasonExpired {
			res.Failed++
			log.Debug("marked stale entry failed", "entry", e.ID)
		}
	}
	return res, nil
}

// cronLogger routes cron's logging through slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
