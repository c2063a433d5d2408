package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tradeledger/internal/config"
	"github.com/roach88/tradeledger/internal/execution"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	Database   string // overrides database.path from the config file

	// Set by the root command before any subcommand runs.
	Config *config.Config
	Logger *slog.Logger

	// exchange replaces the paper exchange in execute (tests only).
	exchange execution.Exchange
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ledger CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Trade ledger: sequencing, at-most-once execution, holdings reconciliation",
		Long: `Operate the trade ledger store.

The ledger issues global sequence numbers, claims trade instructions so
each one reaches the exchange at most once, and reconciles per-user
holdings from settled executions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}
			if opts.Database != "" {
				cfg.Database.Path = opts.Database
			}
			opts.Config = cfg
			opts.Logger = newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewSeqCommand(opts))
	cmd.AddCommand(NewClaimCommand(opts))
	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewFailCommand(opts))
	cmd.AddCommand(NewEntryCommand(opts))
	cmd.AddCommand(NewExecuteCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewHoldingsCommand(opts))
	cmd.AddCommand(NewRecommendCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))

	return cmd, opts
}

// Execute runs the CLI with args and returns the process exit code.
// Errors are reported on stdout as JSON under --format json, and on
// stderr as text otherwise.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	f := &OutputFormatter{Format: opts.Format, Writer: stderr}
	if opts.Format == "json" {
		f.Writer = stdout
	}
	_ = f.Error(errorCode(err), err.Error(), nil)
	return GetExitCode(err)
}

// newLogger builds the slog logger for a command run. --verbose forces
// debug level.
func newLogger(w io.Writer, cfg config.Log, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}
