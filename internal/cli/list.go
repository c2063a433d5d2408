package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tradeledger/internal/pager"
	"github.com/roach88/tradeledger/internal/records"
)

// Listable table names.
const (
	TableRecommendations = "recommendations"
	TableTrades          = "trades"
	TableNotifications   = "notifications"
	TableAuditRuns       = "audit-runs"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	User    string
	Symbol  string
	Cursor  string
	Limit   int
	Asc     bool
	Page    int
	PerPage int
}

// ListResult is the output of the list command. Exactly one of the page
// kinds is filled, depending on --page.
type ListResult[T any] struct {
	Table  string               `json:"table"`
	Cursor *pager.CursorPage[T] `json:"cursor,omitempty"`
	Offset *pager.Page[T]       `json:"page,omitempty"`
	row    func(T) string
}

func (r ListResult[T]) WriteText(w io.Writer) {
	var items []T
	if r.Cursor != nil {
		items = r.Cursor.Items
	} else if r.Offset != nil {
		items = r.Offset.Items
	}

	if len(items) == 0 {
		fmt.Fprintf(w, "No %s\n", r.Table)
	}
	for _, item := range items {
		fmt.Fprintln(w, r.row(item))
	}

	switch {
	case r.Cursor != nil && r.Cursor.HasNextPage:
		fmt.Fprintf(w, "next cursor: %s\n", r.Cursor.NextCursor)
	case r.Offset != nil:
		fmt.Fprintf(w, "page %d of %d (%d total)\n", r.Offset.Page, r.Offset.TotalPages, r.Offset.Total)
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list <recommendations|trades|notifications|audit-runs>",
		Short: "Page through a sequence-ordered table",
		Long: `Page through a sequence-ordered table, newest first by default.

Cursor paging (the default) is stable under concurrent inserts: pass the
printed next cursor back with --cursor. Offset paging (--page) also reports
totals.

Examples:
  ledger list trades --user u1 --limit 50
  ledger list trades --user u1 --cursor 01890a5d-ac96-774b-bcce-b302099a8057
  ledger list audit-runs --page 2 --per-page 10 --asc`,
		Args: cobra.ExactArgs(1),
		ValidArgs: []string{
			TableRecommendations, TableTrades, TableNotifications, TableAuditRuns,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "filter by user id")
	cmd.Flags().StringVar(&opts.Symbol, "symbol", "", "filter by symbol (recommendations, trades)")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "row id to start from (inclusive)")
	cmd.Flags().IntVar(&opts.Limit, "limit", pager.DefaultLimit, "rows per cursor page")
	cmd.Flags().BoolVar(&opts.Asc, "asc", false, "oldest first")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "use offset paging and show this page (1-based)")
	cmd.Flags().IntVar(&opts.PerPage, "per-page", pager.DefaultLimit, "rows per offset page")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command, table string) error {
	if opts.Symbol != "" && (table == TableNotifications || table == TableAuditRuns) {
		return NewExitError(ExitCommandError, fmt.Sprintf("--symbol is not supported for %s", table))
	}

	a, err := openApp(opts.RootOptions)
	if err != nil {
		return err
	}
	defer a.Close(opts.RootOptions)

	ctx := cmd.Context()
	out := opts.formatter(cmd)

	switch table {
	case TableRecommendations:
		return listTable(ctx, opts, out, table, a.records.Recommendations(),
			records.RecommendationFilter{UserID: opts.User, Symbol: opts.Symbol},
			func(r records.Recommendation) string {
				return fmt.Sprintf("%6d  %s  %-10s %-12s %-6s diff=%g %s",
					r.Seq, r.ID, r.UserID, r.Symbol, r.Decision, r.Diff, r.Category)
			})
	case TableTrades:
		return listTable(ctx, opts, out, table, a.records.Trades(),
			records.TradeFilter{UserID: opts.User, Symbol: opts.Symbol},
			func(t records.Trade) string {
				return fmt.Sprintf("%6d  %s  %-10s %-4s %s %s @ %s",
					t.Seq, t.ID, t.UserID, t.Type, t.Quantity, t.Symbol, t.Price)
			})
	case TableNotifications:
		return listTable(ctx, opts, out, table, a.records.Notifications(),
			records.UserFilter{UserID: opts.User},
			func(n records.Notification) string {
				return fmt.Sprintf("%6d  %s  %-10s %-20s %s",
					n.Seq, n.ID, n.UserID, n.Kind, n.Message)
			})
	case TableAuditRuns:
		return listTable(ctx, opts, out, table, a.records.AuditRuns(),
			records.AuditFilter{UserID: opts.User},
			func(r records.AuditRun) string {
				return fmt.Sprintf("%6d  %s  %-10s %-10s %-9s %s  %s",
					r.Seq, r.ID, r.UserID, r.Module, r.Status, r.FinishedAt.Format(time.RFC3339), r.Summary)
			})
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown table %q: must be one of %s", table,
			strings.Join([]string{TableRecommendations, TableTrades, TableNotifications, TableAuditRuns}, ", ")))
	}
}

func listTable[T any](ctx context.Context, opts *ListOptions, out *OutputFormatter, table string, p *pager.Pager[T], f pager.Filter, row func(T) string) error {
	dir := pager.Descending
	if opts.Asc {
		dir = pager.Ascending
	}

	res := ListResult[T]{Table: table, row: row}
	if opts.Page > 0 {
		page, err := p.Paginate(ctx, f, dir, opts.Page, opts.PerPage)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list "+table, err)
		}
		res.Offset = &page
	} else {
		page, err := p.Cursor(ctx, f, dir, opts.Cursor, opts.Limit)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list "+table, err)
		}
		res.Cursor = &page
	}
	return out.Success(res)
}
