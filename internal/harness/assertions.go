package harness

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/tradeledger/internal/ledger"
	"github.com/roach88/tradeledger/internal/pager"
	"github.com/roach88/tradeledger/internal/records"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s %s -> %s\n", ev.Step, ev.Action, ev.User, ev.Key, ev.Outcome)
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, empty when all pass.
func EvaluateAssertions(ctx context.Context, h *Harness, result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertHoldings:
			err = h.assertHoldings(ctx, a)
		case AssertLedgerEntry:
			err = h.assertLedgerEntry(ctx, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, a)
		case AssertTableCount:
			err = h.assertTableCount(ctx, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}

		if err != nil {
			var ae *AssertionError
			if errors.As(err, &ae) {
				ae.Trace = result.Trace
			}
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func (h *Harness) assertHoldings(ctx context.Context, a Assertion) error {
	items, err := h.holdings.Snapshot(ctx, a.User)
	if err != nil {
		return err
	}

	want := make([]string, len(a.Positions))
	for i, p := range a.Positions {
		want[i] = p.Symbol + ":" + p.Category
	}
	got := holdingLabels(items)

	if strings.Join(want, ",") != strings.Join(got, ",") {
		return &AssertionError{
			Type:     AssertHoldings,
			Expected: fmt.Sprintf("holdings of %s = %v", a.User, want),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

func (h *Harness) assertLedgerEntry(ctx context.Context, a Assertion) error {
	key := Step{Module: a.Module, Key: a.Key, User: a.User}.key()
	entry, err := h.ledger.Find(ctx, key)
	if errors.Is(err, ledger.ErrEntryNotFound) {
		return &AssertionError{
			Type:     AssertLedgerEntry,
			Expected: fmt.Sprintf("entry %s with status %s", key, a.Status),
			Actual:   "no entry",
		}
	}
	if err != nil {
		return err
	}

	if string(entry.Status) != a.Status || (a.Attempts > 0 && entry.AttemptCount != a.Attempts) {
		return &AssertionError{
			Type:     AssertLedgerEntry,
			Expected: fmt.Sprintf("entry %s status=%s attempts=%d", key, a.Status, a.Attempts),
			Actual:   fmt.Sprintf("status=%s attempts=%d", entry.Status, entry.AttemptCount),
		}
	}
	return nil
}

// assertTraceCount checks how many steps match the action (and outcome,
// when given).
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Action == a.Action && (a.Outcome == "" || ev.Outcome == a.Outcome) {
			count++
		}
	}

	if count != a.Count {
		what := a.Action
		if a.Outcome != "" {
			what += " -> " + a.Outcome
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%s exactly %d time(s)", what, a.Count),
			Actual:   fmt.Sprintf("%d time(s)", count),
		}
	}
	return nil
}

func (h *Harness) assertTableCount(ctx context.Context, a Assertion) error {
	f := records.UserFilter{UserID: a.User}

	var (
		n   int
		err error
	)
	switch a.Table {
	case "recommendations":
		n, err = total(ctx, h.records.Recommendations(), f)
	case "trades":
		n, err = total(ctx, h.records.Trades(), f)
	case "notifications":
		n, err = total(ctx, h.records.Notifications(), f)
	case "audit_runs":
		n, err = total(ctx, h.records.AuditRuns(), f)
	default:
		return fmt.Errorf("unknown table %q", a.Table)
	}
	if err != nil {
		return err
	}

	if n != a.Count {
		return &AssertionError{
			Type:     AssertTableCount,
			Expected: fmt.Sprintf("%d row(s) in %s", a.Count, a.Table),
			Actual:   fmt.Sprintf("%d row(s)", n),
		}
	}
	return nil
}

func total[T any](ctx context.Context, p *pager.Pager[T], f pager.Filter) (int, error) {
	page, err := p.Paginate(ctx, f, pager.Ascending, 1, 1)
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}
