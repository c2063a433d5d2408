package records

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/pager"
)

var recommendationTable = pager.Table[Recommendation]{
	Name:      "recommendations",
	Columns:   "id, seq, user_id, symbol, category, decision, diff, reason, created_at",
	IDColumn:  "id",
	SeqColumn: "seq",
	Scan: func(s pager.Scanner) (Recommendation, error) {
		var (
			rec     Recommendation
			seq     int64
			created int64
		)
		err := s.Scan(&rec.ID, &seq, &rec.UserID, &rec.Symbol, &rec.Category,
			&rec.Decision, &rec.Diff, &rec.Reason, &created)
		rec.Seq = model.SequenceNumber(seq)
		rec.CreatedAt = millis(created)
		return rec, err
	},
	ID: func(rec Recommendation) string { return rec.ID },
}

var tradeTable = pager.Table[Trade]{
	Name:      "trades",
	Columns:   "id, seq, user_id, entry_id, symbol, type, quantity, price, executed_at",
	IDColumn:  "id",
	SeqColumn: "seq",
	Scan: func(s pager.Scanner) (Trade, error) {
		var (
			t        Trade
			seq      int64
			typ      string
			executed int64
		)
		// decimal.Decimal implements sql.Scanner for the TEXT columns.
		err := s.Scan(&t.ID, &seq, &t.UserID, &t.EntryID, &t.Symbol, &typ,
			&t.Quantity, &t.Price, &executed)
		t.Seq = model.SequenceNumber(seq)
		t.Type = model.TradeType(typ)
		t.ExecutedAt = millis(executed)
		return t, err
	},
	ID: func(t Trade) string { return t.ID },
}

var notificationTable = pager.Table[Notification]{
	Name:      "notifications",
	Columns:   "id, seq, user_id, kind, message, created_at",
	IDColumn:  "id",
	SeqColumn: "seq",
	Scan: func(s pager.Scanner) (Notification, error) {
		var (
			n       Notification
			seq     int64
			created int64
		)
		err := s.Scan(&n.ID, &seq, &n.UserID, &n.Kind, &n.Message, &created)
		n.Seq = model.SequenceNumber(seq)
		n.CreatedAt = millis(created)
		return n, err
	},
	ID: func(n Notification) string { return n.ID },
}

var auditRunTable = pager.Table[AuditRun]{
	Name:      "audit_runs",
	Columns:   "id, seq, user_id, module, status, summary, started_at, finished_at",
	IDColumn:  "id",
	SeqColumn: "seq",
	Scan: func(s pager.Scanner) (AuditRun, error) {
		var (
			a                 AuditRun
			seq               int64
			started, finished int64
		)
		err := s.Scan(&a.ID, &seq, &a.UserID, &a.Module, &a.Status, &a.Summary, &started, &finished)
		a.Seq = model.SequenceNumber(seq)
		a.StartedAt = millis(started)
		a.FinishedAt = millis(finished)
		return a, err
	},
	ID: func(a AuditRun) string { return a.ID },
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Recommendations pages the recommendations table.
func (r *Repository) Recommendations() *pager.Pager[Recommendation] {
	return pager.New(r.st.DB(), recommendationTable, r.maxLimit)
}

// Trades pages the trades table.
func (r *Repository) Trades() *pager.Pager[Trade] {
	return pager.New(r.st.DB(), tradeTable, r.maxLimit)
}

// TradeForEntry returns the trade recorded for a ledger entry. ok is
// false when no fill was recorded against it.
func (r *Repository) TradeForEntry(ctx context.Context, entryID string) (t Trade, ok bool, err error) {
	if entryID == "" {
		return Trade{}, false, nil
	}
	page, err := r.Trades().Cursor(ctx, TradeFilter{EntryID: entryID}, pager.Ascending, "", 1)
	if err != nil {
		return Trade{}, false, fmt.Errorf("trade for entry %s: %w", entryID, err)
	}
	if len(page.Items) == 0 {
		return Trade{}, false, nil
	}
	return page.Items[0], true, nil
}

// Notifications pages the notifications table.
func (r *Repository) Notifications() *pager.Pager[Notification] {
	return pager.New(r.st.DB(), notificationTable, r.maxLimit)
}

// AuditRuns pages the audit_runs table.
func (r *Repository) AuditRuns() *pager.Pager[AuditRun] {
	return pager.New(r.st.DB(), auditRunTable, r.maxLimit)
}
