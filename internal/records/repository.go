package records

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/sequence"
	"github.com/roach88/tradeledger/internal/store"
)

// Repository writes and pages the sequence-ordered tables.
type Repository struct {
	st       *store.Store
	seq      sequence.TxGenerator
	now      func() time.Time
	newID    func() string
	log      *slog.Logger
	maxLimit int
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock overrides the clock used for default timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator overrides row id generation (UUIDv7 by default).
func WithIDGenerator(gen func() string) Option {
	return func(r *Repository) { r.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Repository) { r.log = log }
}

// WithMaxLimit caps page sizes for every table (pager.MaxLimit by default).
func WithMaxLimit(n int) Option {
	return func(r *Repository) { r.maxLimit = n }
}

// New creates a repository. seq stamps every inserted row.
func New(st *store.Store, seq sequence.TxGenerator, opts ...Option) *Repository {
	r := &Repository{
		st:    st,
		seq:   seq,
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// stamp runs insert in a transaction with a fresh id and sequence number.
func (r *Repository) stamp(ctx context.Context, table string, insert func(tx *sql.Tx, id string, seq model.SequenceNumber, now time.Time) error) error {
	err := r.st.WithTx(ctx, func(tx *sql.Tx) error {
		seq, err := r.seq.NextTx(ctx, tx)
		if err != nil {
			return err
		}
		id := r.newID()
		if err := insert(tx, id, seq, r.now().UTC()); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		r.log.Debug("record stamped", "table", table, "id", id, "seq", int64(seq))
		return nil
	})
	if err != nil {
		return fmt.Errorf("add %s: %w", table, err)
	}
	return nil
}

// AddRecommendation inserts rec and returns it with ID, Seq and (when
// zero) CreatedAt filled in.
func (r *Repository) AddRecommendation(ctx context.Context, rec Recommendation) (Recommendation, error) {
	err := r.stamp(ctx, "recommendations", func(tx *sql.Tx, id string, seq model.SequenceNumber, now time.Time) error {
		rec.ID, rec.Seq = id, seq
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recommendations
			(id, seq, user_id, symbol, category, decision, diff, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.ID, int64(rec.Seq), rec.UserID, rec.Symbol, rec.Category,
			rec.Decision, rec.Diff, rec.Reason, rec.CreatedAt.UnixMilli())
		return err
	})
	if err != nil {
		return Recommendation{}, err
	}
	return rec, nil
}

// AddTrade inserts t and returns it with ID, Seq and (when zero)
// ExecutedAt filled in.
func (r *Repository) AddTrade(ctx context.Context, t Trade) (Trade, error) {
	err := r.stamp(ctx, "trades", func(tx *sql.Tx, id string, seq model.SequenceNumber, now time.Time) error {
		t.ID, t.Seq = id, seq
		if t.ExecutedAt.IsZero() {
			t.ExecutedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO trades
			(id, seq, user_id, entry_id, symbol, type, quantity, price, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, int64(t.Seq), t.UserID, t.EntryID, t.Symbol, string(t.Type),
			t.Quantity.String(), t.Price.String(), t.ExecutedAt.UnixMilli())
		return err
	})
	if err != nil {
		return Trade{}, err
	}
	return t, nil
}

// AddNotification inserts n and returns it with ID, Seq and (when zero)
// CreatedAt filled in.
func (r *Repository) AddNotification(ctx context.Context, n Notification) (Notification, error) {
	err := r.stamp(ctx, "notifications", func(tx *sql.Tx, id string, seq model.SequenceNumber, now time.Time) error {
		n.ID, n.Seq = id, seq
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, seq, user_id, kind, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, n.ID, int64(n.Seq), n.UserID, n.Kind, n.Message, n.CreatedAt.UnixMilli())
		return err
	})
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

// AddAuditRun inserts a and returns it with ID and Seq filled in. Zero
// StartedAt/FinishedAt default to now.
func (r *Repository) AddAuditRun(ctx context.Context, a AuditRun) (AuditRun, error) {
	err := r.stamp(ctx, "audit_runs", func(tx *sql.Tx, id string, seq model.SequenceNumber, now time.Time) error {
		a.ID, a.Seq = id, seq
		if a.StartedAt.IsZero() {
			a.StartedAt = now
		}
		if a.FinishedAt.IsZero() {
			a.FinishedAt = now
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO audit_runs (id, seq, user_id, module, status, summary, started_at, finished_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, int64(a.Seq), a.UserID, a.Module, a.Status, a.Summary,
			a.StartedAt.UnixMilli(), a.FinishedAt.UnixMilli())
		return err
	})
	if err != nil {
		return AuditRun{}, err
	}
	return a, nil
}
