package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/store"
)

const entryColumns = `id, module, message_key, user_id, status, attempt_count, payload_hash,
	generated_at, expires_at, started_at, finished_at, result, error`

// Ledger is the store-backed execution ledger.
type Ledger struct {
	st    *store.Store
	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the wall clock used for started/finished stamps and
// staleness checks.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides entry id generation (UUIDv7 by default).
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New creates a ledger over st.
func New(st *store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		st:    st,
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ClaimRequest is everything the ledger needs to claim an instruction.
type ClaimRequest struct {
	Key         model.IdempotencyKey
	PayloadHash string
	Validity    model.Validity
}

func (r ClaimRequest) validate() error {
	switch {
	case r.Key.Module == "":
		return fmt.Errorf("%w: module is required", ErrInvalidClaim)
	case r.Key.MessageKey == "":
		return fmt.Errorf("%w: message key is required", ErrInvalidClaim)
	case r.Key.UserID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidClaim)
	case r.PayloadHash == "":
		return fmt.Errorf("%w: payload hash is required", ErrInvalidClaim)
	}
	return nil
}

// Claim is the outcome of Claim or Reclaim.
//
// IsNew=false means another attempt owns (or owned) the instruction and the
// caller must not call the exchange. PayloadMismatch and Stale are
// surfaced, not resolved.
type Claim struct {
	IsNew           bool              `json:"is_new"`
	Entry           model.LedgerEntry `json:"entry"`
	PayloadMismatch bool              `json:"payload_mismatch"`
	Stale           bool              `json:"stale"`
}

// Claim inserts a processing entry for req.Key, or returns the existing one.
//
// The insert itself is the race-free test: ON CONFLICT DO NOTHING plus
// RowsAffected decides IsNew inside one transaction.
func (l *Ledger) Claim(ctx context.Context, req ClaimRequest) (Claim, error) {
	if err := req.validate(); err != nil {
		return Claim{}, err
	}

	now := l.now()
	var claim Claim
	err := l.st.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO execution_ledger
			(id, module, message_key, user_id, status, attempt_count, payload_hash,
			 generated_at, expires_at, started_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
			ON CONFLICT(module, message_key, user_id) DO NOTHING
		`,
			l.newID(),
			req.Key.Module,
			req.Key.MessageKey,
			req.Key.UserID,
			string(model.StatusProcessing),
			req.PayloadHash,
			nullMillis(req.Validity.GeneratedAt),
			nullMillis(req.Validity.ExpiresAt),
			now.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		entry, err := findByKey(ctx, tx, req.Key)
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}

		claim = Claim{
			IsNew: affected > 0,
			Entry: entry,
			Stale: entry.Stale(now),
		}
		claim.PayloadMismatch = !claim.IsNew && entry.PayloadHash != req.PayloadHash
		return nil
	})
	if err != nil {
		return Claim{}, fmt.Errorf("claim %s: %w", req.Key, err)
	}

	if claim.IsNew {
		l.log.Info("instruction claimed",
			"entry_id", claim.Entry.ID,
			"key", req.Key.String(),
		)
	} else {
		l.log.Debug("instruction already claimed, skipping (idempotent)",
			"entry_id", claim.Entry.ID,
			"key", req.Key.String(),
			"status", claim.Entry.Status,
			"payload_mismatch", claim.PayloadMismatch,
		)
	}
	return claim, nil
}

// Complete moves a processing entry to completed with result.
// On an already-terminal entry it changes nothing and returns the stored entry.
func (l *Ledger) Complete(ctx context.Context, id, result string) (model.LedgerEntry, error) {
	return l.finish(ctx, id, model.StatusCompleted, result, "")
}

// Fail moves a processing entry to failed with reason.
// On an already-terminal entry it changes nothing and returns the stored entry.
func (l *Ledger) Fail(ctx context.Context, id, reason string) (model.LedgerEntry, error) {
	return l.finish(ctx, id, model.StatusFailed, "", reason)
}

func (l *Ledger) finish(ctx context.Context, id string, status model.Status, result, reason string) (model.LedgerEntry, error) {
	var (
		entry      model.LedgerEntry
		transition bool
	)
	err := l.st.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE execution_ledger
			SET status = ?, finished_at = ?, result = ?, error = ?
			WHERE id = ? AND status = ?
		`,
			string(status),
			l.now().UnixMilli(),
			nullString(result),
			nullString(reason),
			id,
			string(model.StatusProcessing),
		)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		transition = affected > 0

		entry, err = findByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("%s entry %s: %w", status, id, err)
	}

	if transition {
		l.log.Info("ledger entry finished", "entry_id", id, "status", status)
	} else {
		l.log.Debug("ledger entry already terminal, ignoring",
			"entry_id", id, "requested", status, "status", entry.Status)
	}
	return entry, nil
}

// Reclaim re-opens an existing entry for another attempt when policy says
// so. It is a compare-and-swap on (id, status, attempt_count): among
// concurrent reclaimers of the same observed entry exactly one gets
// IsNew=true. A non-zero validity replaces the stored one (for example a
// fresh quote).
func (l *Ledger) Reclaim(ctx context.Context, entry model.LedgerEntry, policy RetryPolicy, validity model.Validity) (Claim, error) {
	now := l.now()
	if policy == nil {
		policy = NeverRetry
	}
	if policy.Decide(entry, now) != DecisionRetry {
		return Claim{Entry: entry, Stale: entry.Stale(now)}, nil
	}

	if validity == (model.Validity{}) {
		validity = entry.Validity
	}

	var claim Claim
	err := l.st.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE execution_ledger
			SET status = ?, attempt_count = attempt_count + 1,
			    generated_at = ?, expires_at = ?, started_at = ?,
			    finished_at = NULL, result = NULL, error = NULL
			WHERE id = ? AND status = ? AND attempt_count = ?
		`,
			string(model.StatusProcessing),
			nullMillis(validity.GeneratedAt),
			nullMillis(validity.ExpiresAt),
			now.UnixMilli(),
			entry.ID,
			string(entry.Status),
			entry.AttemptCount,
		)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}

		current, err := findByID(ctx, tx, entry.ID)
		if err != nil {
			return err
		}
		claim = Claim{IsNew: affected > 0, Entry: current, Stale: current.Stale(now)}
		return nil
	})
	if err != nil {
		return Claim{}, fmt.Errorf("reclaim entry %s: %w", entry.ID, err)
	}

	if claim.IsNew {
		l.log.Info("ledger entry reclaimed",
			"entry_id", entry.ID, "attempt", claim.Entry.AttemptCount)
	}
	return claim, nil
}

// Get returns the entry with the given id.
func (l *Ledger) Get(ctx context.Context, id string) (model.LedgerEntry, error) {
	entry, err := findByID(ctx, l.st.DB(), id)
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("get entry %s: %w", id, err)
	}
	return entry, nil
}

// Find returns the entry for an idempotency key.
func (l *Ledger) Find(ctx context.Context, key model.IdempotencyKey) (model.LedgerEntry, error) {
	entry, err := findByKey(ctx, l.st.DB(), key)
	if err != nil {
		return model.LedgerEntry{}, fmt.Errorf("find entry %s: %w", key, err)
	}
	return entry, nil
}

// ListStale returns processing entries whose validity expired before now,
// oldest first. Diagnostic only; what to do with them is the caller's call.
func (l *Ledger) ListStale(ctx context.Context, now time.Time) ([]model.LedgerEntry, error) {
	rows, err := l.st.DB().QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM execution_ledger
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?
		ORDER BY expires_at ASC, id ASC
	`, string(model.StatusProcessing), now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list stale entries: %w", err)
	}
	defer rows.Close()

	entries := []model.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list stale entries: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stale entries: iterate: %w", err)
	}
	return entries, nil
}

func findByID(ctx context.Context, q store.Querier, id string) (model.LedgerEntry, error) {
	row := q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM execution_ledger WHERE id = ?`, id)
	return scanEntryRow(row)
}

func findByKey(ctx context.Context, q store.Querier, key model.IdempotencyKey) (model.LedgerEntry, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM execution_ledger
		WHERE module = ? AND message_key = ? AND user_id = ?
	`, key.Module, key.MessageKey, key.UserID)
	return scanEntryRow(row)
}

func scanEntryRow(row *sql.Row) (model.LedgerEntry, error) {
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LedgerEntry{}, ErrEntryNotFound
	}
	return e, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (model.LedgerEntry, error) {
	var (
		e                                  model.LedgerEntry
		status                             string
		generatedAt, expiresAt, finishedAt sql.NullInt64
		startedAt                          int64
		result, reason                     sql.NullString
	)
	if err := s.Scan(
		&e.ID, &e.Module, &e.MessageKey, &e.UserID, &status, &e.AttemptCount, &e.PayloadHash,
		&generatedAt, &expiresAt, &startedAt, &finishedAt, &result, &reason,
	); err != nil {
		return model.LedgerEntry{}, err
	}

	st, err := model.ParseStatus(status)
	if err != nil {
		return model.LedgerEntry{}, err
	}
	e.Status = st
	e.Validity = model.Validity{
		GeneratedAt: fromMillis(generatedAt),
		ExpiresAt:   fromMillis(expiresAt),
	}
	e.StartedAt = time.UnixMilli(startedAt).UTC()
	e.FinishedAt = fromMillis(finishedAt)
	e.Result = result.String
	e.Error = reason.String
	return e, nil
}

func nullMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
