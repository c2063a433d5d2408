package holdings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/store"
)

// Repository reads and replaces holdings snapshots.
type Repository struct {
	st  *store.Store
	now func() time.Time
}

// NewRepository creates a repository over st. A nil now uses time.Now.
func NewRepository(st *store.Store, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	return &Repository{st: st, now: now}
}

// Snapshot returns the user's holdings ordered by index. A user with no
// holdings gets an empty, non-nil slice.
func (r *Repository) Snapshot(ctx context.Context, userID string) ([]model.HoldingItem, error) {
	rows, err := r.st.DB().QueryContext(ctx, `
		SELECT symbol, category, idx
		FROM holdings
		WHERE user_id = ?
		ORDER BY idx ASC, symbol ASC, category ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", userID, err)
	}
	defer rows.Close()

	items := []model.HoldingItem{}
	for rows.Next() {
		var item model.HoldingItem
		if err := rows.Scan(&item.Symbol, &item.Category, &item.Index); err != nil {
			return nil, fmt.Errorf("snapshot %s: scan: %w", userID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot %s: iterate: %w", userID, err)
	}
	return items, nil
}

// Replace swaps the user's snapshot for items in one transaction.
func (r *Repository) Replace(ctx context.Context, userID string, items []model.HoldingItem) error {
	updatedAt := r.now().UnixMilli()
	err := r.st.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		for _, item := range items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO holdings (user_id, symbol, category, idx, updated_at)
				VALUES (?, ?, ?, ?, ?)
			`, userID, item.Symbol, item.Category, item.Index, updatedAt)
			if err != nil {
				return fmt.Errorf("insert %s/%s: %w", item.Symbol, item.Category, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace holdings %s: %w", userID, err)
	}
	return nil
}
