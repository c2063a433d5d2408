// Package sequence issues the global, strictly increasing sequence numbers
// stamped on every sequence-ordered table.
//
// Numbers come from an AUTOINCREMENT row insert in the shared store, so
// uniqueness and order hold across independent processes. Nothing here
// keeps an in-process counter.
package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/store"
)

// Generator issues sequence numbers.
type Generator interface {
	// Next returns a number greater than every number previously issued.
	Next(ctx context.Context) (model.SequenceNumber, error)
	// Current returns the highest number issued so far, or model.NoSequence.
	// The value may be stale by the time it is read; use it for diagnostics
	// only.
	Current(ctx context.Context) (model.SequenceNumber, error)
}

// TxGenerator issues numbers inside a caller-owned transaction, so a row
// and its sequence number commit or roll back together.
type TxGenerator interface {
	Generator
	NextTx(ctx context.Context, q store.Querier) (model.SequenceNumber, error)
}

// Store is the store-backed Generator.
type Store struct {
	db *sql.DB
}

var _ TxGenerator = (*Store)(nil)

// New creates a generator backed by st.
func New(st *store.Store) *Store {
	return &Store{db: st.DB()}
}

// Next inserts a counter row and returns its generated id.
// Store errors are returned unchanged in meaning; no number is ever
// fabricated locally.
func (g *Store) Next(ctx context.Context) (model.SequenceNumber, error) {
	return g.NextTx(ctx, g.db)
}

// NextTx is Next executed through q. When q is a transaction that rolls
// back, the number is released with it and the next caller receives it
// again. Nothing was committed under it, so no two committed rows ever
// share a number; numbers a caller saw but never committed carry no
// guarantee.
func (g *Store) NextTx(ctx context.Context, q store.Querier) (model.SequenceNumber, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO sequence_counter DEFAULT VALUES`)
	if err != nil {
		return model.NoSequence, fmt.Errorf("next sequence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.NoSequence, fmt.Errorf("next sequence: last insert id: %w", err)
	}
	return model.SequenceNumber(id), nil
}

// Current reads the AUTOINCREMENT high-water mark. It survives pruning of
// counter rows, unlike MAX(seq).
func (g *Store) Current(ctx context.Context) (model.SequenceNumber, error) {
	var seq int64
	err := g.db.QueryRowContext(ctx,
		`SELECT seq FROM sqlite_sequence WHERE name = 'sequence_counter'`,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NoSequence, nil
	}
	if err != nil {
		return model.NoSequence, fmt.Errorf("current sequence: %w", err)
	}
	return model.SequenceNumber(seq), nil
}

// Prune deletes counter rows below the given number. Issued numbers are
// never reissued after pruning.
func (g *Store) Prune(ctx context.Context, below model.SequenceNumber) (int64, error) {
	res, err := g.db.ExecContext(ctx, `DELETE FROM sequence_counter WHERE seq < ?`, int64(below))
	if err != nil {
		return 0, fmt.Errorf("prune sequence: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune sequence: rows affected: %w", err)
	}
	return n, nil
}
