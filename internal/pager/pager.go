package pager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/store"
)

// Direction is the sort direction over seq.
type Direction int

const (
	Descending Direction = iota
	Ascending
)

func (d Direction) String() string {
	if d == Ascending {
		return "asc"
	}
	return "desc"
}

// ParseDirection accepts "asc" or "desc" (empty means desc).
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "", "desc":
		return Descending, nil
	case "asc":
		return Ascending, nil
	default:
		return Descending, fmt.Errorf("invalid sort direction %q", s)
	}
}

// Default limits.
const (
	DefaultLimit = 20
	MaxLimit     = 200
)

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Table describes a sequence-ordered table to the pager.
type Table[T any] struct {
	Name      string // table name
	Columns   string // select list, in the order Scan expects
	IDColumn  string // column the cursor token resolves against
	SeqColumn string // sequence column
	Scan      func(Scanner) (T, error)
	ID        func(T) string
}

// Page is an offset-based result.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// CursorPage is a keyset-based result. NextCursor is empty when
// HasNextPage is false.
type CursorPage[T any] struct {
	Items       []T    `json:"items"`
	HasNextPage bool   `json:"has_next_page"`
	NextCursor  string `json:"next_cursor,omitempty"`
}

// Pager pages through one table.
type Pager[T any] struct {
	db       store.Querier
	table    Table[T]
	maxLimit int
}

// New creates a pager for table. maxLimit <= 0 uses MaxLimit.
func New[T any](db store.Querier, table Table[T], maxLimit int) *Pager[T] {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	return &Pager[T]{db: db, table: table, maxLimit: maxLimit}
}

func (p *Pager[T]) clampLimit(n int) int {
	if n <= 0 {
		n = DefaultLimit
	}
	if n > p.maxLimit {
		n = p.maxLimit
	}
	return n
}

func (p *Pager[T]) orderBy(dir Direction) string {
	if dir == Ascending {
		return p.table.SeqColumn + " ASC"
	}
	return p.table.SeqColumn + " DESC"
}

func filterSQL(f Filter) (string, []any, error) {
	var pred Predicate
	if f != nil {
		pred = f.Predicate()
	}
	sql, params, err := Compile(pred)
	if err != nil {
		return "", nil, fmt.Errorf("compile filter: %w", err)
	}
	return sql, params, nil
}

// Paginate returns one offset-based page. page < 1 is treated as 1;
// perPage is clamped to [1, maxLimit].
func (p *Pager[T]) Paginate(ctx context.Context, f Filter, dir Direction, page, perPage int) (Page[T], error) {
	if page < 1 {
		page = 1
	}
	perPage = p.clampLimit(perPage)

	where, params, err := filterSQL(f)
	if err != nil {
		return Page[T]{}, err
	}

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", p.table.Name, where)
	if err := p.db.QueryRowContext(ctx, countQuery, params...).Scan(&total); err != nil {
		return Page[T]{}, fmt.Errorf("paginate %s: count: %w", p.table.Name, err)
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		p.table.Columns, p.table.Name, where, p.orderBy(dir))
	args := append(append([]any(nil), params...), perPage, (page-1)*perPage)

	items, err := p.query(ctx, query, args...)
	if err != nil {
		return Page[T]{}, fmt.Errorf("paginate %s: %w", p.table.Name, err)
	}

	return Page[T]{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + perPage - 1) / perPage,
	}, nil
}

// Cursor returns one keyset page starting at the row identified by cursor
// (inclusive). An empty or unresolvable cursor starts from the first row.
// NextCursor identifies the first row of the following page.
func (p *Pager[T]) Cursor(ctx context.Context, f Filter, dir Direction, cursor string, limit int) (CursorPage[T], error) {
	limit = p.clampLimit(limit)

	where, params, err := filterSQL(f)
	if err != nil {
		return CursorPage[T]{}, err
	}

	if cursor != "" {
		seq, ok, err := p.resolve(ctx, cursor)
		if err != nil {
			return CursorPage[T]{}, fmt.Errorf("cursor %s: %w", p.table.Name, err)
		}
		if ok {
			op := "<="
			if dir == Ascending {
				op = ">="
			}
			where = fmt.Sprintf("(%s) AND %s %s ?", where, p.table.SeqColumn, op)
			params = append(params, int64(seq))
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s LIMIT ?",
		p.table.Columns, p.table.Name, where, p.orderBy(dir))
	args := append(append([]any(nil), params...), limit+1)

	items, err := p.query(ctx, query, args...)
	if err != nil {
		return CursorPage[T]{}, fmt.Errorf("cursor %s: %w", p.table.Name, err)
	}

	out := CursorPage[T]{Items: items}
	if len(items) > limit {
		out.HasNextPage = true
		out.NextCursor = p.table.ID(items[limit])
		out.Items = items[:limit]
	}
	return out, nil
}

// resolve maps a cursor token to its row's sequence number. A missing row
// reports ok=false rather than an error.
func (p *Pager[T]) resolve(ctx context.Context, cursor string) (model.SequenceNumber, bool, error) {
	var seq int64
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", p.table.SeqColumn, p.table.Name, p.table.IDColumn)
	err := p.db.QueryRowContext(ctx, query, cursor).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NoSequence, false, nil
	}
	if err != nil {
		return model.NoSequence, false, err
	}
	return model.SequenceNumber(seq), true, nil
}

func (p *Pager[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := p.table.Scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return items, nil
}
