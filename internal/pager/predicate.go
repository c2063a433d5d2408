package pager

import (
	"fmt"
	"strings"
	"time"
)

// Predicate is a filter condition over a table's columns.
//
// This is a sealed interface: only Eq, In, Since and And implement it, so
// Compile can switch exhaustively.
type Predicate interface {
	predicateNode()
}

// Eq matches rows where Column = Value.
type Eq struct {
	Column string
	Value  any
}

// In matches rows where Column is one of Values. An empty Values matches
// nothing.
type In struct {
	Column string
	Values []any
}

// Since matches rows where Column >= Time (stored as unix milliseconds).
type Since struct {
	Column string
	Time   time.Time
}

// And matches rows satisfying every predicate. An empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (Eq) predicateNode()    {}
func (In) predicateNode()    {}
func (Since) predicateNode() {}
func (And) predicateNode()   {}

// Filter supplies a table-specific predicate. A nil Filter, or one that
// returns a nil Predicate, applies no restriction.
type Filter interface {
	Predicate() Predicate
}

// Where adapts a bare Predicate to Filter.
type Where struct {
	P Predicate
}

func (w Where) Predicate() Predicate { return w.P }

// Compile converts p to a SQL boolean expression and its parameters.
// A nil predicate compiles to "1 = 1".
func Compile(p Predicate) (string, []any, error) {
	if p == nil {
		return "1 = 1", nil, nil
	}

	switch pred := p.(type) {
	case Eq:
		if err := checkColumn(pred.Column); err != nil {
			return "", nil, err
		}
		return pred.Column + " = ?", []any{pred.Value}, nil
	case In:
		if err := checkColumn(pred.Column); err != nil {
			return "", nil, err
		}
		if len(pred.Values) == 0 {
			return "1 = 0", nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pred.Values)), ",")
		return pred.Column + " IN (" + placeholders + ")", append([]any(nil), pred.Values...), nil
	case Since:
		if err := checkColumn(pred.Column); err != nil {
			return "", nil, err
		}
		return pred.Column + " >= ?", []any{pred.Time.UnixMilli()}, nil
	case And:
		if len(pred.Predicates) == 0 {
			return "1 = 1", nil, nil
		}
		parts := make([]string, 0, len(pred.Predicates))
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams, err := Compile(sub)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, "("+sql+")")
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// checkColumn rejects anything that is not a plain identifier, since column
// names are the one part of a predicate written into query text.
func checkColumn(col string) error {
	if col == "" {
		return fmt.Errorf("predicate column is empty")
	}
	for _, r := range col {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return fmt.Errorf("invalid predicate column %q", col)
		}
	}
	return nil
}
