package records

import (
	"time"

	"github.com/roach88/tradeledger/internal/pager"
)

// UserFilter restricts any table to one user. Empty UserID matches all.
type UserFilter struct {
	UserID string
}

func (f UserFilter) Predicate() pager.Predicate {
	return conj(eq("user_id", f.UserID))
}

// RecommendationFilter selects recommendations. Zero fields are ignored.
type RecommendationFilter struct {
	UserID    string
	Symbol    string
	Decisions []string
	Since     time.Time
}

func (f RecommendationFilter) Predicate() pager.Predicate {
	var in pager.Predicate
	if len(f.Decisions) > 0 {
		values := make([]any, len(f.Decisions))
		for i, d := range f.Decisions {
			values[i] = d
		}
		in = pager.In{Column: "decision", Values: values}
	}
	return conj(eq("user_id", f.UserID), eq("symbol", f.Symbol), in, since("created_at", f.Since))
}

// TradeFilter selects trades. Zero fields are ignored.
type TradeFilter struct {
	UserID  string
	Symbol  string
	EntryID string
}

func (f TradeFilter) Predicate() pager.Predicate {
	return conj(eq("user_id", f.UserID), eq("symbol", f.Symbol), eq("entry_id", f.EntryID))
}

// AuditFilter selects audit runs. Zero fields are ignored.
type AuditFilter struct {
	UserID string
	Module string
	Status string
}

func (f AuditFilter) Predicate() pager.Predicate {
	return conj(eq("user_id", f.UserID), eq("module", f.Module), eq("status", f.Status))
}

func eq(column, value string) pager.Predicate {
	if value == "" {
		return nil
	}
	return pager.Eq{Column: column, Value: value}
}

func since(column string, t time.Time) pager.Predicate {
	if t.IsZero() {
		return nil
	}
	return pager.Since{Column: column, Time: t}
}

// conj ANDs the non-nil predicates; nil when none remain.
func conj(preds ...pager.Predicate) pager.Predicate {
	var kept []pager.Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return pager.And{Predicates: kept}
	}
}
