package reconcile

import (
	"fmt"

	"github.com/roach88/tradeledger/internal/model"
)

// FullLiquidation is the diff sentinel for selling the whole position.
// Diff is a fraction of the prior position, so -1 is also its literal
// meaning; anything at or below it counts as full.
const FullLiquidation = -1.0

// Epsilon absorbs float rounding around FullLiquidation.
const Epsilon = 1e-9

// IsFullLiquidation reports whether diff closes the whole position.
func IsFullLiquidation(diff float64) bool {
	return diff <= FullLiquidation+Epsilon
}

// ExecutedBuys returns the positions opened by settled buy trades, in
// first-occurrence order. Executions without a trade, with another trade
// type, or without a category are ignored.
func ExecutedBuys(executions []model.Execution, buyType model.TradeType) []model.Position {
	seen := make(map[string]struct{})
	bought := []model.Position{}
	for _, ex := range executions {
		if ex.Trade == nil || ex.Trade.Type != buyType {
			continue
		}
		category, ok := model.CategoryOf(ex.Request.Inference)
		if !ok {
			continue
		}
		bought = appendUnique(bought, seen, model.Position{Symbol: ex.Request.Symbol, Category: category})
	}
	return bought
}

// Liquidations returns the positions closed by settled full-liquidation
// sells, in first-occurrence order.
//
// A sell whose inference has no category closes every position in
// existing that holds the symbol, since one symbol may be held under
// several categories at once.
func Liquidations(existing []model.HoldingItem, executions []model.Execution, sellType model.TradeType) []model.Position {
	seen := make(map[string]struct{})
	liquidated := []model.Position{}
	for _, ex := range executions {
		if ex.Trade == nil || ex.Trade.Type != sellType || !IsFullLiquidation(ex.Request.Diff) {
			continue
		}

		switch inf := ex.Request.Inference.(type) {
		case model.WithCategory:
			liquidated = appendUnique(liquidated, seen, model.Position{Symbol: ex.Request.Symbol, Category: inf.Category})
		default:
			for _, h := range existing {
				if h.Symbol == ex.Request.Symbol {
					liquidated = appendUnique(liquidated, seen, h.Position)
				}
			}
		}
	}
	return liquidated
}

// Merge builds the next snapshot: existing minus liquidated, then bought
// positions not already present. Index is reassigned 0..N-1.
//
// A position in both liquidated and bought is held afterwards. If it was
// already held it keeps its place in the order.
func Merge(existing []model.HoldingItem, liquidated, bought []model.Position) []model.HoldingItem {
	rebought := keySet(bought)
	removed := make(map[string]struct{}, len(liquidated))
	for _, p := range liquidated {
		if _, ok := rebought[p.Key()]; !ok {
			removed[p.Key()] = struct{}{}
		}
	}

	held := make(map[string]struct{}, len(existing)+len(bought))
	positions := make([]model.Position, 0, len(existing)+len(bought))
	for _, h := range existing {
		if _, ok := removed[h.Key()]; ok {
			continue
		}
		positions = appendUnique(positions, held, h.Position)
	}
	for _, p := range bought {
		positions = appendUnique(positions, held, p)
	}

	items := make([]model.HoldingItem, len(positions))
	for i, p := range positions {
		items[i] = model.HoldingItem{Position: p, Index: i}
	}
	return items
}

// Reconcile runs a full pass. It fails only when existing contains a
// duplicate (symbol, category), which is a caller bug.
func Reconcile(existing []model.HoldingItem, executions []model.Execution, buyType, sellType model.TradeType) ([]model.HoldingItem, error) {
	if err := checkUnique(existing); err != nil {
		return nil, err
	}
	bought := ExecutedBuys(executions, buyType)
	liquidated := Liquidations(existing, executions, sellType)
	return Merge(existing, liquidated, bought), nil
}

func checkUnique(existing []model.HoldingItem) error {
	first := make(map[string]int, len(existing))
	for i, h := range existing {
		if j, dup := first[h.Key()]; dup {
			return &ContractError{
				Code:    ErrCodeDuplicateHolding,
				Message: fmt.Sprintf("holding %s/%s also at index %d", h.Symbol, h.Category, j),
				Index:   i,
			}
		}
		first[h.Key()] = i
	}
	return nil
}

func appendUnique(dst []model.Position, seen map[string]struct{}, p model.Position) []model.Position {
	if _, ok := seen[p.Key()]; ok {
		return dst
	}
	seen[p.Key()] = struct{}{}
	return append(dst, p)
}

func keySet(ps []model.Position) map[string]struct{} {
	set := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		set[p.Key()] = struct{}{}
	}
	return set
}
