package reconcile

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tradeledger/internal/model"
)

const (
	buy  model.TradeType = "buy"
	sell model.TradeType = "sell"
)

func exec(symbol string, diff float64, category string, trade model.TradeType) model.Execution {
	var inf model.Inference = model.WithoutCategory{}
	if category != "" {
		inf = model.WithCategory{Category: category}
	}
	ex := model.Execution{Request: model.ExecutionRequest{Symbol: symbol, Diff: diff, Inference: inf}}
	if trade != "" {
		ex.Trade = &model.TradeOutcome{Type: trade}
	}
	return ex
}

func pos(symbol, category string) model.Position {
	return model.Position{Symbol: symbol, Category: category}
}

func holdings(ps ...model.Position) []model.HoldingItem {
	items := make([]model.HoldingItem, len(ps))
	for i, p := range ps {
		items[i] = model.HoldingItem{Position: p, Index: i}
	}
	return items
}

func TestIsFullLiquidation(t *testing.T) {
	tests := []struct {
		diff float64
		want bool
	}{
		{-1, true},
		{-1 + 1e-12, true},
		{-1 - 1e-10, true},
		{-1.5, true},
		{-0.999, false},
		{-0.2, false},
		{0, false},
		{1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsFullLiquidation(tt.diff), "diff=%v", tt.diff)
	}
}

func TestExecutedBuys(t *testing.T) {
	executions := []model.Execution{
		exec("BTC/KRW", 1, "major", buy),
		exec("BTC/KRW", 1, "major", buy),
		exec("ETH/KRW", -1, "minor", sell),
		exec("XRP/KRW", 1, "", buy),
	}

	assert.Equal(t, []model.Position{pos("BTC/KRW", "major")}, ExecutedBuys(executions, buy))
}

func TestExecutedBuys_IgnoresUnsettled(t *testing.T) {
	executions := []model.Execution{
		exec("BTC/KRW", 1, "major", ""),
		exec("ETH/KRW", 1, "minor", buy),
		exec("SOL/KRW", 1, "major", buy),
	}

	got := ExecutedBuys(executions, buy)
	assert.Equal(t, []model.Position{pos("ETH/KRW", "minor"), pos("SOL/KRW", "major")}, got)
}

func TestExecutedBuys_SameSymbolTwoCategories(t *testing.T) {
	executions := []model.Execution{
		exec("BTC/KRW", 1, "major", buy),
		exec("BTC/KRW", 0.5, "momentum", buy),
	}

	got := ExecutedBuys(executions, buy)
	assert.Equal(t, []model.Position{pos("BTC/KRW", "major"), pos("BTC/KRW", "momentum")}, got)
}

func TestExecutedBuys_Empty(t *testing.T) {
	got := ExecutedBuys(nil, buy)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestLiquidations_CategoryFallback(t *testing.T) {
	executions := []model.Execution{
		exec("BTC/KRW", -1, "major", sell),
		exec("XRP/KRW", -1, "", sell),
		exec("ETH/KRW", -0.2, "minor", sell),
	}
	existing := holdings(pos("XRP/KRW", "minor"))

	got := Liquidations(existing, executions, sell)
	assert.Equal(t, []model.Position{pos("BTC/KRW", "major"), pos("XRP/KRW", "minor")}, got)
}

func TestLiquidations_FallbackRemovesEveryCategory(t *testing.T) {
	existing := holdings(
		pos("BTC/KRW", "major"),
		pos("ETH/KRW", "minor"),
		pos("BTC/KRW", "momentum"),
	)
	executions := []model.Execution{exec("BTC/KRW", -1, "", sell)}

	got := Liquidations(existing, executions, sell)
	assert.Equal(t, []model.Position{pos("BTC/KRW", "major"), pos("BTC/KRW", "momentum")}, got)
}

func TestLiquidations_NilInferenceFallsBack(t *testing.T) {
	existing := holdings(pos("BTC/KRW", "major"))
	ex := model.Execution{
		Request: model.ExecutionRequest{Symbol: "BTC/KRW", Diff: -1},
		Trade:   &model.TradeOutcome{Type: sell},
	}

	assert.Equal(t, []model.Position{pos("BTC/KRW", "major")}, Liquidations(existing, []model.Execution{ex}, sell))
}

func TestLiquidations_FallbackWithNoHoldingIsNoop(t *testing.T) {
	got := Liquidations(nil, []model.Execution{exec("DOGE/KRW", -1, "", sell)}, sell)
	assert.Empty(t, got)
}

func TestLiquidations_IgnoresBuysAndUnsettled(t *testing.T) {
	existing := holdings(pos("BTC/KRW", "major"))
	executions := []model.Execution{
		exec("BTC/KRW", -1, "major", buy),
		exec("BTC/KRW", -1, "major", ""),
	}

	assert.Empty(t, Liquidations(existing, executions, sell))
}

func TestMerge(t *testing.T) {
	existing := holdings(pos("BTC/KRW", "major"), pos("ETH/KRW", "minor"))
	liquidated := []model.Position{pos("ETH/KRW", "minor")}
	bought := []model.Position{pos("XRP/KRW", "minor")}

	want := []model.HoldingItem{
		{Position: pos("BTC/KRW", "major"), Index: 0},
		{Position: pos("XRP/KRW", "minor"), Index: 1},
	}
	assert.Equal(t, want, Merge(existing, liquidated, bought))
}

func TestMerge_RebuyWins(t *testing.T) {
	existing := holdings(pos("BTC/KRW", "major"), pos("ETH/KRW", "minor"))
	liquidated := []model.Position{pos("BTC/KRW", "major")}
	bought := []model.Position{pos("BTC/KRW", "major")}

	want := []model.HoldingItem{
		{Position: pos("BTC/KRW", "major"), Index: 0},
		{Position: pos("ETH/KRW", "minor"), Index: 1},
	}
	assert.Equal(t, want, Merge(existing, liquidated, bought))
}

func TestMerge_RebuyOfUnheldPosition(t *testing.T) {
	got := Merge(nil, []model.Position{pos("SOL/KRW", "major")}, []model.Position{pos("SOL/KRW", "major")})
	assert.Equal(t, []model.HoldingItem{{Position: pos("SOL/KRW", "major"), Index: 0}}, got)
}

func TestMerge_BuyOfHeldPositionIsNoop(t *testing.T) {
	existing := holdings(pos("BTC/KRW", "major"))
	got := Merge(existing, nil, []model.Position{pos("BTC/KRW", "major")})
	assert.Equal(t, existing, got)
}

func TestMerge_ReindexesFromZero(t *testing.T) {
	existing := []model.HoldingItem{
		{Position: pos("A", "x"), Index: 7},
		{Position: pos("B", "x"), Index: 3},
	}
	got := Merge(existing, nil, nil)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Index)
	assert.Equal(t, 1, got[1].Index)
	assert.Equal(t, "A", got[0].Symbol)
}

func TestMerge_EmptyIsNonNil(t *testing.T) {
	got := Merge(nil, nil, nil)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReconcile_DuplicateExistingIsContractError(t *testing.T) {
	existing := holdings(pos("BTC/KRW", "major"), pos("ETH/KRW", "minor"), pos("BTC/KRW", "major"))

	_, err := Reconcile(existing, nil, buy, sell)
	require.Error(t, err)
	assert.True(t, IsContractError(err))

	var ce *ContractError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeDuplicateHolding, ce.Code)
	assert.Equal(t, 2, ce.Index)
	assert.Contains(t, err.Error(), "DUPLICATE_HOLDING")
}

func TestReconcile_SameSymbolDifferentCategoryIsNotDuplicate(t *testing.T) {
	existing := holdings(pos("BTC/KRW", "major"), pos("BTC/KRW", "momentum"))

	got, err := Reconcile(existing, nil, buy, sell)
	require.NoError(t, err)
	assert.Equal(t, existing, got)
}

func TestReconcile_CustomTradeTypes(t *testing.T) {
	executions := []model.Execution{
		exec("BTC/KRW", 1, "major", "BID"),
		exec("ETH/KRW", -1, "minor", "ASK"),
		exec("SOL/KRW", 1, "major", buy),
	}
	existing := holdings(pos("ETH/KRW", "minor"))

	got, err := Reconcile(existing, executions, "BID", "ASK")
	require.NoError(t, err)
	assert.Equal(t, []model.HoldingItem{{Position: pos("BTC/KRW", "major"), Index: 0}}, got)
}

func TestIsContractError_Other(t *testing.T) {
	assert.False(t, IsContractError(nil))
	assert.False(t, IsContractError(assert.AnError))
}

func TestReconcile_Golden(t *testing.T) {
	existing := holdings(
		pos("BTC/KRW", "major"),
		pos("ETH/KRW", "minor"),
		pos("XRP/KRW", "minor"),
		pos("XRP/KRW", "momentum"),
		pos("ADA/KRW", "minor"),
	)
	executions := []model.Execution{
		exec("ETH/KRW", -1, "minor", sell),            // full sell
		exec("XRP/KRW", -1, "", sell),                 // every XRP category
		exec("ADA/KRW", -0.5, "minor", sell),          // partial, kept
		exec("SOL/KRW", 1, "major", buy),              // new
		exec("SOL/KRW", 0.3, "major", buy),            // repeated fill
		exec("ETH/KRW", 1, "minor", buy),              // rebought
		exec("DOT/KRW", 1, "", buy),                   // no category, ignored
		exec("AVAX/KRW", 1, "major", ""),              // unsettled, ignored
		exec("BTC/KRW", -1.0000000001, "major", sell), // rounding below sentinel
	}

	got, err := Reconcile(existing, executions, buy, sell)
	require.NoError(t, err)

	data, err := json.MarshalIndent(got, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "reconcile_mixed_batch", data)
}
