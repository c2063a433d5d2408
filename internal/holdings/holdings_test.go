package holdings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/pager"
	"github.com/roach88/tradeledger/internal/records"
	"github.com/roach88/tradeledger/internal/sequence"
	"github.com/roach88/tradeledger/internal/store"
	"github.com/roach88/tradeledger/internal/testutil"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func item(symbol, category string, index int) model.HoldingItem {
	return model.HoldingItem{Position: model.Position{Symbol: symbol, Category: category}, Index: index}
}

func execution(symbol string, diff float64, category string, trade model.TradeType) model.Execution {
	var inf model.Inference = model.WithoutCategory{}
	if category != "" {
		inf = model.WithCategory{Category: category}
	}
	return model.Execution{
		Request: model.ExecutionRequest{Symbol: symbol, Diff: diff, Inference: inf},
		Trade:   &model.TradeOutcome{Type: trade},
	}
}

type fixture struct {
	st      *store.Store
	repo    *Repository
	records *records.Repository
	clock   *testutil.Clock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := testutil.OpenStore(t)
	clock := testutil.NewClock(t0)
	return fixture{
		st:      st,
		repo:    NewRepository(st, clock.Now),
		records: records.New(st, sequence.New(st), records.WithClock(clock.Now)),
		clock:   clock,
	}
}

func TestRepository_EmptySnapshot(t *testing.T) {
	f := newFixture(t)

	got, err := f.repo.Snapshot(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRepository_ReplaceIsWholesale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := []model.HoldingItem{item("BTC/KRW", "major", 0), item("ETH/KRW", "minor", 1)}
	require.NoError(t, f.repo.Replace(ctx, "u", first))
	require.NoError(t, f.repo.Replace(ctx, "v", []model.HoldingItem{item("SOL/KRW", "major", 0)}))

	second := []model.HoldingItem{item("XRP/KRW", "minor", 0)}
	require.NoError(t, f.repo.Replace(ctx, "u", second))

	got, err := f.repo.Snapshot(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	other, err := f.repo.Snapshot(ctx, "v")
	require.NoError(t, err)
	assert.Len(t, other, 1, "other users untouched")
}

func TestRepository_ReplaceFailureKeepsPrevious(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	prev := []model.HoldingItem{item("BTC/KRW", "major", 0)}
	require.NoError(t, f.repo.Replace(ctx, "u", prev))

	dup := []model.HoldingItem{item("ETH/KRW", "minor", 0), item("ETH/KRW", "minor", 1)}
	require.Error(t, f.repo.Replace(ctx, "u", dup))

	got, err := f.repo.Snapshot(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, prev, got)
}

func TestRepository_SnapshotOrderedByIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.repo.Replace(ctx, "u", []model.HoldingItem{
		item("C", "x", 2), item("A", "x", 0), item("B", "x", 1),
	}))

	got, err := f.repo.Snapshot(ctx, "u")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{got[0].Symbol, got[1].Symbol, got[2].Symbol})
}

func TestService_Reconcile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.repo, f.records, WithClock(f.clock.Now))

	require.NoError(t, f.repo.Replace(ctx, "u", []model.HoldingItem{
		item("BTC/KRW", "major", 0),
		item("ETH/KRW", "minor", 1),
	}))

	res, err := svc.Reconcile(ctx, "u", []model.Execution{
		execution("ETH/KRW", -1, "minor", "sell"),
		execution("XRP/KRW", 1, "minor", "buy"),
	})
	require.NoError(t, err)

	want := []model.HoldingItem{item("BTC/KRW", "major", 0), item("XRP/KRW", "minor", 1)}
	assert.Equal(t, want, res.Holdings)
	assert.Equal(t, []model.Position{{Symbol: "XRP/KRW", Category: "minor"}}, res.Added)
	assert.Equal(t, []model.Position{{Symbol: "ETH/KRW", Category: "minor"}}, res.Removed)
	assert.NotEmpty(t, res.AuditID)

	stored, err := f.repo.Snapshot(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, want, stored)

	runs, err := f.records.AuditRuns().Cursor(ctx, records.AuditFilter{UserID: "u"}, pager.Descending, "", 10)
	require.NoError(t, err)
	require.Len(t, runs.Items, 1)
	assert.Equal(t, AuditModule, runs.Items[0].Module)
	assert.Equal(t, records.AuditSucceeded, runs.Items[0].Status)
	assert.Equal(t, "executions=2 held=2 added=1 removed=1", runs.Items[0].Summary)
	assert.Equal(t, res.AuditID, runs.Items[0].ID)
}

// failingGenerator makes every records insert fail.
type failingGenerator struct{ sequence.TxGenerator }

func (failingGenerator) NextTx(context.Context, store.Querier) (model.SequenceNumber, error) {
	return model.NoSequence, errors.New("sequence unavailable")
}

func TestService_AuditFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.repo, records.New(f.st, failingGenerator{}), WithClock(f.clock.Now))

	res, err := svc.Reconcile(ctx, "u", []model.Execution{execution("BTC/KRW", 1, "major", "buy")})
	require.NoError(t, err)
	assert.Empty(t, res.AuditID)

	stored, err := f.repo.Snapshot(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, []model.HoldingItem{item("BTC/KRW", "major", 0)}, stored)
}

func TestService_ReconcileTwiceIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.repo, f.records)

	batch := []model.Execution{execution("BTC/KRW", 1, "major", "buy")}
	first, err := svc.Reconcile(ctx, "u", batch)
	require.NoError(t, err)

	second, err := svc.Reconcile(ctx, "u", batch)
	require.NoError(t, err)
	assert.Equal(t, first.Holdings, second.Holdings)
	assert.Empty(t, second.Added)
	assert.Empty(t, second.Removed)
}

func TestService_CustomTradeTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.repo, nil, WithTradeTypes("BID", "ASK"))

	res, err := svc.Reconcile(ctx, "u", []model.Execution{
		execution("BTC/KRW", 1, "major", "BID"),
		execution("ETH/KRW", 1, "minor", "buy"),
	})
	require.NoError(t, err)
	assert.Equal(t, []model.HoldingItem{item("BTC/KRW", "major", 0)}, res.Holdings)
	assert.Empty(t, res.AuditID, "no audit repository configured")
}

func TestService_FallbackLiquidationAcrossCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.repo, f.records)

	require.NoError(t, f.repo.Replace(ctx, "u", []model.HoldingItem{
		item("BTC/KRW", "major", 0),
		item("BTC/KRW", "momentum", 1),
		item("ETH/KRW", "minor", 2),
	}))

	res, err := svc.Reconcile(ctx, "u", []model.Execution{execution("BTC/KRW", -1, "", "sell")})
	require.NoError(t, err)
	assert.Equal(t, []model.HoldingItem{item("ETH/KRW", "minor", 0)}, res.Holdings)
	assert.Len(t, res.Removed, 2)
}
