package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/testutil"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) (*Ledger, *testutil.Clock) {
	t.Helper()
	clock := testutil.NewClock(t0)
	l := New(testutil.OpenStore(t), WithClock(clock.Now))
	return l, clock
}

func claimRequest(key string) ClaimRequest {
	return ClaimRequest{
		Key:         model.IdempotencyKey{Module: "trade", MessageKey: key, UserID: "user-1"},
		PayloadHash: "hash-a",
		Validity: model.Validity{
			GeneratedAt: t0,
			ExpiresAt:   t0.Add(5 * time.Minute),
		},
	}
}

func TestClaim_FirstAttemptIsNew(t *testing.T) {
	l, _ := newTestLedger(t)

	claim, err := l.Claim(context.Background(), claimRequest("msg-1"))
	require.NoError(t, err)

	assert.True(t, claim.IsNew)
	assert.False(t, claim.PayloadMismatch)
	assert.False(t, claim.Stale)

	e := claim.Entry
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "trade", e.Module)
	assert.Equal(t, "msg-1", e.MessageKey)
	assert.Equal(t, "user-1", e.UserID)
	assert.Equal(t, model.StatusProcessing, e.Status)
	assert.Equal(t, 1, e.AttemptCount)
	assert.Equal(t, "hash-a", e.PayloadHash)
	assert.True(t, e.Validity.GeneratedAt.Equal(t0))
	assert.True(t, e.Validity.ExpiresAt.Equal(t0.Add(5*time.Minute)))
	assert.True(t, e.StartedAt.Equal(t0))
	assert.True(t, e.FinishedAt.IsZero())
}

func TestClaim_RetryShortCircuits(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)

	second, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)

	assert.False(t, second.IsNew)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.Equal(t, 1, second.Entry.AttemptCount, "duplicate claims must not bump attempts")
}

func TestClaim_KeyPartsAreIndependent(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	base := claimRequest("msg-1")
	otherUser := base
	otherUser.Key.UserID = "user-2"
	otherModule := base
	otherModule.Key.Module = "rebalance"

	for _, req := range []ClaimRequest{base, otherUser, otherModule} {
		claim, err := l.Claim(ctx, req)
		require.NoError(t, err)
		assert.True(t, claim.IsNew, "key %s should be new", req.Key)
	}
}

func TestClaim_PayloadMismatchSurfaced(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)

	changed := claimRequest("msg-1")
	changed.PayloadHash = "hash-b"
	claim, err := l.Claim(ctx, changed)
	require.NoError(t, err)

	assert.False(t, claim.IsNew)
	assert.True(t, claim.PayloadMismatch)
	assert.Equal(t, "hash-a", claim.Entry.PayloadHash, "stored hash is not overwritten")
}

func TestClaim_StaleSurfacedAsFlag(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	_, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	claim, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)
	assert.False(t, claim.IsNew)
	assert.True(t, claim.Stale)
}

func TestClaim_NoExpiryNeverStale(t *testing.T) {
	l, clock := newTestLedger(t)
	req := claimRequest("msg-1")
	req.Validity = model.Validity{}

	claim, err := l.Claim(context.Background(), req)
	require.NoError(t, err)
	clock.Advance(365 * 24 * time.Hour)
	assert.False(t, claim.Entry.Stale(clock.Now()))
	assert.True(t, claim.Entry.Validity.ExpiresAt.IsZero())
}

func TestClaim_Validation(t *testing.T) {
	l, _ := newTestLedger(t)

	tests := map[string]func(*ClaimRequest){
		"module":       func(r *ClaimRequest) { r.Key.Module = "" },
		"message key":  func(r *ClaimRequest) { r.Key.MessageKey = "" },
		"user id":      func(r *ClaimRequest) { r.Key.UserID = "" },
		"payload hash": func(r *ClaimRequest) { r.PayloadHash = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			req := claimRequest("msg-1")
			mutate(&req)
			_, err := l.Claim(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidClaim))
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestClaim_ConcurrentExactlyOneNew(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	const claimants = 50
	results := make([]Claim, claimants)
	errs := make([]error, claimants)

	var wg sync.WaitGroup
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Claim(ctx, claimRequest("race"))
		}(i)
	}
	wg.Wait()

	newCount := 0
	for i, r := range results {
		require.NoError(t, errs[i])
		if r.IsNew {
			newCount++
		}
		assert.Equal(t, results[0].Entry.ID, r.Entry.ID)
	}
	assert.Equal(t, 1, newCount)
}

// Separate store handles on one file share nothing but the database, like
// horizontally scaled workers.
func TestClaim_ConcurrentAcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.db")
	ledgers := []*Ledger{
		New(testutil.OpenStoreAt(t, path)),
		New(testutil.OpenStoreAt(t, path)),
		New(testutil.OpenStoreAt(t, path)),
	}
	ctx := context.Background()

	for round := 0; round < 5; round++ {
		var (
			mu       sync.Mutex
			newCount int
			wg       sync.WaitGroup
		)
		req := claimRequest("round-" + string(rune('a'+round)))
		for _, l := range ledgers {
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func(l *Ledger) {
					defer wg.Done()
					claim, err := l.Claim(ctx, req)
					if !assert.NoError(t, err) {
						return
					}
					if claim.IsNew {
						mu.Lock()
						newCount++
						mu.Unlock()
					}
				}(l)
			}
		}
		wg.Wait()
		assert.Equal(t, 1, newCount, "round %d", round)
	}
}

func TestComplete_TransitionsOnce(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	claim, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)

	clock.Advance(time.Second)
	done, err := l.Complete(ctx, claim.Entry.ID, `{"order_id":"x1"}`)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	assert.Equal(t, `{"order_id":"x1"}`, done.Result)
	assert.True(t, done.FinishedAt.Equal(t0.Add(time.Second)))

	clock.Advance(time.Second)
	again, err := l.Complete(ctx, claim.Entry.ID, `{"order_id":"other"}`)
	require.NoError(t, err, "repeat completion is a no-op, not an error")
	assert.Equal(t, done, again)
}

func TestFail_TransitionsOnce(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	claim, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)

	failed, err := l.Fail(ctx, claim.Entry.ID, "exchange rejected")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, failed.Status)
	assert.Equal(t, "exchange rejected", failed.Error)

	again, err := l.Fail(ctx, claim.Entry.ID, "second callback")
	require.NoError(t, err)
	assert.Equal(t, failed, again)

	// A late success callback cannot flip a failed entry either.
	late, err := l.Complete(ctx, claim.Entry.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, failed, late)
}

func TestFinish_UnknownEntry(t *testing.T) {
	l, _ := newTestLedger(t)

	_, err := l.Complete(context.Background(), "missing", "")
	assert.True(t, errors.Is(err, ErrEntryNotFound))

	_, err = l.Fail(context.Background(), "missing", "x")
	assert.True(t, errors.Is(err, ErrEntryNotFound))
}

func TestGetAndFind(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	claim, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)

	got, err := l.Get(ctx, claim.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, claim.Entry, got)

	found, err := l.Find(ctx, claim.Entry.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, claim.Entry, found)

	_, err = l.Find(ctx, model.IdempotencyKey{Module: "x", MessageKey: "y", UserID: "z"})
	assert.True(t, errors.Is(err, ErrEntryNotFound))
}

func TestReclaim_FailedEntryUnderPolicy(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()
	policy := AttemptPolicy{MaxAttempts: 2, RetryFailed: true}

	claim, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)
	failed, err := l.Fail(ctx, claim.Entry.ID, "timeout")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	fresh := model.Validity{GeneratedAt: clock.Now(), ExpiresAt: clock.Now().Add(time.Minute)}
	re, err := l.Reclaim(ctx, failed, policy, fresh)
	require.NoError(t, err)
	assert.True(t, re.IsNew)
	assert.Equal(t, model.StatusProcessing, re.Entry.Status)
	assert.Equal(t, 2, re.Entry.AttemptCount)
	assert.Empty(t, re.Entry.Error)
	assert.True(t, re.Entry.FinishedAt.IsZero())
	assert.True(t, re.Entry.Validity.ExpiresAt.Equal(fresh.ExpiresAt))

	// Attempts exhausted.
	failedAgain, err := l.Fail(ctx, re.Entry.ID, "timeout")
	require.NoError(t, err)
	exhausted, err := l.Reclaim(ctx, failedAgain, policy, model.Validity{})
	require.NoError(t, err)
	assert.False(t, exhausted.IsNew)
	assert.Equal(t, 2, exhausted.Entry.AttemptCount)
}

func TestReclaim_NilPolicyNeverRetries(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	claim, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)
	failed, err := l.Fail(ctx, claim.Entry.ID, "x")
	require.NoError(t, err)

	re, err := l.Reclaim(ctx, failed, nil, model.Validity{})
	require.NoError(t, err)
	assert.False(t, re.IsNew)

	stored, err := l.Get(ctx, claim.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.AttemptCount)
	assert.Equal(t, model.StatusFailed, stored.Status)
}

func TestReclaim_ConcurrentExactlyOneWins(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	policy := AttemptPolicy{MaxAttempts: 5, RetryFailed: true}

	claim, err := l.Claim(ctx, claimRequest("msg-1"))
	require.NoError(t, err)
	failed, err := l.Fail(ctx, claim.Entry.ID, "x")
	require.NoError(t, err)

	const reclaimers = 20
	wins := make([]bool, reclaimers)
	var wg sync.WaitGroup
	for i := 0; i < reclaimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			re, err := l.Reclaim(ctx, failed, policy, model.Validity{})
			if assert.NoError(t, err) {
				wins[i] = re.IsNew
			}
		}(i)
	}
	wg.Wait()

	count := 0
	for _, w := range wins {
		if w {
			count++
		}
	}
	assert.Equal(t, 1, count)

	stored, err := l.Get(ctx, claim.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.AttemptCount)
}

func TestListStale(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	short := claimRequest("short")
	short.Validity.ExpiresAt = t0.Add(time.Minute)
	long := claimRequest("long")
	long.Validity.ExpiresAt = t0.Add(time.Hour)
	done := claimRequest("done")
	done.Validity.ExpiresAt = t0.Add(time.Minute)
	open := claimRequest("open")
	open.Validity = model.Validity{}

	var doneID string
	for _, req := range []ClaimRequest{short, long, done, open} {
		c, err := l.Claim(ctx, req)
		require.NoError(t, err)
		if req.Key.MessageKey == "done" {
			doneID = c.Entry.ID
		}
	}
	_, err := l.Complete(ctx, doneID, "ok")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	stale, err := l.ListStale(ctx, clock.Now())
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "short", stale[0].MessageKey)

	none, err := l.ListStale(ctx, t0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
