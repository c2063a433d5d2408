package ledger

import (
	"time"

	"github.com/roach88/tradeledger/internal/model"
)

// Decision is a retry policy verdict for an existing entry.
type Decision int

const (
	// DecisionSkip leaves the entry alone; the caller must not re-execute.
	DecisionSkip Decision = iota
	// DecisionRetry permits the caller to reclaim and re-execute.
	DecisionRetry
)

func (d Decision) String() string {
	if d == DecisionRetry {
		return "retry"
	}
	return "skip"
}

// RetryPolicy decides whether an already-claimed entry may be re-attempted.
// It is the boundary between the ledger and the caller's retry scheduler:
// the ledger enforces the decision atomically, the policy makes it.
type RetryPolicy interface {
	Decide(entry model.LedgerEntry, now time.Time) Decision
}

// RetryPolicyFunc adapts a function to RetryPolicy.
type RetryPolicyFunc func(entry model.LedgerEntry, now time.Time) Decision

func (f RetryPolicyFunc) Decide(entry model.LedgerEntry, now time.Time) Decision {
	return f(entry, now)
}

// NeverRetry treats every existing entry as final.
var NeverRetry RetryPolicy = RetryPolicyFunc(func(model.LedgerEntry, time.Time) Decision {
	return DecisionSkip
})

// AttemptPolicy is the configurable built-in policy.
//
// MaxAttempts bounds the total number of attempts, the first included.
// Completed entries are never retried.
type AttemptPolicy struct {
	MaxAttempts int
	// RetryFailed permits re-attempting failed entries.
	RetryFailed bool
	// ReclaimStaleProcessing permits taking over a processing entry whose
	// attempt started at least StaleAfter ago (its worker is presumed dead).
	ReclaimStaleProcessing bool
	StaleAfter             time.Duration
}

func (p AttemptPolicy) Decide(entry model.LedgerEntry, now time.Time) Decision {
	if entry.AttemptCount >= p.MaxAttempts {
		return DecisionSkip
	}

	switch entry.Status {
	case model.StatusFailed:
		if p.RetryFailed {
			return DecisionRetry
		}
	case model.StatusProcessing:
		if p.ReclaimStaleProcessing && p.StaleAfter > 0 && now.Sub(entry.StartedAt) >= p.StaleAfter {
			return DecisionRetry
		}
	}
	return DecisionSkip
}
