package model

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a ledger entry.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed without a
// caller-driven reclaim.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus converts a stored status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusProcessing, StatusCompleted, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown ledger status %q", s)
	}
}

// IdempotencyKey identifies one logical instruction.
type IdempotencyKey struct {
	Module     string `json:"module"`
	MessageKey string `json:"message_key"`
	UserID     string `json:"user_id"`
}

func (k IdempotencyKey) String() string {
	return k.Module + "/" + k.MessageKey + "/" + k.UserID
}

// Validity is the window in which the underlying instruction (for example
// a quoted price) is meaningful. Zero times mean "unbounded".
type Validity struct {
	GeneratedAt time.Time `json:"generated_at,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether now is past ExpiresAt.
func (v Validity) Expired(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && now.After(v.ExpiresAt)
}

// LedgerEntry is one row of the execution ledger.
type LedgerEntry struct {
	ID string `json:"id"`
	IdempotencyKey
	Status       Status    `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	PayloadHash  string    `json:"payload_hash"`
	Validity     Validity  `json:"validity"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	Result       string    `json:"result,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// Stale reports whether the claimed instruction has outlived its validity.
func (e LedgerEntry) Stale(now time.Time) bool {
	return e.Validity.Expired(now)
}
