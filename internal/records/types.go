package records

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tradeledger/internal/model"
)

// Recommendation is one decision emitted by the recommendation engine.
type Recommendation struct {
	ID        string               `json:"id"`
	Seq       model.SequenceNumber `json:"seq"`
	UserID    string               `json:"user_id"`
	Symbol    string               `json:"symbol"`
	Category  string               `json:"category,omitempty"`
	Decision  string               `json:"decision"`
	Diff      float64              `json:"diff"`
	Reason    string               `json:"reason,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// Trade is one settled exchange fill. EntryID links back to the ledger
// entry that authorized it.
type Trade struct {
	ID         string               `json:"id"`
	Seq        model.SequenceNumber `json:"seq"`
	UserID     string               `json:"user_id"`
	EntryID    string               `json:"entry_id"`
	Symbol     string               `json:"symbol"`
	Type       model.TradeType      `json:"type"`
	Quantity   decimal.Decimal      `json:"quantity"`
	Price      decimal.Decimal      `json:"price"`
	ExecutedAt time.Time            `json:"executed_at"`
}

// Notional is Quantity * Price.
func (t Trade) Notional() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// Notification kinds.
const (
	KindTradeExecuted      = "trade_executed"
	KindTradeFailed        = "trade_failed"
	KindHoldingsReconciled = "holdings_reconciled"
)

// Notification is a user-facing event.
type Notification struct {
	ID        string               `json:"id"`
	Seq       model.SequenceNumber `json:"seq"`
	UserID    string               `json:"user_id"`
	Kind      string               `json:"kind"`
	Message   string               `json:"message"`
	CreatedAt time.Time            `json:"created_at"`
}

// Audit run statuses.
const (
	AuditSucceeded = "succeeded"
	AuditFailed    = "failed"
)

// AuditRun records one pass of a batch job (for example a holdings
// reconciliation).
type AuditRun struct {
	ID         string               `json:"id"`
	Seq        model.SequenceNumber `json:"seq"`
	UserID     string               `json:"user_id"`
	Module     string               `json:"module"`
	Status     string               `json:"status"`
	Summary    string               `json:"summary,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}
