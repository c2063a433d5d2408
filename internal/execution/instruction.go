package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/tradeledger/internal/canon"
	"github.com/roach88/tradeledger/internal/model"
)

// Instruction is one trade decision to execute.
type Instruction struct {
	Module     string
	MessageKey string
	UserID     string

	Symbol string
	Side   model.TradeType
	// Diff is the signed position change as a fraction of the prior
	// position; see reconcile.IsFullLiquidation.
	Diff      float64
	Inference model.Inference
	Quantity  decimal.Decimal
	Price     decimal.Decimal

	Validity model.Validity
}

// Key is the instruction's idempotency key.
func (in Instruction) Key() model.IdempotencyKey {
	return model.IdempotencyKey{Module: in.Module, MessageKey: in.MessageKey, UserID: in.UserID}
}

// Payload is the canonical body that is hashed to detect a key reused for
// a different instruction. Validity is not part of it: a re-quoted
// instruction is the same instruction.
func (in Instruction) Payload() map[string]any {
	p := map[string]any{
		"symbol":   in.Symbol,
		"side":     string(in.Side),
		"diff":     in.Diff,
		"quantity": in.Quantity,
		"price":    in.Price,
	}
	if category, ok := model.CategoryOf(in.Inference); ok {
		p["category"] = category
	}
	return p
}

// PayloadHash fingerprints Payload.
func (in Instruction) PayloadHash() (string, error) {
	h, err := canon.Hash(canon.DomainInstruction, in.Payload())
	if err != nil {
		return "", fmt.Errorf("hash instruction %s: %w", in.Key(), err)
	}
	return h, nil
}

func (in Instruction) order(entryID string) Order {
	return Order{
		EntryID:  entryID,
		UserID:   in.UserID,
		Symbol:   in.Symbol,
		Side:     in.Side,
		Quantity: in.Quantity,
		Price:    in.Price,
	}
}
