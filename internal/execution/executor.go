package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/tradeledger/internal/canon"
	"github.com/roach88/tradeledger/internal/ledger"
	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/records"
)

// Status is how one Execute call ended.
type Status string

const (
	// StatusExecuted: this call placed the order and it filled.
	StatusExecuted Status = "executed"
	// StatusDuplicate: another attempt owns or owned the instruction.
	StatusDuplicate Status = "duplicate"
	// StatusPayloadMismatch: the key was already claimed for a different
	// payload. Nothing was placed.
	StatusPayloadMismatch Status = "payload_mismatch"
	// StatusExpired: the instruction was past its validity when claimed.
	// The entry is failed without calling the exchange.
	StatusExpired Status = "expired"
	// StatusFailed: the exchange rejected the order.
	StatusFailed Status = "failed"
	// StatusConflict: the order filled, but the entry had already been
	// finished by someone else (sweep --fail, an operator) while the order
	// was in flight. The fill is recorded as a trade; the entry keeps the
	// other party's status.
	StatusConflict Status = "conflict"
)

// ReasonExpired is the ledger error recorded for expired instructions.
const ReasonExpired = "instruction expired"

// ErrEntryFinished is returned with a StatusConflict outcome.
var ErrEntryFinished = errors.New("ledger entry finished while its order was in flight")

// Outcome reports one Execute call.
type Outcome struct {
	Status      Status
	Instruction Instruction
	Entry       model.LedgerEntry
	// Trade is set only for StatusExecuted and StatusConflict.
	Trade *records.Trade
}

// Filled reports whether this call's order reached the exchange and filled.
func (o Outcome) Filled() bool {
	return o.Status == StatusExecuted || o.Status == StatusConflict
}

// Executor runs instructions through the ledger and the exchange.
type Executor struct {
	ledger   *ledger.Ledger
	exchange Exchange
	records  *records.Repository
	policy   ledger.RetryPolicy
	now      func() time.Time
	log      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetryPolicy sets the policy consulted when an instruction was already
// claimed. The default never re-executes.
func WithRetryPolicy(p ledger.RetryPolicy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithClock overrides the clock used for the expiry check.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// New creates an executor. rec may be nil, in which case no trade rows or
// notifications are written.
func New(l *ledger.Ledger, ex Exchange, rec *records.Repository, opts ...Option) *Executor {
	e := &Executor{
		ledger:   l,
		exchange: ex,
		records:  rec,
		policy:   ledger.NeverRetry,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute claims in, places the order if this call owns the claim, and
// finishes the ledger entry.
//
// A non-nil error means the store failed, the exchange rejected the order
// (StatusFailed) or the entry was finished elsewhere while the order was in
// flight (StatusConflict); in the last two cases the Outcome is still
// returned. Duplicates, payload mismatches and expiries are outcomes, not
// errors.
//
// A reclaimed entry that already has a recorded trade is completed from
// that trade and reported as a duplicate; its order is never placed again.
func (e *Executor) Execute(ctx context.Context, in Instruction) (Outcome, error) {
	hash, err := in.PayloadHash()
	if err != nil {
		return Outcome{}, err
	}

	claim, err := e.ledger.Claim(ctx, ledger.ClaimRequest{
		Key:         in.Key(),
		PayloadHash: hash,
		Validity:    in.Validity,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("execute %s: %w", in.Key(), err)
	}

	out := Outcome{Instruction: in, Entry: claim.Entry}

	if !claim.IsNew {
		if claim.PayloadMismatch {
			e.log.Warn("instruction key reused with a different payload",
				"key", in.Key().String(),
				"entry_id", claim.Entry.ID,
			)
			out.Status = StatusPayloadMismatch
			return out, nil
		}

		claim, err = e.ledger.Reclaim(ctx, claim.Entry, e.policy, in.Validity)
		if err != nil {
			return Outcome{}, fmt.Errorf("execute %s: %w", in.Key(), err)
		}
		out.Entry = claim.Entry
		if !claim.IsNew {
			out.Status = StatusDuplicate
			return out, nil
		}
		if done, err := e.settledEarlier(ctx, &out); done || err != nil {
			return out, err
		}
	}

	if claim.Stale {
		entry, err := e.ledger.Fail(ctx, claim.Entry.ID, ReasonExpired)
		if err != nil {
			return Outcome{}, fmt.Errorf("execute %s: %w", in.Key(), err)
		}
		e.log.Warn("instruction expired before execution",
			"key", in.Key().String(),
			"expires_at", in.Validity.ExpiresAt,
		)
		out.Entry = entry
		out.Status = StatusExpired
		return out, nil
	}

	fill, placeErr := e.exchange.Place(ctx, in.order(claim.Entry.ID))
	if placeErr != nil {
		return e.failed(ctx, out, placeErr)
	}
	return e.executed(ctx, out, fill)
}

func (e *Executor) failed(ctx context.Context, out Outcome, placeErr error) (Outcome, error) {
	in := out.Instruction
	out.Status = StatusFailed

	entry, err := e.ledger.Fail(ctx, out.Entry.ID, placeErr.Error())
	if err != nil {
		return out, errors.Join(fmt.Errorf("place order %s: %w", in.Key(), placeErr), err)
	}
	out.Entry = entry

	e.log.Error("order rejected", "key", in.Key().String(), "entry_id", entry.ID, "error", placeErr)
	e.notify(ctx, in.UserID, records.KindTradeFailed,
		fmt.Sprintf("%s %s failed: %v", in.Side, in.Symbol, placeErr))
	return out, fmt.Errorf("place order %s: %w", in.Key(), placeErr)
}

// executed completes the entry before writing the trade row: once the
// exchange has filled, the instruction must never be placed again even if
// the bookkeeping below fails.
func (e *Executor) executed(ctx context.Context, out Outcome, fill Fill) (Outcome, error) {
	in := out.Instruction
	if fill.ExecutedAt.IsZero() {
		fill.ExecutedAt = e.now()
	}

	result, err := fillResult(fill)
	if err != nil {
		return Outcome{}, fmt.Errorf("encode fill %s: %w", in.Key(), err)
	}

	entry, err := e.ledger.Complete(ctx, out.Entry.ID, result)
	if err != nil {
		return Outcome{}, fmt.Errorf("complete %s: %w", in.Key(), err)
	}
	out.Entry = entry

	if entry.Status != model.StatusCompleted {
		// The trade row below is what stops a later reclaim of this entry
		// from placing the order a second time.
		e.log.Error("order filled but ledger entry was already finished",
			"key", in.Key().String(),
			"entry_id", entry.ID,
			"entry_status", entry.Status,
			"entry_error", entry.Error,
			"order_id", fill.OrderID,
		)
		out.Status = StatusConflict
		out, err = e.recordFill(ctx, out, fill)
		if err != nil {
			return out, err
		}
		return out, fmt.Errorf("complete %s: %w", in.Key(), ErrEntryFinished)
	}

	out.Status = StatusExecuted
	e.log.Info("order filled",
		"key", in.Key().String(),
		"entry_id", entry.ID,
		"order_id", fill.OrderID,
		"quantity", fill.Quantity.String(),
		"price", fill.Price.String(),
	)
	return e.recordFill(ctx, out, fill)
}

func (e *Executor) recordFill(ctx context.Context, out Outcome, fill Fill) (Outcome, error) {
	if e.records == nil {
		return out, nil
	}
	in := out.Instruction
	trade, err := e.records.AddTrade(ctx, records.Trade{
		UserID:     in.UserID,
		EntryID:    out.Entry.ID,
		Symbol:     in.Symbol,
		Type:       in.Side,
		Quantity:   fill.Quantity,
		Price:      fill.Price,
		ExecutedAt: fill.ExecutedAt,
	})
	if err != nil {
		return out, fmt.Errorf("record trade %s: %w", in.Key(), err)
	}
	out.Trade = &trade

	e.notify(ctx, in.UserID, records.KindTradeExecuted,
		fmt.Sprintf("%s %s %s @ %s", in.Side, fill.Quantity, in.Symbol, fill.Price))
	return out, nil
}

// settledEarlier completes a freshly reclaimed entry from its recorded
// trade, if an earlier attempt filled without completing it. done reports
// that out is final and nothing may be placed.
func (e *Executor) settledEarlier(ctx context.Context, out *Outcome) (done bool, err error) {
	if e.records == nil {
		return false, nil
	}
	in := out.Instruction
	trade, ok, err := e.records.TradeForEntry(ctx, out.Entry.ID)
	if err != nil || !ok {
		return false, err
	}

	result, err := fillResult(Fill{Quantity: trade.Quantity, Price: trade.Price, ExecutedAt: trade.ExecutedAt})
	if err != nil {
		return true, fmt.Errorf("encode fill %s: %w", in.Key(), err)
	}
	entry, err := e.ledger.Complete(ctx, out.Entry.ID, result)
	if err != nil {
		return true, fmt.Errorf("complete %s: %w", in.Key(), err)
	}

	e.log.Warn("reclaimed entry already filled, completing without placing",
		"key", in.Key().String(),
		"entry_id", entry.ID,
		"trade_id", trade.ID,
	)
	out.Entry = entry
	out.Status = StatusDuplicate
	return true, nil
}

func fillResult(fill Fill) (string, error) {
	b, err := canon.Marshal(map[string]any{
		"order_id":    fill.OrderID,
		"quantity":    fill.Quantity,
		"price":       fill.Price,
		"executed_at": fill.ExecutedAt,
	})
	return string(b), err
}

// notify is best effort; a lost notification never fails an execution.
func (e *Executor) notify(ctx context.Context, userID, kind, message string) {
	if e.records == nil {
		return
	}
	if _, err := e.records.AddNotification(ctx, records.Notification{
		UserID:  userID,
		Kind:    kind,
		Message: message,
	}); err != nil {
		e.log.Warn("failed to record notification", "user_id", userID, "kind", kind, "error", err)
	}
}

// Settle converts outcomes into reconciliation input. Only filled
// outcomes carry a trade; every other outcome settles nothing.
func Settle(outcomes []Outcome) []model.Execution {
	executions := make([]model.Execution, 0, len(outcomes))
	for _, o := range outcomes {
		inf := o.Instruction.Inference
		if inf == nil {
			inf = model.WithoutCategory{}
		}
		ex := model.Execution{
			Request: model.ExecutionRequest{
				Symbol:    o.Instruction.Symbol,
				Diff:      o.Instruction.Diff,
				Inference: inf,
			},
		}
		if o.Filled() {
			ex.Trade = &model.TradeOutcome{Type: o.Instruction.Side}
		}
		executions = append(executions, ex)
	}
	return executions
}
