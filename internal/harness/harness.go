package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tradeledger/internal/canon"
	"github.com/roach88/tradeledger/internal/execution"
	"github.com/roach88/tradeledger/internal/holdings"
	"github.com/roach88/tradeledger/internal/ledger"
	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/reconcile"
	"github.com/roach88/tradeledger/internal/records"
	"github.com/roach88/tradeledger/internal/sequence"
	"github.com/roach88/tradeledger/internal/store"
	"github.com/roach88/tradeledger/internal/testutil"
)

// Epoch is the frozen start time of every scenario.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Harness runs one scenario against real components over an in-memory
// store, with a frozen clock and sequential ids so traces are reproducible.
type Harness struct {
	clock    *testutil.Clock
	ledger   *ledger.Ledger
	records  *records.Repository
	holdings *holdings.Repository
	service  *holdings.Service
	executor *execution.Executor

	// reject, when set, makes the exchange refuse the next order.
	reject string
	// settled holds executed outcomes per user awaiting a reconcile step.
	settled map[string][]execution.Outcome
}

// Run executes a scenario and returns the result. A non-nil error means a
// step could not run at all (store failure, malformed instruction); failed
// expectations and assertions are reported in Result.Errors.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(st, scenario.Retry)

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.runStep(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		ev.Step = i
		result.addTrace(ev)

		if step.Expect != "" && ev.Outcome != step.Expect {
			result.AddError(fmt.Sprintf("steps[%d] %s: expected outcome %q, got %q", i, step.Action, step.Expect, ev.Outcome))
		}
	}

	for _, msg := range EvaluateAssertions(ctx, h, result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, retry *RetrySettings) *Harness {
	clock := testutil.NewClock(Epoch)
	log := slog.New(slog.NewTextHandler(io.Discard, nil)) // suppress logs in scenarios

	led := ledger.New(st,
		ledger.WithClock(clock.Now),
		ledger.WithIDGenerator(testutil.NewSequentialIDs("entry").Next),
		ledger.WithLogger(log),
	)
	rec := records.New(st, sequence.New(st),
		records.WithClock(clock.Now),
		records.WithIDGenerator(testutil.NewSequentialIDs("rec").Next),
		records.WithLogger(log),
	)
	repo := holdings.NewRepository(st, clock.Now)

	h := &Harness{
		clock:    clock,
		ledger:   led,
		records:  rec,
		holdings: repo,
		service:  holdings.NewService(repo, rec, holdings.WithClock(clock.Now), holdings.WithLogger(log)),
		settled:  make(map[string][]execution.Outcome),
	}

	policy := ledger.NeverRetry
	if retry != nil {
		policy = ledger.AttemptPolicy{MaxAttempts: retry.MaxAttempts, RetryFailed: retry.RetryFailed}
	}

	paper := execution.NewPaperExchange(clock.Now)
	exchange := execution.ExchangeFunc(func(ctx context.Context, o execution.Order) (execution.Fill, error) {
		if h.reject != "" {
			return execution.Fill{}, errors.New(h.reject)
		}
		return paper.Place(ctx, o)
	})
	h.executor = execution.New(led, exchange, rec,
		execution.WithRetryPolicy(policy),
		execution.WithClock(clock.Now),
		execution.WithLogger(log),
	)
	return h
}

func (h *Harness) runStep(ctx context.Context, st Step) (TraceEvent, error) {
	ev := TraceEvent{Action: st.Action, User: st.User, Key: st.Key}

	switch st.Action {
	case ActionExecute:
		return h.execute(ctx, st, ev)
	case ActionClaim:
		return h.claim(ctx, st, ev)
	case ActionComplete, ActionFail:
		return h.finish(ctx, st, ev)
	case ActionReconcile:
		return h.reconcile(ctx, st, ev)
	case ActionAdvance:
		h.clock.Advance(st.By)
		ev.Outcome = st.By.String()
		return ev, nil
	case ActionSweep:
		stale, err := h.ledger.ListStale(ctx, h.clock.Now())
		if err != nil {
			return ev, err
		}
		ev.Outcome = fmt.Sprintf("stale=%d", len(stale))
		return ev, nil
	default:
		return ev, fmt.Errorf("unknown action %q", st.Action)
	}
}

func (h *Harness) execute(ctx context.Context, st Step, ev TraceEvent) (TraceEvent, error) {
	in, err := st.instruction(h.clock.Now())
	if err != nil {
		return ev, err
	}

	h.reject = st.Reject
	out, err := h.executor.Execute(ctx, in)
	h.reject = ""
	if err != nil && out.Status != execution.StatusFailed && out.Status != execution.StatusConflict {
		return ev, err
	}

	ev.Outcome = string(out.Status)
	ev.EntryID = out.Entry.ID
	ev.Attempts = out.Entry.AttemptCount
	if out.Filled() {
		h.settled[st.User] = append(h.settled[st.User], out)
	}
	return ev, nil
}

func (h *Harness) claim(ctx context.Context, st Step, ev TraceEvent) (TraceEvent, error) {
	payload := st.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	hash, err := canon.PayloadHash(payload)
	if err != nil {
		return ev, err
	}

	c, err := h.ledger.Claim(ctx, ledger.ClaimRequest{
		Key:         st.key(),
		PayloadHash: hash,
		Validity:    st.validity(h.clock.Now()),
	})
	if err != nil {
		return ev, err
	}

	ev.EntryID = c.Entry.ID
	ev.Attempts = c.Entry.AttemptCount
	switch {
	case c.PayloadMismatch:
		ev.Outcome = "payload_mismatch"
	case !c.IsNew:
		ev.Outcome = "duplicate"
	case c.Stale:
		ev.Outcome = "stale"
	default:
		ev.Outcome = "new"
	}
	return ev, nil
}

func (h *Harness) finish(ctx context.Context, st Step, ev TraceEvent) (TraceEvent, error) {
	entry, err := h.ledger.Find(ctx, st.key())
	if errors.Is(err, ledger.ErrEntryNotFound) {
		ev.Outcome = "not_found"
		return ev, nil
	}
	if err != nil {
		return ev, err
	}

	if st.Action == ActionComplete {
		entry, err = h.ledger.Complete(ctx, entry.ID, "")
	} else {
		entry, err = h.ledger.Fail(ctx, entry.ID, st.Reason)
	}
	if err != nil {
		return ev, err
	}

	ev.EntryID = entry.ID
	ev.Attempts = entry.AttemptCount
	ev.Outcome = string(entry.Status)
	return ev, nil
}

func (h *Harness) reconcile(ctx context.Context, st Step, ev TraceEvent) (TraceEvent, error) {
	executions := execution.Settle(h.settled[st.User])
	if len(st.Executions) > 0 {
		executions = make([]model.Execution, 0, len(st.Executions))
		for _, e := range st.Executions {
			executions = append(executions, e.execution())
		}
	}

	res, err := h.service.Reconcile(ctx, st.User, executions)
	if reconcile.IsContractError(err) {
		ev.Outcome = "contract_error"
		return ev, nil
	}
	if err != nil {
		return ev, err
	}
	delete(h.settled, st.User)

	ev.Outcome = "reconciled"
	ev.Holdings = holdingLabels(res.Holdings)
	return ev, nil
}

func holdingLabels(items []model.HoldingItem) []string {
	labels := make([]string, len(items))
	for i, h := range items {
		labels[i] = h.Symbol + ":" + h.Category
	}
	return labels
}

func (st Step) key() model.IdempotencyKey {
	module := st.Module
	if module == "" {
		module = "trade"
	}
	return model.IdempotencyKey{Module: module, MessageKey: st.Key, UserID: st.User}
}

func (st Step) validity(now time.Time) model.Validity {
	v := model.Validity{GeneratedAt: now.Add(-st.Age)}
	if st.ExpiresIn > 0 {
		v.ExpiresAt = v.GeneratedAt.Add(st.ExpiresIn)
	}
	return v
}

func (st Step) instruction(now time.Time) (execution.Instruction, error) {
	quantity, err := decimal.NewFromString(st.Quantity)
	if err != nil {
		return execution.Instruction{}, fmt.Errorf("quantity: %w", err)
	}
	var price decimal.Decimal
	if st.Price != "" {
		if price, err = decimal.NewFromString(st.Price); err != nil {
			return execution.Instruction{}, fmt.Errorf("price: %w", err)
		}
	}

	key := st.key()
	return execution.Instruction{
		Module:     key.Module,
		MessageKey: key.MessageKey,
		UserID:     key.UserID,
		Symbol:     st.Symbol,
		Side:       model.TradeType(st.Side),
		Diff:       st.Diff,
		Inference:  inference(st.Category),
		Quantity:   quantity,
		Price:      price,
		Validity:   st.validity(now),
	}, nil
}

func (e ExecutionStep) execution() model.Execution {
	ex := model.Execution{
		Request: model.ExecutionRequest{
			Symbol:    e.Symbol,
			Diff:      e.Diff,
			Inference: inference(e.Category),
		},
	}
	if e.Trade != "" {
		ex.Trade = &model.TradeOutcome{Type: model.TradeType(e.Trade)}
	}
	return ex
}

func inference(category string) model.Inference {
	if category == "" {
		return model.WithoutCategory{}
	}
	return model.WithCategory{Category: category}
}
