package holdings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/tradeledger/internal/model"
	"github.com/roach88/tradeledger/internal/reconcile"
	"github.com/roach88/tradeledger/internal/records"
)

// AuditModule is the module name on audit runs written by Service.
const AuditModule = "holdings"

// Default trade type labels.
const (
	DefaultBuyType  model.TradeType = "buy"
	DefaultSellType model.TradeType = "sell"
)

// Service runs reconciliation passes: read snapshot, fold executions,
// replace snapshot, record an audit run.
type Service struct {
	repo     *Repository
	audit    *records.Repository
	buyType  model.TradeType
	sellType model.TradeType
	now      func() time.Time
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithTradeTypes sets the buy and sell labels matched against settled
// trades.
func WithTradeTypes(buy, sell model.TradeType) Option {
	return func(s *Service) {
		s.buyType = buy
		s.sellType = sell
	}
}

// WithClock overrides the clock used for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// NewService creates a service. audit may be nil to skip audit runs.
func NewService(repo *Repository, audit *records.Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		audit:    audit,
		buyType:  DefaultBuyType,
		sellType: DefaultSellType,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes one pass.
type Result struct {
	UserID   string              `json:"user_id"`
	Holdings []model.HoldingItem `json:"holdings"`
	Added    []model.Position    `json:"added"`
	Removed  []model.Position    `json:"removed"`
	AuditID  string              `json:"audit_id,omitempty"`
}

// Reconcile folds executions into the user's stored snapshot and stores
// the result. Audit runs are best effort. A contract violation in the stored snapshot is recorded as a
// failed audit run and returned; the snapshot is left untouched.
func (s *Service) Reconcile(ctx context.Context, userID string, executions []model.Execution) (Result, error) {
	started := s.now()

	existing, err := s.repo.Snapshot(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	next, err := reconcile.Reconcile(existing, executions, s.buyType, s.sellType)
	if err != nil {
		s.log.Error("holdings reconciliation rejected", "user_id", userID, "error", err)
		if _, auditErr := s.record(ctx, userID, records.AuditFailed, err.Error(), started); auditErr != nil {
			s.log.Warn("failed to record audit run", "user_id", userID, "error", auditErr)
		}
		return Result{}, fmt.Errorf("reconcile %s: %w", userID, err)
	}

	if err := s.repo.Replace(ctx, userID, next); err != nil {
		return Result{}, err
	}

	res := Result{
		UserID:   userID,
		Holdings: next,
		Added:    diff(next, existing),
		Removed:  diff(existing, next),
	}
	summary := fmt.Sprintf("executions=%d held=%d added=%d removed=%d",
		len(executions), len(next), len(res.Added), len(res.Removed))

	// The snapshot is already stored; a lost audit run does not undo it.
	if run, err := s.record(ctx, userID, records.AuditSucceeded, summary, started); err != nil {
		s.log.Warn("failed to record audit run", "user_id", userID, "error", err)
	} else {
		res.AuditID = run.ID
	}

	s.log.Info("holdings reconciled",
		"user_id", userID,
		"executions", len(executions),
		"held", len(next),
		"added", len(res.Added),
		"removed", len(res.Removed),
	)
	return res, nil
}

func (s *Service) record(ctx context.Context, userID, status, summary string, started time.Time) (records.AuditRun, error) {
	if s.audit == nil {
		return records.AuditRun{}, nil
	}
	return s.audit.AddAuditRun(ctx, records.AuditRun{
		UserID:     userID,
		Module:     AuditModule,
		Status:     status,
		Summary:    summary,
		StartedAt:  started,
		FinishedAt: s.now(),
	})
}

// diff returns positions in a but not in b, in a's order.
func diff(a, b []model.HoldingItem) []model.Position {
	in := make(map[string]struct{}, len(b))
	for _, h := range b {
		in[h.Key()] = struct{}{}
	}
	out := []model.Position{}
	for _, h := range a {
		if _, ok := in[h.Key()]; !ok {
			out = append(out, h.Position)
		}
	}
	return out
}
