package model

// TradeType labels a settled trade's direction. The concrete labels are
// configured by the caller (see reconcile.Reconcile).
type TradeType string

// Inference carries the optional category attached to an execution
// request. It is a closed sum: WithCategory or WithoutCategory.
type Inference interface {
	inference()
}

// WithCategory is an inference that names the position's category.
type WithCategory struct {
	Category string
}

func (WithCategory) inference() {}

// WithoutCategory marks an execution whose category is unknown.
type WithoutCategory struct{}

func (WithoutCategory) inference() {}

// CategoryOf returns the category and true when inf is WithCategory.
func CategoryOf(inf Inference) (string, bool) {
	if wc, ok := inf.(WithCategory); ok {
		return wc.Category, true
	}
	return "", false
}

// ExecutionRequest is the reconciliation input for one instruction.
// Diff is the signed position delta as a fraction of the prior position;
// -1 is the full-liquidation sentinel.
type ExecutionRequest struct {
	Symbol    string
	Diff      float64
	Inference Inference
}

// TradeOutcome is the settled trade for an execution request.
type TradeOutcome struct {
	Type TradeType
}

// Execution pairs a request with its settled trade. Trade is nil when no
// trade settled.
type Execution struct {
	Request ExecutionRequest
	Trade   *TradeOutcome
}
