package execution

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrNoPrice is returned by PaperExchange for orders without a price.
var ErrNoPrice = errors.New("paper exchange needs a price")

// PaperExchange fills every priced order in full at its price. It stands
// in for a venue in dry runs and the CLI.
type PaperExchange struct {
	now func() time.Time
	n   atomic.Int64
}

// NewPaperExchange creates a paper exchange. A nil now uses time.Now.
func NewPaperExchange(now func() time.Time) *PaperExchange {
	if now == nil {
		now = time.Now
	}
	return &PaperExchange{now: now}
}

func (p *PaperExchange) Place(ctx context.Context, o Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, err
	}
	if o.Price.IsZero() {
		return Fill{}, ErrNoPrice
	}
	if !o.Quantity.IsPositive() {
		return Fill{}, fmt.Errorf("paper exchange: quantity must be positive, got %s", o.Quantity)
	}
	return Fill{
		OrderID:    fmt.Sprintf("paper-%d", p.n.Add(1)),
		Quantity:   o.Quantity,
		Price:      o.Price,
		ExecutedAt: p.now(),
	}, nil
}
