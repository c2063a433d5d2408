package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/roach88/tradeledger/internal/model"
)

// Order is what the executor asks the exchange to do. EntryID is the
// ledger entry id; exchanges that support client order ids should use it.
type Order struct {
	EntryID  string
	UserID   string
	Symbol   string
	Side     model.TradeType
	Quantity decimal.Decimal
	// Price is the limit price; zero means market.
	Price decimal.Decimal
}

// Fill is the exchange's report of an executed order.
type Fill struct {
	OrderID    string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	ExecutedAt time.Time
}

// Exchange places orders. Implementations talk to a real venue; the
// executor never retries a Place call itself.
type Exchange interface {
	Place(ctx context.Context, order Order) (Fill, error)
}

// ExchangeFunc adapts a function to Exchange.
type ExchangeFunc func(ctx context.Context, order Order) (Fill, error)

func (f ExchangeFunc) Place(ctx context.Context, order Order) (Fill, error) {
	return f(ctx, order)
}
