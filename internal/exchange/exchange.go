// Package exchange defines the capability set the engine depends on
// from the venue adapter (SPEC_FULL.md §6). Concrete HTTP/JWT wiring
// against a specific exchange is out of scope; this package only
// describes the port and the data shapes crossing it.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// OrderState is the lifecycle state of one submitted order.
type OrderState string

const (
	OrderWait   OrderState = "wait"
	OrderWatch  OrderState = "watch"
	OrderDone   OrderState = "done"
	OrderCancel OrderState = "cancel"
)

// MarketInfo is one listed market, with an optional caution flag.
type MarketInfo struct {
	Market  string
	Warning string
}

// Ticker is a market's most recent trade snapshot.
type Ticker struct {
	Market     string
	TradePrice decimal.Decimal
}

// OrderbookLevel is one price/size level on a side of the book.
type OrderbookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Orderbook is the current bid/ask ladder for a market.
type Orderbook struct {
	Market   string
	Bids     []OrderbookLevel
	Asks     []OrderbookLevel
	TotalBid decimal.Decimal
	TotalAsk decimal.Decimal
}

// Account is one currency balance for a user.
type Account struct {
	Currency     string
	Balance      decimal.Decimal
	Locked       decimal.Decimal
	AvgBuyPrice  decimal.Decimal
}

// OrderAck is the immediate response to an order submission.
type OrderAck struct {
	UUID           string
	State          OrderState
	ExecutedVolume decimal.Decimal
	ExecutedFunds  decimal.Decimal
}

// OrderStatus is the result of polling an order's current state.
type OrderStatus struct {
	UUID           string
	State          OrderState
	ExecutedVolume decimal.Decimal
	ExecutedFunds  decimal.Decimal
}

// Adapter is the exchange capability set the core depends on
// (SPEC_FULL.md §6). Every method is a blocking network call with a
// bounded timeout owned by the concrete implementation.
type Adapter interface {
	ListMarkets(ctx context.Context) ([]MarketInfo, error)
	MinuteCandles(ctx context.Context, market string, unit, count int) ([]types.Candle, error) // newest-first
	DayCandles(ctx context.Context, market string, count int) ([]types.Candle, error)
	Ticker(ctx context.Context, markets []string) ([]Ticker, error)
	Orderbook(ctx context.Context, market string) (Orderbook, error)
	Accounts(ctx context.Context, userID string) ([]Account, error)

	BuyMarket(ctx context.Context, userID, market string, krwAmount decimal.Decimal) (OrderAck, error)
	SellMarket(ctx context.Context, userID, market string, volume decimal.Decimal) (OrderAck, error)
	BuyLimit(ctx context.Context, userID, market string, volume, price decimal.Decimal) (OrderAck, error)
	SellLimit(ctx context.Context, userID, market string, volume, price decimal.Decimal) (OrderAck, error)

	GetOrder(ctx context.Context, userID, uuid string) (OrderStatus, error)
	CancelOrder(ctx context.Context, userID, uuid string) error
}

// FillWaiter polls GetOrder until a terminal state or the retry cap
// is reached (SPEC_FULL.md §4.6: bounded retries at a fixed interval).
func FillWaiter(ctx context.Context, adapter Adapter, userID, uuid string, maxRetry int, interval time.Duration) (OrderStatus, error) {
	var last OrderStatus
	for attempt := 0; attempt < maxRetry; attempt++ {
		status, err := adapter.GetOrder(ctx, userID, uuid)
		if err != nil {
			return OrderStatus{}, err
		}
		last = status
		if status.State == OrderDone || status.State == OrderCancel {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(interval):
		}
	}
	return last, nil
}
