package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/internal/metrics"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// Instrumented wraps an Adapter and records call latency and error
// counts per method against the shared metrics registry. Any concrete
// adapter can be dropped in underneath without its own instrumentation.
type Instrumented struct {
	next Adapter
}

// Instrument wraps adapter with call-duration and error-count metrics.
func Instrument(adapter Adapter) *Instrumented {
	return &Instrumented{next: adapter}
}

func observe(method string, err error, start time.Time) {
	metrics.ExchangeCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ExchangeCallErrors.WithLabelValues(method).Inc()
	}
}

func (i *Instrumented) ListMarkets(ctx context.Context) ([]MarketInfo, error) {
	start := time.Now()
	out, err := i.next.ListMarkets(ctx)
	observe("ListMarkets", err, start)
	return out, err
}

func (i *Instrumented) MinuteCandles(ctx context.Context, market string, unit, count int) ([]types.Candle, error) {
	start := time.Now()
	out, err := i.next.MinuteCandles(ctx, market, unit, count)
	observe("MinuteCandles", err, start)
	return out, err
}

func (i *Instrumented) DayCandles(ctx context.Context, market string, count int) ([]types.Candle, error) {
	start := time.Now()
	out, err := i.next.DayCandles(ctx, market, count)
	observe("DayCandles", err, start)
	return out, err
}

func (i *Instrumented) Ticker(ctx context.Context, markets []string) ([]Ticker, error) {
	start := time.Now()
	out, err := i.next.Ticker(ctx, markets)
	observe("Ticker", err, start)
	return out, err
}

func (i *Instrumented) Orderbook(ctx context.Context, market string) (Orderbook, error) {
	start := time.Now()
	out, err := i.next.Orderbook(ctx, market)
	observe("Orderbook", err, start)
	return out, err
}

func (i *Instrumented) Accounts(ctx context.Context, userID string) ([]Account, error) {
	start := time.Now()
	out, err := i.next.Accounts(ctx, userID)
	observe("Accounts", err, start)
	return out, err
}

func (i *Instrumented) BuyMarket(ctx context.Context, userID, market string, krwAmount decimal.Decimal) (OrderAck, error) {
	start := time.Now()
	out, err := i.next.BuyMarket(ctx, userID, market, krwAmount)
	observe("BuyMarket", err, start)
	return out, err
}

func (i *Instrumented) SellMarket(ctx context.Context, userID, market string, volume decimal.Decimal) (OrderAck, error) {
	start := time.Now()
	out, err := i.next.SellMarket(ctx, userID, market, volume)
	observe("SellMarket", err, start)
	return out, err
}

func (i *Instrumented) BuyLimit(ctx context.Context, userID, market string, volume, price decimal.Decimal) (OrderAck, error) {
	start := time.Now()
	out, err := i.next.BuyLimit(ctx, userID, market, volume, price)
	observe("BuyLimit", err, start)
	return out, err
}

func (i *Instrumented) SellLimit(ctx context.Context, userID, market string, volume, price decimal.Decimal) (OrderAck, error) {
	start := time.Now()
	out, err := i.next.SellLimit(ctx, userID, market, volume, price)
	observe("SellLimit", err, start)
	return out, err
}

func (i *Instrumented) GetOrder(ctx context.Context, userID, uuid string) (OrderStatus, error) {
	start := time.Now()
	out, err := i.next.GetOrder(ctx, userID, uuid)
	observe("GetOrder", err, start)
	return out, err
}

func (i *Instrumented) CancelOrder(ctx context.Context, userID, uuid string) error {
	start := time.Now()
	err := i.next.CancelOrder(ctx, userID, uuid)
	observe("CancelOrder", err, start)
	return err
}
