// Package types provides the shared domain types for the trading engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is an immutable snapshot of one minute bar for a market.
type Candle struct {
	Market          string          `json:"market"`
	TimestampKST    time.Time       `json:"timestampKst"`
	TimestampUTC    time.Time       `json:"timestampUtc"`
	Open            decimal.Decimal `json:"open"`
	High            decimal.Decimal `json:"high"`
	Low             decimal.Decimal `json:"low"`
	TradePrice      decimal.Decimal `json:"tradePrice"` // close
	CandleAccVolume decimal.Decimal `json:"candleAccTradeVolume"`
	CandleAccValue  decimal.Decimal `json:"candleAccTradePrice"`
	UnitMinutes     int             `json:"unit"`
}

// Close returns the closing price of the bar (alias for TradePrice, kept
// for readability at call sites that treat the candle like an OHLC bar).
func (c Candle) Close() decimal.Decimal { return c.TradePrice }

// CandleWindow is an ordered sequence of candles for one market/unit,
// stored in ascending KST order. Ascending() returns the bars as stored
// and Newest() returns a newest-first copy; the strategies in this
// repository read Ascending() and Last().
type CandleWindow struct {
	Market string
	Unit   int
	bars   []Candle // ascending KST order, oldest first
}

// NewCandleWindow builds a window from candles in ascending KST order.
func NewCandleWindow(market string, unit int, ascending []Candle) CandleWindow {
	return CandleWindow{Market: market, Unit: unit, bars: ascending}
}

// Len returns the number of bars in the window.
func (w CandleWindow) Len() int { return len(w.bars) }

// Ascending returns the bars oldest-first, as stored.
func (w CandleWindow) Ascending() []Candle { return w.bars }

// Newest returns a copy of the bars newest-first.
func (w CandleWindow) Newest() []Candle {
	n := len(w.bars)
	out := make([]Candle, n)
	for i, c := range w.bars {
		out[n-1-i] = c
	}
	return out
}

// Slice returns the ascending-order sub-window [0, n), matching the
// slicing a backtest replay performs before invoking a strategy.
func (w CandleWindow) Slice(n int) CandleWindow {
	if n > len(w.bars) {
		n = len(w.bars)
	}
	return CandleWindow{Market: w.Market, Unit: w.Unit, bars: w.bars[:n]}
}

// At returns the bar at ascending index i (0 = oldest).
func (w CandleWindow) At(i int) Candle { return w.bars[i] }

// Last returns the most recent bar in the window.
func (w CandleWindow) Last() Candle { return w.bars[len(w.bars)-1] }
