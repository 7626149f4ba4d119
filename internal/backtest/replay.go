// Package backtest implements the deterministic, single-threaded
// per-market replay executor described in SPEC_FULL.md §4.7.
package backtest

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/internal/metrics"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

const buyFraction = 0.99 // invest 99% of available KRW, leaving fee headroom

// Result is the full outcome of one market's replay.
type Result struct {
	Market string

	InitialKRW decimal.Decimal
	FinalKRW   decimal.Decimal
	FinalAsset decimal.Decimal

	TotalProfitRate decimal.Decimal
	MaxProfitRate   decimal.Decimal
	MaxDrawdown     decimal.Decimal
	BuyAndHoldRate  decimal.Decimal

	BuyCount  int
	SellCount int
	WinCount  int
	LoseCount int

	ExitReasonCounts map[types.ExitReason]int

	Trades []types.TradeRecord
}

// WinRate returns WinCount / (WinCount + LoseCount), or zero if no
// trade closed.
func (r Result) WinRate() decimal.Decimal {
	total := r.WinCount + r.LoseCount
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(r.WinCount)).Div(decimal.NewFromInt(int64(total)))
}

// Run replays bars[minRequired:] for one market, feeding each bar's
// ascending-sliced window to eval, and returns the full result.
// bars must already be sorted oldest-first.
func Run(market string, bars []types.Candle, eval Evaluator, feeRate decimal.Decimal, initialKRW decimal.Decimal) (Result, error) {
	start := time.Now()
	defer func() { metrics.BacktestRunDuration.WithLabelValues(market).Observe(time.Since(start).Seconds()) }()

	minRequired := eval.MinWindowLen()
	if len(bars) < minRequired {
		return Result{}, fmt.Errorf("backtest: market %s has %d bars, need at least %d", market, len(bars), minRequired)
	}

	p := newPortfolio(initialKRW)
	window := types.NewCandleWindow(market, bars[0].UnitMinutes, bars)

	result := Result{
		Market:           market,
		InitialKRW:       initialKRW,
		ExitReasonCounts: make(map[types.ExitReason]int),
	}

	var pos *types.Position
	firstPrice := bars[0].TradePrice

	for i := minRequired; i < len(bars); i++ {
		bar := bars[i]
		slice := window.Slice(i + 1)

		if p.holding() {
			if bar.High.GreaterThan(p.highestSinceBuy) {
				p.highestSinceBuy = bar.High
			}
			sig := eval.Evaluate(market, slice, pos)
			if sig.Action == types.Sell {
				qtySold := p.coinBalance
				buyPrice := p.lastBuyPrice
				_, fee := p.sell(bar.TradePrice, feeRate)
				profitRate := bar.TradePrice.Sub(buyPrice).Div(buyPrice)

				reason := sig.ExitReason
				if reason == "" {
					reason = fallbackExitReason(profitRate)
				}
				result.ExitReasonCounts[reason]++
				result.SellCount++
				if profitRate.IsPositive() {
					result.WinCount++
				} else {
					result.LoseCount++
				}

				result.Trades = append(result.Trades, types.TradeRecord{
					ID:          uuid.NewString(),
					Market:      market,
					Timestamp:   bar.TimestampKST,
					Side:        types.SideSell,
					Price:       bar.TradePrice,
					Volume:      qtySold,
					Fee:         fee,
					KRWBalance:  p.krwBalance,
					CoinBalance: p.coinBalance,
					TotalAsset:  p.totalAsset(bar.TradePrice),
					ProfitRate:  profitRate,
					ExitReason:  reason,
				})
				pos = nil
			}
		} else {
			sig := eval.Evaluate(market, slice, pos)
			if sig.Action == types.Buy {
				qty, fee := p.buy(bar.TradePrice, feeRate, decimal.NewFromFloat(buyFraction), bar.TimestampKST)
				result.BuyCount++
				pos = &types.Position{
					Market:        market,
					Status:        types.PositionActive,
					AvgEntryPrice: bar.TradePrice,
					Quantity:      qty,
					HighestPrice:  bar.TradePrice,
				}
				result.Trades = append(result.Trades, types.TradeRecord{
					ID:          uuid.NewString(),
					Market:      market,
					Timestamp:   bar.TimestampKST,
					Side:        types.SideBuy,
					Price:       bar.TradePrice,
					Volume:      qty,
					Fee:         fee,
					KRWBalance:  p.krwBalance,
					CoinBalance: p.coinBalance,
					TotalAsset:  p.totalAsset(bar.TradePrice),
				})
			}
		}

		p.trackExtremes(bar.TradePrice)
	}

	lastPrice := bars[len(bars)-1].TradePrice
	result.FinalKRW = p.krwBalance
	result.FinalAsset = p.totalAsset(lastPrice)
	if initialKRW.IsPositive() {
		result.TotalProfitRate = result.FinalAsset.Sub(initialKRW).Div(initialKRW)
		result.MaxProfitRate = p.maxTotalAsset.Sub(initialKRW).Div(initialKRW)
		result.BuyAndHoldRate = lastPrice.Sub(firstPrice).Div(firstPrice)
	}
	if p.maxTotalAsset.IsPositive() {
		result.MaxDrawdown = p.maxTotalAsset.Sub(p.minTotalAsset).Div(p.maxTotalAsset)
	}
	return result, nil
}

// fallbackExitReason derives an ExitReason from the sign of the
// realized profit rate when the Sell signal carries no ExitReason
// (SPEC_FULL.md §4.7).
func fallbackExitReason(profitRate decimal.Decimal) types.ExitReason {
	if profitRate.IsPositive() {
		return types.ExitTakeProfit
	}
	return types.ExitStopLossFixed
}
