package strategy

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

const (
	vwapPeriod    = 30
	vwapMinWin    = 30
	vwapBandRate  = 0.01 // 1% deviation band around VWAP
)

// VWAPReversion buys when price trades a band below the rolling
// volume-weighted average price and sells on reversion back to VWAP.
type VWAPReversion struct {
	base
}

func NewVWAPReversion(logger *zap.Logger) *VWAPReversion {
	return &VWAPReversion{base: newBase(logger.Named("strategy.vwap_reversion"))}
}

func (s *VWAPReversion) Name() string       { return "vwap_reversion" }
func (s *VWAPReversion) MinWindowLen() int { return vwapMinWin }

func (s *VWAPReversion) Analyze(market string, window types.CandleWindow) (types.Signal, error) {
	return s.evaluate(market, window, nil)
}

func (s *VWAPReversion) AnalyzeForBacktest(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	return s.evaluate(market, window, position)
}

// vwap computes the volume-weighted average price over the tail of
// bars using each candle's own cumulative value/volume fields, so it
// needs no separate running accumulator across calls.
func vwap(bars []types.Candle, n int) (decimal.Decimal, bool) {
	if len(bars) < n {
		return decimal.Zero, false
	}
	tail := bars[len(bars)-n:]
	value, volume := decimal.Zero, decimal.Zero
	for _, c := range tail {
		value = value.Add(c.CandleAccValue)
		volume = volume.Add(c.CandleAccVolume)
	}
	if volume.IsZero() {
		return decimal.Zero, false
	}
	return value.Div(volume), true
}

func (s *VWAPReversion) evaluate(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	bars := window.Ascending()
	if len(bars) < vwapMinWin {
		return types.HoldSignal(), nil
	}
	avg, ok := vwap(bars, vwapPeriod)
	if !ok {
		return types.HoldSignal(), nil
	}
	last := window.Last()
	band := avg.Mul(decimal.NewFromFloat(vwapBandRate))
	holding := position != nil && position.IsOpen()

	if !holding {
		if last.TradePrice.LessThanOrEqual(avg.Sub(band)) {
			s.setAdvisory(market, avg, decimal.Zero, last.TradePrice)
			return types.Signal{Action: types.Buy, EntryPrice: last.TradePrice, TargetPrice: avg}, nil
		}
		return types.HoldSignal(), nil
	}

	if last.TradePrice.GreaterThanOrEqual(avg) {
		return s.sellWithReason(market, types.ExitTakeProfit), nil
	}
	return types.HoldSignal(), nil
}
