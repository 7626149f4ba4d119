// Package indicator provides pure, stateless numerical routines over a
// candle window, as specified in SPEC_FULL.md §4.1. None of these
// functions retain state across calls; callers own any memoization.
package indicator

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// ErrInsufficientWindow is returned whenever the supplied window is
// shorter than the period the routine needs.
type ErrInsufficientWindow struct {
	Need int
	Have int
}

func (e *ErrInsufficientWindow) Error() string {
	return fmt.Sprintf("indicator: need at least %d bars, have %d", e.Need, e.Have)
}

func closes(bars []types.Candle) []decimal.Decimal {
	out := make([]decimal.Decimal, len(bars))
	for i, c := range bars {
		out[i] = c.TradePrice
	}
	return out
}

// SMA is the arithmetic mean of the last n closes in an ascending window.
func SMA(bars []types.Candle, n int) (decimal.Decimal, error) {
	if len(bars) < n {
		return decimal.Zero, &ErrInsufficientWindow{Need: n, Have: len(bars)}
	}
	tail := bars[len(bars)-n:]
	sum := decimal.Zero
	for _, c := range tail {
		sum = sum.Add(c.TradePrice)
	}
	return sum.Div(decimal.NewFromInt(int64(n))), nil
}

// EMA computes the standard recursive exponential moving average with
// smoothing 2/(n+1), seeded from the SMA of the first n closes.
func EMA(bars []types.Candle, n int) (decimal.Decimal, error) {
	if len(bars) < n {
		return decimal.Zero, &ErrInsufficientWindow{Need: n, Have: len(bars)}
	}
	cs := closes(bars)
	sum := decimal.Zero
	for _, c := range cs[:n] {
		sum = sum.Add(c)
	}
	ema := sum.Div(decimal.NewFromInt(int64(n)))
	mult := decimal.NewFromFloat(2.0 / float64(n+1))
	for _, c := range cs[n:] {
		ema = c.Sub(ema).Mul(mult).Add(ema)
	}
	return ema, nil
}

// RSI computes Wilder's RSI over the last n closes. A zero average loss
// maps to 100, the fully-overbought edge case.
func RSI(bars []types.Candle, n int) (decimal.Decimal, error) {
	if len(bars) < n+1 {
		return decimal.Zero, &ErrInsufficientWindow{Need: n + 1, Have: len(bars)}
	}
	tail := bars[len(bars)-(n+1):]
	gain, loss := decimal.Zero, decimal.Zero
	for i := 1; i < len(tail); i++ {
		delta := tail[i].TradePrice.Sub(tail[i-1].TradePrice)
		if delta.IsPositive() {
			gain = gain.Add(delta)
		} else {
			loss = loss.Add(delta.Abs())
		}
	}
	avgGain := gain.Div(decimal.NewFromInt(int64(n)))
	avgLoss := loss.Div(decimal.NewFromInt(int64(n)))
	if avgLoss.IsZero() {
		return decimal.NewFromInt(100), nil
	}
	rs := avgGain.Div(avgLoss)
	hundred := decimal.NewFromInt(100)
	return hundred.Sub(hundred.Div(rs.Add(decimal.NewFromInt(1)))), nil
}

// ATR computes Wilder's average true range over the last n bars, using
// true range = max(h-l, |h-prevClose|, |l-prevClose|).
func ATR(bars []types.Candle, n int) (decimal.Decimal, error) {
	if len(bars) < n+1 {
		return decimal.Zero, &ErrInsufficientWindow{Need: n + 1, Have: len(bars)}
	}
	tail := bars[len(bars)-(n+1):]
	sum := decimal.Zero
	for i := 1; i < len(tail); i++ {
		hl := tail[i].High.Sub(tail[i].Low).Abs()
		hc := tail[i].High.Sub(tail[i-1].TradePrice).Abs()
		lc := tail[i].Low.Sub(tail[i-1].TradePrice).Abs()
		tr := hl
		if hc.GreaterThan(tr) {
			tr = hc
		}
		if lc.GreaterThan(tr) {
			tr = lc
		}
		sum = sum.Add(tr)
	}
	return sum.Div(decimal.NewFromInt(int64(n))), nil
}

// BollingerBands is the (middle, upper, lower) triple over the last n
// closes, using population standard deviation.
type BollingerBands struct {
	Middle decimal.Decimal
	Upper  decimal.Decimal
	Lower  decimal.Decimal
}

// Bollinger returns the bands over the last n closes with width k*sigma.
func Bollinger(bars []types.Candle, n int, k decimal.Decimal) (BollingerBands, error) {
	if len(bars) < n {
		return BollingerBands{}, &ErrInsufficientWindow{Need: n, Have: len(bars)}
	}
	tail := closes(bars[len(bars)-n:])
	mean := meanOf(tail)
	sigma := popStdDev(tail, mean)
	width := sigma.Mul(k)
	return BollingerBands{
		Middle: mean,
		Upper:  mean.Add(width),
		Lower:  mean.Sub(width),
	}, nil
}

// ZScore returns (current-mean)/sigma over the last n samples; a zero
// sigma maps to 0 rather than dividing by zero.
func ZScore(samples []decimal.Decimal, n int) (decimal.Decimal, error) {
	if len(samples) < n {
		return decimal.Zero, &ErrInsufficientWindow{Need: n, Have: len(samples)}
	}
	tail := samples[len(samples)-n:]
	mean := meanOf(tail)
	sigma := popStdDev(tail, mean)
	if sigma.IsZero() {
		return decimal.Zero, nil
	}
	current := tail[len(tail)-1]
	return current.Sub(mean).Div(sigma), nil
}

func meanOf(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

func popStdDev(values []decimal.Decimal, mean decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values))))
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

// VolumeZScore is ZScore specialized for a candle window's accumulated
// trade volume, used by the volume-impulse strategy.
func VolumeZScore(bars []types.Candle, n int) (decimal.Decimal, error) {
	if len(bars) < n {
		return decimal.Zero, &ErrInsufficientWindow{Need: n, Have: len(bars)}
	}
	vols := make([]decimal.Decimal, len(bars))
	for i, c := range bars {
		vols[i] = c.CandleAccVolume
	}
	return ZScore(vols, n)
}
