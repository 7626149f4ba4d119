package strategy

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/indicator"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

const (
	trendShortPeriod = 12
	trendLongPeriod  = 26
	trendMinWin      = 30
)

// TrendFollowing buys while the short EMA is above the long EMA and
// sells while it is below; it compares the current values only and does
// not look for the bar on which the two crossed.
type TrendFollowing struct {
	base
}

func NewTrendFollowing(logger *zap.Logger) *TrendFollowing {
	return &TrendFollowing{base: newBase(logger.Named("strategy.trend_following"))}
}

func (s *TrendFollowing) Name() string       { return "trend_following" }
func (s *TrendFollowing) MinWindowLen() int { return trendMinWin }

func (s *TrendFollowing) Analyze(market string, window types.CandleWindow) (types.Signal, error) {
	return s.evaluate(market, window, nil)
}

func (s *TrendFollowing) AnalyzeForBacktest(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	return s.evaluate(market, window, position)
}

func (s *TrendFollowing) evaluate(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	bars := window.Ascending()
	if len(bars) < trendMinWin {
		return types.HoldSignal(), nil
	}
	short, err := indicator.EMA(bars, trendShortPeriod)
	if err != nil {
		return types.Signal{}, err
	}
	long, err := indicator.EMA(bars, trendLongPeriod)
	if err != nil {
		return types.Signal{}, err
	}
	last := window.Last()
	holding := position != nil && position.IsOpen()

	if !holding {
		if short.GreaterThan(long) {
			s.setAdvisory(market, decimal.Zero, decimal.Zero, last.TradePrice)
			return types.Signal{Action: types.Buy, EntryPrice: last.TradePrice}, nil
		}
		return types.HoldSignal(), nil
	}

	if short.LessThan(long) {
		return s.sellWithReason(market, types.ExitSignalInvalid), nil
	}
	return types.HoldSignal(), nil
}
