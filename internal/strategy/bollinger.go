package strategy

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/indicator"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// bollingerPeriod and bollingerMinWin are the strategy's fixed band
// period and minimum window length; the band width is the k field
// (2.0). None of them is user-tunable in this release.
const (
	bollingerPeriod = 20
	bollingerMinWin = 30
)

// BollingerBreakout buys when the close breaks above the upper band and
// sells when the close falls back to or below the middle band. Volume
// is not considered, and the strategy itself emits no stop-loss exit.
type BollingerBreakout struct {
	base
	k decimal.Decimal
}

func NewBollingerBreakout(logger *zap.Logger) *BollingerBreakout {
	return &BollingerBreakout{base: newBase(logger.Named("strategy.bollinger_breakout")), k: decimal.NewFromFloat(2.0)}
}

func (s *BollingerBreakout) Name() string { return "bollinger_breakout" }

func (s *BollingerBreakout) MinWindowLen() int { return bollingerMinWin }

func (s *BollingerBreakout) Analyze(market string, window types.CandleWindow) (types.Signal, error) {
	return s.evaluate(market, window, nil)
}

func (s *BollingerBreakout) AnalyzeForBacktest(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	return s.evaluate(market, window, position)
}

func (s *BollingerBreakout) evaluate(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	bars := window.Ascending()
	if len(bars) < bollingerMinWin {
		return types.HoldSignal(), nil
	}
	bands, err := indicator.Bollinger(bars, bollingerPeriod, s.k)
	if err != nil {
		return types.Signal{}, err
	}
	last := window.Last()

	holding := position != nil && position.IsOpen()
	if !holding {
		if last.TradePrice.GreaterThan(bands.Upper) {
			s.setAdvisory(market, bands.Upper.Add(bands.Upper.Sub(bands.Middle)), bands.Middle, last.TradePrice)
			return types.Signal{
				Action:        types.Buy,
				EntryPrice:    last.TradePrice,
				TargetPrice:   bands.Upper.Add(bands.Upper.Sub(bands.Middle)),
				StopLossPrice: bands.Middle,
			}, nil
		}
		return types.HoldSignal(), nil
	}

	if last.TradePrice.LessThanOrEqual(bands.Middle) {
		return s.sellWithReason(market, types.ExitSignalInvalid), nil
	}
	return types.HoldSignal(), nil
}
