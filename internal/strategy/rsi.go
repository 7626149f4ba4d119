package strategy

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/indicator"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

const (
	rsiPeriod     = 14
	rsiMinWin     = 30
	rsiOversold   = 30
	rsiOverbought = 70
)

// RSIReversal buys when Wilder RSI drops below the oversold threshold
// and sells once it climbs back past the overbought threshold.
type RSIReversal struct {
	base
}

func NewRSIReversal(logger *zap.Logger) *RSIReversal {
	return &RSIReversal{base: newBase(logger.Named("strategy.rsi_reversal"))}
}

func (s *RSIReversal) Name() string       { return "rsi_reversal" }
func (s *RSIReversal) MinWindowLen() int { return rsiMinWin }

func (s *RSIReversal) Analyze(market string, window types.CandleWindow) (types.Signal, error) {
	return s.evaluate(market, window, nil)
}

func (s *RSIReversal) AnalyzeForBacktest(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	return s.evaluate(market, window, position)
}

func (s *RSIReversal) evaluate(market string, window types.CandleWindow, position *types.Position) (types.Signal, error) {
	bars := window.Ascending()
	if len(bars) < rsiMinWin {
		return types.HoldSignal(), nil
	}
	rsi, err := indicator.RSI(bars, rsiPeriod)
	if err != nil {
		return types.Signal{}, err
	}
	last := window.Last()
	holding := position != nil && position.IsOpen()

	if !holding {
		if rsi.LessThanOrEqual(decimal.NewFromInt(rsiOversold)) {
			s.setAdvisory(market, decimal.Zero, decimal.Zero, last.TradePrice)
			return types.Signal{Action: types.Buy, EntryPrice: last.TradePrice}, nil
		}
		return types.HoldSignal(), nil
	}

	if rsi.GreaterThanOrEqual(decimal.NewFromInt(rsiOverbought)) {
		return s.sellWithReason(market, types.ExitOverheated), nil
	}
	return types.HoldSignal(), nil
}
