package backtest

import (
	"github.com/atlas-quant/upbit-engine/internal/aggregator"
	"github.com/atlas-quant/upbit-engine/internal/strategy"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// Evaluator is the decision source a replay drives forward: either a
// single strategy or the majority-vote aggregator over several.
type Evaluator interface {
	Evaluate(market string, window types.CandleWindow, position *types.Position) types.Signal
	MinWindowLen() int
}

// SingleStrategy adapts one strategy.Strategy into an Evaluator, the
// single-strategy backtest path (minimum window 30).
type SingleStrategy struct {
	s strategy.Strategy
}

func NewSingleStrategy(s strategy.Strategy) *SingleStrategy { return &SingleStrategy{s: s} }

func (e *SingleStrategy) Evaluate(market string, window types.CandleWindow, position *types.Position) types.Signal {
	sig, err := e.s.AnalyzeForBacktest(market, window, position)
	if err != nil {
		return types.HoldSignal()
	}
	return sig
}

func (e *SingleStrategy) MinWindowLen() int {
	if mw, ok := e.s.(strategy.MinWindow); ok {
		return mw.MinWindowLen()
	}
	return 30
}

// AggregatorEvaluator adapts the majority-vote aggregator into an
// Evaluator, the multi-strategy path (minimum window 100).
type AggregatorEvaluator struct {
	agg *aggregator.Aggregator
}

func NewAggregatorEvaluator(agg *aggregator.Aggregator) *AggregatorEvaluator {
	return &AggregatorEvaluator{agg: agg}
}

func (e *AggregatorEvaluator) Evaluate(market string, window types.CandleWindow, position *types.Position) types.Signal {
	return e.agg.EvaluateForBacktest(market, window, position).Signal
}

func (e *AggregatorEvaluator) MinWindowLen() int { return 100 }
