package live

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/internal/aggregator"
	"github.com/atlas-quant/upbit-engine/internal/strategy"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// Decider is the live-path evaluation source a user session is
// configured with: either a single strategy or the majority-vote
// aggregator, both running their Analyze (not AnalyzeForBacktest) path
// since live evaluation may mutate per-market strategy state.
type Decider interface {
	Evaluate(market string, window types.CandleWindow, holding bool) types.Signal
	MinWindowLen() int

	// ApplyHourParam pushes the tuner's current-hour parameters into
	// any wrapped strategy that supports live threshold overrides
	// (spec §4.8). Strategies with no such hook simply ignore it.
	ApplyHourParam(hp types.HourParam)

	// Name identifies which strategy/decider produced an entry signal,
	// recorded on the resulting Position.
	Name() string
}

// entryThresholdSetter is implemented by strategies whose live entry
// threshold the tuner's per-hour parameters can override.
type entryThresholdSetter interface {
	SetEntryThreshold(z decimal.Decimal)
}

func applyHourParam(s strategy.Strategy, hp types.HourParam) {
	if setter, ok := s.(entryThresholdSetter); ok {
		setter.SetEntryThreshold(hp.MinZScore)
	}
}

// SingleStrategyDecider adapts one strategy.Strategy into a Decider,
// the single-strategy live path (minimum window 30).
type SingleStrategyDecider struct {
	s strategy.Strategy
}

func NewSingleStrategyDecider(s strategy.Strategy) *SingleStrategyDecider {
	return &SingleStrategyDecider{s: s}
}

func (d *SingleStrategyDecider) Evaluate(market string, window types.CandleWindow, holding bool) types.Signal {
	sig, err := d.s.Analyze(market, window)
	if err != nil {
		return types.HoldSignal()
	}
	return sig
}

func (d *SingleStrategyDecider) MinWindowLen() int {
	if mw, ok := d.s.(strategy.MinWindow); ok {
		return mw.MinWindowLen()
	}
	return 30
}

func (d *SingleStrategyDecider) ApplyHourParam(hp types.HourParam) {
	applyHourParam(d.s, hp)
}

func (d *SingleStrategyDecider) Name() string { return d.s.Name() }

// AggregatorDecider adapts the majority-vote aggregator into a
// Decider, the multi-strategy live path (minimum window 100).
type AggregatorDecider struct {
	agg *aggregator.Aggregator
}

func NewAggregatorDecider(agg *aggregator.Aggregator) *AggregatorDecider {
	return &AggregatorDecider{agg: agg}
}

func (d *AggregatorDecider) Evaluate(market string, window types.CandleWindow, holding bool) types.Signal {
	return d.agg.Evaluate(market, window, holding).Signal
}

func (d *AggregatorDecider) MinWindowLen() int { return 100 }

func (d *AggregatorDecider) ApplyHourParam(hp types.HourParam) {
	for _, s := range d.agg.Strategies() {
		applyHourParam(s, hp)
	}
}

func (d *AggregatorDecider) Name() string { return "aggregator" }
