// Package aggregator implements the majority-vote signal aggregator
// described in SPEC_FULL.md §4.3.
package aggregator

import (
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/strategy"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// Vote records one strategy's evaluation for the audit trail.
type Vote struct {
	Strategy string
	Action   types.SignalAction
	Err      error
}

// Result is the aggregator's decision plus the full vote ledger.
type Result struct {
	Signal types.Signal
	Votes  []Vote
}

// Aggregator evaluates an enabled set of strategies over a window and
// emits Buy/Sell only on a strict majority; ties and split votes
// resolve to Hold. Strategies whose Analyze call errors are excluded
// from the tally denominator, not counted as abstentions.
type Aggregator struct {
	logger     *zap.Logger
	strategies []strategy.Strategy
}

// New builds an aggregator over the given enabled strategy set.
func New(logger *zap.Logger, strategies []strategy.Strategy) *Aggregator {
	return &Aggregator{logger: logger.Named("aggregator"), strategies: strategies}
}

// majorityThreshold returns the strict-majority vote count for n
// voters: floor(n/2)+1.
func majorityThreshold(n int) int {
	return n/2 + 1
}

// Strategies returns the wrapped strategy set, letting a caller reach
// into per-strategy hooks (e.g. the tuner's live threshold overrides)
// that the aggregator itself doesn't expose.
func (a *Aggregator) Strategies() []strategy.Strategy { return a.strategies }

// Evaluate runs every enabled strategy's live Analyze path and tallies
// the result.
func (a *Aggregator) Evaluate(market string, window types.CandleWindow, holding bool) Result {
	return a.evaluate(market, window, holding, false, nil)
}

// EvaluateForBacktest runs the pure AnalyzeForBacktest path instead,
// for use inside the deterministic replay executor.
func (a *Aggregator) EvaluateForBacktest(market string, window types.CandleWindow, position *types.Position) Result {
	return a.evaluate(market, window, position != nil && position.IsOpen(), true, position)
}

func (a *Aggregator) evaluate(market string, window types.CandleWindow, holding bool, backtest bool, position *types.Position) Result {
	votes := make([]Vote, 0, len(a.strategies))
	buyVotes, sellVotes, counted := 0, 0, 0

	for _, s := range a.strategies {
		var sig types.Signal
		var err error
		if backtest {
			sig, err = s.AnalyzeForBacktest(market, window, position)
		} else {
			sig, err = s.Analyze(market, window)
		}
		if err != nil {
			votes = append(votes, Vote{Strategy: s.Name(), Err: err})
			if a.logger != nil {
				a.logger.Warn("strategy evaluation failed, excluded from tally",
					zap.String("market", market), zap.String("strategy", s.Name()), zap.Error(err))
			}
			continue
		}
		votes = append(votes, Vote{Strategy: s.Name(), Action: sig.Action})
		counted++
		switch sig.Action {
		case types.Buy:
			buyVotes++
		case types.Sell:
			sellVotes++
		}
	}

	threshold := majorityThreshold(counted)
	out := types.HoldSignal()
	switch {
	case !holding && buyVotes >= threshold:
		out = types.Signal{Action: types.Buy}
	case holding && sellVotes >= threshold:
		out = types.Signal{Action: types.Sell, ExitReason: types.ExitSignalInvalid}
	}

	if a.logger != nil {
		a.logger.Debug("aggregator evaluated",
			zap.String("market", market),
			zap.Int("buyVotes", buyVotes), zap.Int("sellVotes", sellVotes),
			zap.Int("counted", counted), zap.Int("threshold", threshold),
			zap.String("decision", string(out.Action)))
	}

	return Result{Signal: out, Votes: votes}
}
