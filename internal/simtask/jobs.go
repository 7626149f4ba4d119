package simtask

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/aggregator"
	"github.com/atlas-quant/upbit-engine/internal/backtest"
	"github.com/atlas-quant/upbit-engine/internal/exchange"
	"github.com/atlas-quant/upbit-engine/internal/strategy"
	"github.com/atlas-quant/upbit-engine/internal/tuner"
	"github.com/atlas-quant/upbit-engine/internal/worker"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// BacktestParams is the decoded form of a BACKTEST task's Params map.
type BacktestParams struct {
	StrategyName string
	Unit         int
	CandleCount  int
	FeeRate      decimal.Decimal
	InitialKRW   decimal.Decimal
}

// NewBacktestJob builds a Job that replays markets through a named
// strategy (or the aggregator when name is empty) and reports one
// progress tick per market whose candles have been fetched; the replay
// of all markets runs after the last tick.
func NewBacktestJob(adapter exchange.Adapter, logger *zap.Logger, registry *strategy.Registry, replayPool *worker.Pool, markets []string, p BacktestParams) Job {
	return func(ctx context.Context, reportProgress ProgressFunc, cancelled CancelledFunc) (string, error) {
		eval, err := resolveEvaluator(logger, registry, p.StrategyName)
		if err != nil {
			return "", err
		}

		sources := make([]backtest.MarketSource, 0, len(markets))
		for i, market := range markets {
			if cancelled() {
				return "", fmt.Errorf("backtest cancelled after %d/%d markets fetched: %w", i, len(markets), ErrCancelled)
			}
			newest, err := adapter.MinuteCandles(ctx, market, p.Unit, p.CandleCount)
			if err != nil {
				return "", fmt.Errorf("simtask: fetch candles for %s: %w", market, err)
			}
			bars := make([]types.Candle, len(newest))
			for j, c := range newest {
				bars[len(newest)-1-j] = c
			}
			sources = append(sources, backtest.MarketSource{Market: market, Bars: bars, Eval: eval})
			reportProgress(i+1, len(markets))
		}

		summary := backtest.RunMulti(replayPool, sources, p.FeeRate, p.InitialKRW)
		resultJSON, err := json.Marshal(summary)
		if err != nil {
			return "", fmt.Errorf("simtask: marshal result: %w", err)
		}
		return string(resultJSON), nil
	}
}

// NewTuneJob builds a Job that runs one on-demand auto-tuner pass for
// asOf. Unlike the backtest job this ignores markets/cancellation: a
// tune pass is one SQL aggregate query plus a handful of upserts, too
// short-lived to usefully check in on mid-flight.
func NewTuneJob(t *tuner.Tuner, asOf time.Time) Job {
	return func(ctx context.Context, reportProgress ProgressFunc, _ CancelledFunc) (string, error) {
		reportProgress(0, 1)
		if err := t.Tune(ctx, asOf); err != nil {
			return "", fmt.Errorf("simtask: tune: %w", err)
		}
		reportProgress(1, 1)
		return `{"status":"ok"}`, nil
	}
}

func resolveEvaluator(logger *zap.Logger, registry *strategy.Registry, name string) (backtest.Evaluator, error) {
	if name == "" {
		all := make([]strategy.Strategy, 0, len(registry.List()))
		for _, n := range registry.List() {
			s, ok := registry.Create(n)
			if !ok {
				continue
			}
			all = append(all, s)
		}
		return backtest.NewAggregatorEvaluator(aggregator.New(logger, all)), nil
	}
	s, ok := registry.Create(name)
	if !ok {
		return nil, fmt.Errorf("simtask: unknown strategy %q", name)
	}
	return backtest.NewSingleStrategy(s), nil
}
