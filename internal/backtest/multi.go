package backtest

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/internal/metrics"
	"github.com/atlas-quant/upbit-engine/internal/worker"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// MarketSource supplies the ascending-ordered candle history for one
// market, and the Evaluator to drive it with (single strategy or
// aggregator, chosen per run).
type MarketSource struct {
	Market string
	Bars   []types.Candle
	Eval   Evaluator
}

// MarketOutcome pairs a market with its replay result or error.
type MarketOutcome struct {
	Market string
	Result Result
	Err    error
}

// Summary aggregates per-market outcomes into best/worst/average
// figures (SPEC_FULL.md §4.7).
type Summary struct {
	Outcomes []MarketOutcome

	Best    *MarketOutcome
	Worst   *MarketOutcome
	AvgRate decimal.Decimal
}

// RunMulti fans one replay per market out across a bounded worker
// pool, then aggregates the results. Markets whose replay fails are
// collected but excluded from the summary; an all-failed run returns
// an empty summary, which callers must treat as a user-visible error.
func RunMulti(pool *worker.Pool, sources []MarketSource, feeRate decimal.Decimal, initialKRW decimal.Decimal) Summary {
	outcomes := make([]MarketOutcome, len(sources))
	var wg sync.WaitGroup
	wg.Add(len(sources))

	for i, src := range sources {
		i, src := i, src
		pool.SubmitFunc(func() error {
			defer wg.Done()
			result, err := Run(src.Market, src.Bars, src.Eval, feeRate, initialKRW)
			outcomes[i] = MarketOutcome{Market: src.Market, Result: result, Err: err}
			return err
		})
	}
	wg.Wait()
	metrics.ObserveWorkerPool("backtest", pool)

	return summarize(outcomes)
}

func summarize(outcomes []MarketOutcome) Summary {
	summary := Summary{Outcomes: outcomes}

	var successful []MarketOutcome
	for _, o := range outcomes {
		if o.Err == nil {
			successful = append(successful, o)
		}
	}
	if len(successful) == 0 {
		return summary
	}

	sum := decimal.Zero
	best := successful[0]
	worst := successful[0]
	for _, o := range successful {
		sum = sum.Add(o.Result.TotalProfitRate)
		if o.Result.TotalProfitRate.GreaterThan(best.Result.TotalProfitRate) {
			best = o
		}
		if o.Result.TotalProfitRate.LessThan(worst.Result.TotalProfitRate) {
			worst = o
		}
	}

	bestCopy, worstCopy := best, worst
	summary.Best = &bestCopy
	summary.Worst = &worstCopy
	summary.AvgRate = sum.Div(decimal.NewFromInt(int64(len(successful))))
	return summary
}
