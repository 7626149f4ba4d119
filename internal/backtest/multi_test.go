package backtest

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/worker"
)

func TestSummarizeAllFailedYieldsEmptySummary(t *testing.T) {
	outcomes := []MarketOutcome{
		{Market: "KRW-BTC", Err: errors.New("boom")},
		{Market: "KRW-ETH", Err: errors.New("boom")},
	}
	summary := summarize(outcomes)
	assert.Nil(t, summary.Best)
	assert.Nil(t, summary.Worst)
	assert.True(t, summary.AvgRate.IsZero())
}

func TestSummarizePicksBestAndWorst(t *testing.T) {
	outcomes := []MarketOutcome{
		{Market: "KRW-BTC", Result: Result{TotalProfitRate: decimal.NewFromFloat(0.05)}},
		{Market: "KRW-ETH", Result: Result{TotalProfitRate: decimal.NewFromFloat(-0.02)}},
		{Market: "KRW-XRP", Err: errors.New("insufficient bars")},
	}
	summary := summarize(outcomes)
	assert.Equal(t, "KRW-BTC", summary.Best.Market)
	assert.Equal(t, "KRW-ETH", summary.Worst.Market)
	assert.True(t, summary.AvgRate.Equal(decimal.NewFromFloat(0.015)))
}

func TestRunMultiFansOutAcrossMarkets(t *testing.T) {
	pool := worker.NewPool(zap.NewNop(), worker.DefaultPoolConfig("backtest-test"))
	defer pool.Stop(time.Second)

	sources := []MarketSource{
		{Market: "KRW-BTC", Bars: candles(100, 100, 100, 110, 120), Eval: &scriptedEvaluator{minWindow: 3}},
		{Market: "KRW-ETH", Bars: candles(10, 10), Eval: &scriptedEvaluator{minWindow: 30}},
	}
	summary := RunMulti(pool, sources, decimal.NewFromFloat(0.0005), decimal.NewFromInt(1_000_000))

	assert.Len(t, summary.Outcomes, 2)
	var sawFailure, sawSuccess bool
	for _, o := range summary.Outcomes {
		if o.Market == "KRW-ETH" {
			assert.Error(t, o.Err)
			sawFailure = true
		}
		if o.Market == "KRW-BTC" {
			assert.NoError(t, o.Err)
			sawSuccess = true
		}
	}
	assert.True(t, sawFailure)
	assert.True(t, sawSuccess)
}
