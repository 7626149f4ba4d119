package metrics

import "github.com/atlas-quant/upbit-engine/internal/worker"

// ObserveWorkerPool copies a worker.Pool's cumulative overflow counter
// into the shared registry under poolName. Callers sample this
// periodically (e.g. after each backtest run or live tick) since Pool
// keeps its own atomic counters rather than registering with
// prometheus directly.
func ObserveWorkerPool(poolName string, pool *worker.Pool) {
	WorkerPoolOverflow.WithLabelValues(poolName).Set(float64(pool.Metrics().TasksOverflow))
}
