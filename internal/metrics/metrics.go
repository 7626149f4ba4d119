// Package metrics provides ambient prometheus instrumentation for the
// engine (SPEC_FULL.md §11). There is no embedded HTTP server here —
// exposing /metrics over the network is out of scope; a host process
// that wants one registers Registry with its own server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the custom registry every collector in this package is
// registered against, instead of prometheus' global default.
var Registry = prometheus.NewRegistry()

var (
	PositionsOpen = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upbit_engine",
			Subsystem: "position",
			Name:      "open_count",
			Help:      "Number of open positions per user",
		},
		[]string{"user_id"},
	)

	TradesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upbit_engine",
			Subsystem: "trade",
			Name:      "total",
			Help:      "Total executed trades by side and result",
		},
		[]string{"user_id", "side", "result"}, // result: "win", "loss", "n/a" for buys
	)

	RealizedPnL = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upbit_engine",
			Subsystem: "trade",
			Name:      "realized_pnl_krw",
			Help:      "Realized PnL in KRW for the most recently closed position per market",
		},
		[]string{"user_id", "market"},
	)

	RiskDenials = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upbit_engine",
			Subsystem: "risk",
			Name:      "denials_total",
			Help:      "Entry requests denied by the risk pipeline, by deny code",
		},
		[]string{"user_id", "code"},
	)

	RiskScore = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upbit_engine",
			Subsystem: "risk",
			Name:      "score",
			Help:      "Composite 0-100 risk score per user",
		},
		[]string{"user_id"},
	)

	LiveTickDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "upbit_engine",
			Subsystem: "live",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one live-loop tick across all users",
			Buckets:   prometheus.DefBuckets,
		},
	)

	ExchangeCallDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "upbit_engine",
			Subsystem: "exchange",
			Name:      "call_duration_seconds",
			Help:      "Exchange adapter call latency by method",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"method"},
	)

	ExchangeCallErrors = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "upbit_engine",
			Subsystem: "exchange",
			Name:      "call_errors_total",
			Help:      "Exchange adapter call failures by method",
		},
		[]string{"method"},
	)

	BacktestRunDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "upbit_engine",
			Subsystem: "backtest",
			Name:      "run_duration_seconds",
			Help:      "Single-market backtest replay duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"market"},
	)

	WorkerPoolOverflow = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "upbit_engine",
			Subsystem: "worker",
			Name:      "overflow_total",
			Help:      "Cumulative tasks that ran synchronously on the caller because the pool queue was full",
		},
		[]string{"pool"},
	)
)

// Init registers the standard process/Go runtime collectors alongside
// the domain collectors above.
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
