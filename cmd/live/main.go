// Command live runs the engine's trading loop: one cron-scheduled tick
// per user session, fanned out across markets on a bounded worker pool.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-quant/upbit-engine/internal/aggregator"
	"github.com/atlas-quant/upbit-engine/internal/config"
	"github.com/atlas-quant/upbit-engine/internal/exchange"
	"github.com/atlas-quant/upbit-engine/internal/live"
	"github.com/atlas-quant/upbit-engine/internal/metrics"
	"github.com/atlas-quant/upbit-engine/internal/risk"
	"github.com/atlas-quant/upbit-engine/internal/store"
	"github.com/atlas-quant/upbit-engine/internal/strategy"
	"github.com/atlas-quant/upbit-engine/internal/tuner"
	"github.com/atlas-quant/upbit-engine/internal/worker"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "Path to the engine config file")
	dsn := flag.String("dsn", "./upbit-engine.db", "sqlite DSN (file path or :memory:)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	userID := flag.String("user-id", "", "User id this instance trades on behalf of (required)")
	tickExpr := flag.String("tick", "@every 5m", "Cron expression for the live loop tick")
	flag.Parse()

	if *userID == "" {
		panic("live: -user-id is required")
	}

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}
	metrics.Init()

	db, err := store.Open(logger, *dsn)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer db.Close()

	var adapter exchange.Adapter // TODO(deploy): wire a concrete exchange.Adapter implementation per environment
	if adapter == nil {
		logger.Fatal("live: no exchange.Adapter implementation wired; this binary only assembles the engine's core loop")
	}
	instrumented := exchange.Instrument(adapter)

	riskMgr := risk.NewManager(logger, db, cfg)
	pool := worker.NewPool(logger, worker.PoolConfig{Name: "live", CoreWorkers: cfg.BacktestWorkerCore, MaxWorkers: cfg.BacktestWorkerMax, QueueSize: cfg.BacktestQueue})
	defer pool.Stop(0)

	registry := strategy.NewRegistry(logger)
	decider := buildDecider(logger, registry)

	sessions := make([]live.UserSession, 0, 1)
	sessions = append(sessions, live.UserSession{
		UserID:  *userID,
		Markets: cfg.Markets,
		Unit:    1,
		Decider: decider,
	})

	loop := live.New(logger, instrumented, db, riskMgr, cfg, pool, sessions, *tickExpr)

	tunerSvc := tuner.New(logger, db, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loop.ReclaimStalePositions(ctx); err != nil {
		logger.Error("failed to reclaim stale positions", zap.Error(err))
	}

	if err := loop.Start(ctx); err != nil {
		logger.Fatal("failed to start live loop", zap.Error(err))
	}
	if err := tunerSvc.Start(ctx); err != nil {
		logger.Fatal("failed to start tuner", zap.Error(err))
	}

	logger.Info("live engine started",
		zap.String("userId", *userID),
		zap.Strings("markets", cfg.Markets),
		zap.String("tick", *tickExpr),
		zap.Bool("tradingEnabled", cfg.TradingEnabled),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	loop.Stop()
	tunerSvc.Stop()
	logger.Info("live engine stopped")
}

// buildDecider picks the aggregator path when more than one strategy
// is registered, otherwise falls back to the sole registered strategy.
func buildDecider(logger *zap.Logger, registry *strategy.Registry) live.Decider {
	names := registry.List()
	if len(names) == 1 {
		s, _ := registry.Create(names[0])
		return live.NewSingleStrategyDecider(s)
	}

	strategies := make([]strategy.Strategy, 0, len(names))
	for _, name := range names {
		if s, ok := registry.Create(name); ok {
			strategies = append(strategies, s)
		}
	}
	return live.NewAggregatorDecider(aggregator.New(logger, strategies))
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
