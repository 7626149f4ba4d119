// Command backtest replays one or more markets against a strategy (or
// the full aggregator) over historical candles and prints the summary.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-quant/upbit-engine/internal/config"
	"github.com/atlas-quant/upbit-engine/internal/exchange"
	"github.com/atlas-quant/upbit-engine/internal/metrics"
	"github.com/atlas-quant/upbit-engine/internal/simtask"
	"github.com/atlas-quant/upbit-engine/internal/store"
	"github.com/atlas-quant/upbit-engine/internal/strategy"
	"github.com/atlas-quant/upbit-engine/internal/worker"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "Path to the engine config file")
	dsn := flag.String("dsn", "./upbit-engine.db", "sqlite DSN (file path or :memory:)")
	marketsFlag := flag.String("markets", "", "Comma-separated markets (defaults to config markets)")
	strategyName := flag.String("strategy", "", "Strategy name to replay alone (empty runs the full aggregator)")
	candleCount := flag.Int("candles", 500, "Number of minute candles to fetch per market")
	unit := flag.Int("unit", 1, "Candle unit in minutes")
	initialKRW := flag.Float64("initial-krw", 1_000_000, "Starting KRW balance for the replay")
	flag.Parse()

	logger := setupLogger("info")
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
		logger.Fatal("backtest: no exchange.Adapter implementation wired; this binary only assembles the engine's replay path")
	}
	instrumented := exchange.Instrument(adapter)

	markets := cfg.Markets
	if *marketsFlag != "" {
		markets = strings.Split(*marketsFlag, ",")
	}
	if len(markets) == 0 {
		logger.Fatal("backtest: no markets configured or passed via -markets")
	}

	replayPool := worker.NewPool(logger, worker.PoolConfig{Name: "backtest", CoreWorkers: cfg.BacktestWorkerCore, MaxWorkers: cfg.BacktestWorkerMax, QueueSize: cfg.BacktestQueue})
	defer replayPool.Stop(5 * time.Second)

	supervisorPool := worker.NewPool(logger, worker.DefaultPoolConfig("simtask"))
	defer supervisorPool.Stop(5 * time.Second)

	sup := simtask.New(logger, db, supervisorPool, "backtest-cli")
	ctx := context.Background()

	if err := sup.Reclaim(ctx); err != nil {
		logger.Warn("reclaim failed", zap.Error(err))
	}

	registry := strategy.NewRegistry(logger)
	job := simtask.NewBacktestJob(instrumented, logger, registry, replayPool, markets, simtask.BacktestParams{
		StrategyName: *strategyName,
		Unit:         *unit,
		CandleCount:  *candleCount,
		FeeRate:      cfg.TradeFeeRate,
		InitialKRW:   decimal.NewFromFloat(*initialKRW),
	})

	params := map[string]string{
		"strategy": *strategyName,
		"unit":     fmt.Sprintf("%d", *unit),
		"candles":  fmt.Sprintf("%d", *candleCount),
	}

	task, err := sup.Submit(ctx, "BACKTEST", params, markets, job)
	if err != nil {
		logger.Fatal("failed to submit backtest task", zap.Error(err))
	}

	logger.Info("backtest submitted", zap.String("taskId", task.ID), zap.Strings("markets", markets))

	final := waitForCompletion(ctx, db, task.ID)
	if final.Status == types.SimulationFailed {
		logger.Fatal("backtest failed", zap.String("error", final.Error))
	}

	var pretty interface{}
	if err := json.Unmarshal([]byte(final.ResultJSON), &pretty); err == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Println(final.ResultJSON)
	}
}

func waitForCompletion(ctx context.Context, db *store.Store, taskID string) *types.SimulationTask {
	for {
		task, err := db.FindSimulationTaskByID(ctx, taskID)
		if err == nil && task != nil && task.IsTerminal() {
			return task
		}
		time.Sleep(100 * time.Millisecond)
	}
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

	cfg := zap.Config{
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

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
