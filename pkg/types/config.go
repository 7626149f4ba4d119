// Package types provides configuration types for the trading backend.
package types

import (
	"github.com/shopspring/decimal"
)

// TunerBand is one row of the auto-tuner's decision table: an hour
// bucket's winRate below MaxWinRate (for the first band) or at or below
// it (for every later bounded band), or any winRate for an Unbounded
// band, selects this band's per-hour parameter adjustment (spec §4.8).
// Bands are evaluated in order; the first match wins.
type TunerBand struct {
	MaxWinRate           decimal.Decimal `mapstructure:"maxWinRate"`
	Unbounded            bool            `mapstructure:"unbounded"`
	MinExecutionStrength decimal.Decimal `mapstructure:"minExecutionStrength"`
	MinZScore            decimal.Decimal `mapstructure:"minZScore"`
	VolumeMultiplier     decimal.Decimal `mapstructure:"volumeMultiplier"`
}

// Config is the fully resolved runtime configuration for the engine,
// loaded by internal/config from YAML plus UPBIT_-prefixed environment
// overrides (see SPEC_FULL.md §10.2).
type Config struct {
	TradingEnabled bool `mapstructure:"tradingEnabled"`

	TradeFeeRate        decimal.Decimal `mapstructure:"tradeFeeRate"`
	StopLossRate        decimal.Decimal `mapstructure:"stopLossRate"`
	TakeProfitRate      decimal.Decimal `mapstructure:"takeProfitRate"`
	TrailingStopRate    decimal.Decimal `mapstructure:"trailingStopRate"`
	StopLossAtrMultiplier     decimal.Decimal `mapstructure:"stopLossAtrMultiplier"`
	TrailingAtrMultiplier     decimal.Decimal `mapstructure:"trailingAtrMultiplier"`

	MinWindowAggregate int `mapstructure:"minWindowAggregate"`
	MinWindowSingle    int `mapstructure:"minWindowSingle"`

	MaxConcurrentPositions int             `mapstructure:"maxConcurrentPositions"`
	MaxPositionSizeRate    decimal.Decimal `mapstructure:"maxPositionSizeRate"`
	MaxDailyLossRate       decimal.Decimal `mapstructure:"maxDailyLossRate"`
	MaxConsecutiveLosses   int             `mapstructure:"maxConsecutiveLosses"`
	CooldownMinutes        int             `mapstructure:"cooldownMinutes"`

	EntryRatio [3]decimal.Decimal `mapstructure:"entryRatio"`

	OrderCheckMaxRetry    int `mapstructure:"orderCheckMaxRetry"`
	OrderCheckIntervalMs  int `mapstructure:"orderCheckIntervalMs"`

	StalePositionMinutes int `mapstructure:"stalePositionMinutes"`

	BacktestWorkerCore int `mapstructure:"backtestWorkerCore"`
	BacktestWorkerMax  int `mapstructure:"backtestWorkerMax"`
	BacktestQueue      int `mapstructure:"backtestQueue"`

	TunerCron       string      `mapstructure:"tunerCron"`
	TunerMinSamples int         `mapstructure:"tunerMinSamples"`
	TunerBands      []TunerBand `mapstructure:"tunerBands"`

	Markets []string `mapstructure:"markets"`
}

// Defaults returns the configuration spec.md §6 names as factory
// defaults, registered with viper before the file/env layers apply.
func Defaults() Config {
	return Config{
		TradingEnabled: false,

		TradeFeeRate:     decimal.NewFromFloat(0.0005),
		StopLossRate:     decimal.NewFromFloat(-0.03),
		TakeProfitRate:   decimal.NewFromFloat(0.05),
		TrailingStopRate: decimal.NewFromFloat(0.02),

		StopLossAtrMultiplier: decimal.NewFromFloat(1.5),
		TrailingAtrMultiplier: decimal.NewFromFloat(2.0),

		MinWindowAggregate: 100,
		MinWindowSingle:    30,

		MaxConcurrentPositions: 5,
		MaxPositionSizeRate:    decimal.NewFromFloat(0.2),
		MaxDailyLossRate:       decimal.NewFromFloat(-0.05),
		MaxConsecutiveLosses:   3,
		CooldownMinutes:        30,

		EntryRatio: [3]decimal.Decimal{
			decimal.NewFromFloat(0.4),
			decimal.NewFromFloat(0.3),
			decimal.NewFromFloat(0.3),
		},

		OrderCheckMaxRetry:   10,
		OrderCheckIntervalMs: 500,

		StalePositionMinutes: 30,

		BacktestWorkerCore: 2,
		BacktestWorkerMax:  4,
		BacktestQueue:      10,

		TunerCron:       "30 4 * * *",
		TunerMinSamples: 20,
		TunerBands: []TunerBand{
			{MaxWinRate: decimal.NewFromFloat(0.45), MinExecutionStrength: decimal.NewFromFloat(70), MinZScore: decimal.NewFromFloat(2.0), VolumeMultiplier: decimal.NewFromFloat(5.0)},
			{MaxWinRate: decimal.NewFromFloat(0.60), MinExecutionStrength: decimal.NewFromFloat(65), MinZScore: decimal.NewFromFloat(1.5), VolumeMultiplier: decimal.NewFromFloat(4.0)},
			{Unbounded: true, MinExecutionStrength: decimal.NewFromFloat(60), MinZScore: decimal.NewFromFloat(1.2), VolumeMultiplier: decimal.NewFromFloat(3.5)},
		},
	}
}
