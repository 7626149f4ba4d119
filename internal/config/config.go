// Package config loads the engine's runtime configuration from a YAML
// file with UPBIT_-prefixed environment variable overrides, grounded
// on the pack's viper-based config loaders (SPEC_FULL.md §10.2).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// Load reads path (a YAML file) layered over types.Defaults(), with
// UPBIT_-prefixed environment variables taking precedence over both.
func Load(path string) (types.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("UPBIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, types.Defaults())

	if err := v.ReadInConfig(); err != nil {
		return types.Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg types.Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return types.Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return types.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers d's fields with viper so a YAML file or env
// override only needs to mention the keys it changes.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("tradingEnabled", d.TradingEnabled)
	v.SetDefault("tradeFeeRate", d.TradeFeeRate.String())
	v.SetDefault("stopLossRate", d.StopLossRate.String())
	v.SetDefault("takeProfitRate", d.TakeProfitRate.String())
	v.SetDefault("trailingStopRate", d.TrailingStopRate.String())
	v.SetDefault("stopLossAtrMultiplier", d.StopLossAtrMultiplier.String())
	v.SetDefault("trailingAtrMultiplier", d.TrailingAtrMultiplier.String())
	v.SetDefault("minWindowAggregate", d.MinWindowAggregate)
	v.SetDefault("minWindowSingle", d.MinWindowSingle)
	v.SetDefault("maxConcurrentPositions", d.MaxConcurrentPositions)
	v.SetDefault("maxPositionSizeRate", d.MaxPositionSizeRate.String())
	v.SetDefault("maxDailyLossRate", d.MaxDailyLossRate.String())
	v.SetDefault("maxConsecutiveLosses", d.MaxConsecutiveLosses)
	v.SetDefault("cooldownMinutes", d.CooldownMinutes)
	v.SetDefault("orderCheckMaxRetry", d.OrderCheckMaxRetry)
	v.SetDefault("orderCheckIntervalMs", d.OrderCheckIntervalMs)
	v.SetDefault("stalePositionMinutes", d.StalePositionMinutes)
	v.SetDefault("backtestWorkerCore", d.BacktestWorkerCore)
	v.SetDefault("backtestWorkerMax", d.BacktestWorkerMax)
	v.SetDefault("backtestQueue", d.BacktestQueue)
	v.SetDefault("tunerCron", d.TunerCron)
	v.SetDefault("tunerMinSamples", d.TunerMinSamples)
	v.SetDefault("tunerBands", d.TunerBands)
	v.SetDefault("entryRatio", d.EntryRatio)
	v.SetDefault("markets", d.Markets)
}

// Validate checks the invariants that would make the engine unsafe to
// start if violated.
func Validate(c types.Config) error {
	if c.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("maxConcurrentPositions must be > 0")
	}
	if c.MaxPositionSizeRate.IsNegative() || c.MaxPositionSizeRate.IsZero() {
		return fmt.Errorf("maxPositionSizeRate must be > 0")
	}
	if c.MaxDailyLossRate.Sign() > 0 {
		return fmt.Errorf("maxDailyLossRate must be <= 0 (it is a loss floor)")
	}
	if c.OrderCheckMaxRetry <= 0 {
		return fmt.Errorf("orderCheckMaxRetry must be > 0")
	}
	if c.BacktestWorkerCore <= 0 || c.BacktestWorkerMax < c.BacktestWorkerCore {
		return fmt.Errorf("backtestWorkerMax must be >= backtestWorkerCore > 0")
	}
	if len(c.TunerBands) == 0 {
		return fmt.Errorf("tunerBands must not be empty")
	}
	return nil
}
