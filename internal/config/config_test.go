package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	path := writeTempConfig(t, "tradingEnabled: true\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.TradingEnabled)
	assert.True(t, cfg.MaxPositionSizeRate.Equal(decimal.NewFromFloat(0.2)))
	assert.Equal(t, 5, cfg.MaxConcurrentPositions)
	assert.Len(t, cfg.TunerBands, 3)
}

func TestLoadOverridesDecimalFields(t *testing.T) {
	path := writeTempConfig(t, "maxPositionSizeRate: \"0.1\"\nmaxDailyLossRate: \"-0.02\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.MaxPositionSizeRate.Equal(decimal.NewFromFloat(0.1)))
	assert.True(t, cfg.MaxDailyLossRate.Equal(decimal.NewFromFloat(-0.02)))
}

func TestLoadOverridesFromEnv(t *testing.T) {
	path := writeTempConfig(t, "tradingEnabled: false\n")
	t.Setenv("UPBIT_TRADINGENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.TradingEnabled)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, "maxConcurrentPositions: 0\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsPositiveDailyLossFloor(t *testing.T) {
	cfg := types.Defaults()
	cfg.MaxDailyLossRate = decimal.NewFromFloat(0.01)
	assert.Error(t, Validate(cfg))
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(types.Defaults()))
}
