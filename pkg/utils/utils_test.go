package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRoundToStepSize(t *testing.T) {
	cases := []struct {
		name     string
		qty      decimal.Decimal
		step     decimal.Decimal
		expected decimal.Decimal
	}{
		{"rounds down to tick", decimal.NewFromFloat(0.123456789), decimal.New(1, -8), decimal.NewFromFloat(0.12345678)},
		{"exact multiple unchanged", decimal.NewFromFloat(0.5), decimal.NewFromFloat(0.1), decimal.NewFromFloat(0.5)},
		{"zero step is a no-op", decimal.NewFromFloat(1.23456), decimal.Zero, decimal.NewFromFloat(1.23456)},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := RoundToStepSize(c.qty, c.step)
			assert.True(t, c.expected.Equal(got), "expected %s, got %s", c.expected, got)
		})
	}
}

func TestMaxDecimal(t *testing.T) {
	assert.True(t, decimal.NewFromInt(5).Equal(MaxDecimal(decimal.NewFromInt(5), decimal.NewFromInt(3))))
	assert.True(t, decimal.NewFromInt(3).Equal(MaxDecimal(decimal.NewFromInt(1), decimal.NewFromInt(3))))
}

func TestClampDecimal(t *testing.T) {
	min, max := decimal.NewFromInt(0), decimal.NewFromInt(100)
	assert.True(t, decimal.NewFromInt(0).Equal(ClampDecimal(decimal.NewFromInt(-5), min, max)))
	assert.True(t, decimal.NewFromInt(100).Equal(ClampDecimal(decimal.NewFromInt(150), min, max)))
	assert.True(t, decimal.NewFromInt(42).Equal(ClampDecimal(decimal.NewFromInt(42), min, max)))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5m", FormatDuration(5*time.Minute))
	assert.Equal(t, "2h 5m", FormatDuration(2*time.Hour+5*time.Minute))
	assert.Equal(t, "1d 0h 3m", FormatDuration(24*time.Hour+3*time.Minute))
}
