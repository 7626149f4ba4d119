package indicator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

func bar(price float64) types.Candle {
	return types.Candle{
		TimestampKST:    time.Now(),
		Open:            decimal.NewFromFloat(price),
		High:            decimal.NewFromFloat(price),
		Low:             decimal.NewFromFloat(price),
		TradePrice:      decimal.NewFromFloat(price),
		CandleAccVolume: decimal.NewFromFloat(1),
	}
}

func series(prices ...float64) []types.Candle {
	out := make([]types.Candle, len(prices))
	for i, p := range prices {
		out[i] = bar(p)
	}
	return out
}

func TestSMAInsufficientWindow(t *testing.T) {
	_, err := SMA(series(1, 2), 5)
	require.Error(t, err)
	var insufficient *ErrInsufficientWindow
	assert.ErrorAs(t, err, &insufficient)
}

func TestSMAExact(t *testing.T) {
	got, err := SMA(series(1, 2, 3, 4, 5), 5)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(3)))
}

func TestEMASeedsFromSMA(t *testing.T) {
	bars := series(1, 2, 3)
	got, err := EMA(bars, 3)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(2)))
}

func TestRSIZeroLossIsHundred(t *testing.T) {
	bars := series(1, 2, 3, 4, 5)
	got, err := RSI(bars, 4)
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(100)))
}

func TestBollingerFlatSeriesHasZeroWidth(t *testing.T) {
	bars := series(10, 10, 10, 10)
	bands, err := Bollinger(bars, 4, decimal.NewFromInt(2))
	require.NoError(t, err)
	assert.True(t, bands.Upper.Equal(bands.Middle))
	assert.True(t, bands.Lower.Equal(bands.Middle))
}

func TestZScoreZeroSigma(t *testing.T) {
	got, err := ZScore([]decimal.Decimal{
		decimal.NewFromInt(5), decimal.NewFromInt(5), decimal.NewFromInt(5),
	}, 3)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestATRRequiresNPlusOneBars(t *testing.T) {
	_, err := ATR(series(1, 2), 3)
	require.Error(t, err)
}
