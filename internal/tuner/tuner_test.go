package tuner

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/store"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

type fakeStore struct {
	agg     map[int]store.HourAggregate
	upserts []types.HourParam
}

func (f *fakeStore) HourlyAggregate(ctx context.Context, since time.Time, minSamples int) (map[int]store.HourAggregate, error) {
	return f.agg, nil
}

func (f *fakeStore) UpsertHourParam(ctx context.Context, hp types.HourParam) error {
	f.upserts = append(f.upserts, hp)
	return nil
}

func testConfig() types.Config {
	cfg := types.Defaults()
	return cfg
}

func TestSelectBandTighten(t *testing.T) {
	cfg := testConfig()
	band := selectBand(cfg.TunerBands, decimal.NewFromFloat(0.30))
	assert.True(t, band.MinExecutionStrength.Equal(decimal.NewFromFloat(70)))
}

func TestSelectBandDefaultInclusiveBounds(t *testing.T) {
	cfg := testConfig()
	assert.True(t, selectBand(cfg.TunerBands, decimal.NewFromFloat(0.45)).MinExecutionStrength.Equal(decimal.NewFromFloat(65)))
	assert.True(t, selectBand(cfg.TunerBands, decimal.NewFromFloat(0.60)).MinExecutionStrength.Equal(decimal.NewFromFloat(65)))
}

func TestSelectBandLoosen(t *testing.T) {
	cfg := testConfig()
	band := selectBand(cfg.TunerBands, decimal.NewFromFloat(0.75))
	assert.True(t, band.MinExecutionStrength.Equal(decimal.NewFromFloat(60)))
	assert.True(t, band.VolumeMultiplier.Equal(decimal.NewFromFloat(3.5)))
}

func TestTuneUpsertsOneRowPerAggregatedHour(t *testing.T) {
	fs := &fakeStore{agg: map[int]store.HourAggregate{
		9:  {Hour: 9, SampleCount: 25, WinRate: decimal.NewFromFloat(0.30), AvgProfitRate: decimal.NewFromFloat(-0.01)},
		14: {Hour: 14, SampleCount: 40, WinRate: decimal.NewFromFloat(0.70), AvgProfitRate: decimal.NewFromFloat(0.02)},
	}}
	tn := New(zap.NewNop(), fs, testConfig())

	require.NoError(t, tn.Tune(context.Background(), time.Now()))
	require.Len(t, fs.upserts, 2)

	byHour := map[int]types.HourParam{}
	for _, hp := range fs.upserts {
		byHour[hp.Hour] = hp
	}
	assert.True(t, byHour[9].MinExecutionStrength.Equal(decimal.NewFromFloat(70)))
	assert.True(t, byHour[14].MinExecutionStrength.Equal(decimal.NewFromFloat(60)))
}
