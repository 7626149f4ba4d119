// Package tuner implements the daily per-hour parameter auto-tuner
// described in SPEC_FULL.md §4.8: it scans yesterday's TradeStats,
// buckets them by entry hour, and rewrites HourParam rows whose
// sample count clears the minimum.
package tuner

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/store"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// Store is the persistence slice the tuner needs.
type Store interface {
	HourlyAggregate(ctx context.Context, since time.Time, minSamples int) (map[int]store.HourAggregate, error)
	UpsertHourParam(ctx context.Context, hp types.HourParam) error
}

// Tuner owns the cron schedule driving the daily recompute.
type Tuner struct {
	logger *zap.Logger
	store  Store
	cfg    types.Config
	cron   *cron.Cron
}

// New builds a tuner that will run on cfg.TunerCron once Start is called.
func New(logger *zap.Logger, store Store, cfg types.Config) *Tuner {
	return &Tuner{
		logger: logger.Named("tuner"),
		store:  store,
		cfg:    cfg,
		cron:   cron.New(),
	}
}

// Start schedules the daily tune job and begins running it in the
// background. Callers should defer Stop.
func (t *Tuner) Start(ctx context.Context) error {
	_, err := t.cron.AddFunc(t.cfg.TunerCron, func() {
		if err := t.Tune(ctx, time.Now()); err != nil {
			t.logger.Error("tune run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("tuner: schedule %q: %w", t.cfg.TunerCron, err)
	}
	t.cron.Start()
	return nil
}

// Stop halts the schedule, waiting for any in-flight run to finish.
func (t *Tuner) Stop() {
	stopCtx := t.cron.Stop()
	<-stopCtx.Done()
}

// Tune recomputes HourParam rows from the 24 hours of TradeStats
// ending at asOf, per the band table in SPEC_FULL.md §4.8.
func (t *Tuner) Tune(ctx context.Context, asOf time.Time) error {
	since := asOf.Add(-24 * time.Hour)
	agg, err := t.store.HourlyAggregate(ctx, since, t.cfg.TunerMinSamples)
	if err != nil {
		return fmt.Errorf("tuner: hourly aggregate: %w", err)
	}

	for hour, row := range agg {
		band := selectBand(t.cfg.TunerBands, row.WinRate)
		hp := types.HourParam{
			Hour:                 hour,
			MinExecutionStrength: band.MinExecutionStrength,
			MinZScore:            band.MinZScore,
			VolumeMultiplier:     band.VolumeMultiplier,
			SampleCount:          row.SampleCount,
			WinRate:              row.WinRate,
			AvgProfitRate:        row.AvgProfitRate,
			Enabled:              true,
		}
		if err := t.store.UpsertHourParam(ctx, hp); err != nil {
			return fmt.Errorf("tuner: upsert hour %d: %w", hour, err)
		}
		t.logger.Info("hour param tuned",
			zap.Int("hour", hour), zap.String("winRate", row.WinRate.String()),
			zap.Int("samples", row.SampleCount))
	}
	return nil
}

// selectBand picks the band whose range covers winRate. Bands are
// evaluated in order; the first (tighten) band matches strictly below
// its MaxWinRate, every following bounded band matches at or below its
// MaxWinRate (so the configured 0.45-0.60 "default" band is inclusive
// of both ends), and an Unbounded band always matches as the fallback.
func selectBand(bands []types.TunerBand, winRate decimal.Decimal) types.TunerBand {
	for i, b := range bands {
		if b.Unbounded {
			return b
		}
		if i == 0 {
			if winRate.LessThan(b.MaxWinRate) {
				return b
			}
			continue
		}
		if winRate.LessThanOrEqual(b.MaxWinRate) {
			return b
		}
	}
	if len(bands) > 0 {
		return bands[len(bands)-1]
	}
	return types.TunerBand{}
}
