package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// UpsertHourParam writes the tuner's recomputed row for one hour
// bucket (spec §4.8). HourParam is mutated only by the tuner.
func (s *Store) UpsertHourParam(ctx context.Context, hp types.HourParam) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO hour_params (hour, min_execution_strength, min_zscore, volume_multiplier, sample_count, win_rate, avg_profit_rate, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hour) DO UPDATE SET
			min_execution_strength = excluded.min_execution_strength,
			min_zscore = excluded.min_zscore,
			volume_multiplier = excluded.volume_multiplier,
			sample_count = excluded.sample_count,
			win_rate = excluded.win_rate,
			avg_profit_rate = excluded.avg_profit_rate,
			enabled = excluded.enabled
	`, hp.Hour, hp.MinExecutionStrength.String(), hp.MinZScore.String(), hp.VolumeMultiplier.String(),
		hp.SampleCount, hp.WinRate.String(), hp.AvgProfitRate.String(), hp.Enabled)
	return err
}

// HourParam returns the stored row for an hour, or the spec default
// (and ok=false) when missing or disabled.
func (s *Store) HourParam(ctx context.Context, hour int) (types.HourParam, bool, error) {
	var hp types.HourParam
	var minExec, minZ, volMult, winRate, avgProfit string
	err := s.db.QueryRowContext(ctx, `
		SELECT hour, min_execution_strength, min_zscore, volume_multiplier, sample_count, win_rate, avg_profit_rate, enabled
		FROM hour_params WHERE hour = ?
	`, hour).Scan(&hp.Hour, &minExec, &minZ, &volMult, &hp.SampleCount, &winRate, &avgProfit, &hp.Enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return types.DefaultHourParam(hour), false, nil
	}
	if err != nil {
		return types.HourParam{}, false, err
	}
	hp.MinExecutionStrength = decimalOrZero(minExec)
	hp.MinZScore = decimalOrZero(minZ)
	hp.VolumeMultiplier = decimalOrZero(volMult)
	hp.WinRate = decimalOrZero(winRate)
	hp.AvgProfitRate = decimalOrZero(avgProfit)
	if !hp.Enabled {
		return types.DefaultHourParam(hour), false, nil
	}
	return hp, true, nil
}

// AllHourParams returns every stored hour row, for reporting/export.
func (s *Store) AllHourParams(ctx context.Context) ([]types.HourParam, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hour, min_execution_strength, min_zscore, volume_multiplier, sample_count, win_rate, avg_profit_rate, enabled
		FROM hour_params ORDER BY hour
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.HourParam
	for rows.Next() {
		var hp types.HourParam
		var minExec, minZ, volMult, winRate, avgProfit string
		if err := rows.Scan(&hp.Hour, &minExec, &minZ, &volMult, &hp.SampleCount, &winRate, &avgProfit, &hp.Enabled); err != nil {
			return nil, err
		}
		hp.MinExecutionStrength = decimalOrZero(minExec)
		hp.MinZScore = decimalOrZero(minZ)
		hp.VolumeMultiplier = decimalOrZero(volMult)
		hp.WinRate = decimalOrZero(winRate)
		hp.AvgProfitRate = decimalOrZero(avgProfit)
		out = append(out, hp)
	}
	return out, rows.Err()
}
