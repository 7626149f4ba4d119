package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// InsertTradeStat appends one closed trade's outcome row.
// TradeStat is immutable post-insert.
func (s *Store) InsertTradeStat(ctx context.Context, stat types.TradeStat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_stats (market, user_id, entry_time, exit_time, entry_price, exit_price, profit_rate, entry_zscore, entry_exec_strength, entry_hour, success, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stat.Market, stat.UserID, formatTime(stat.EntryTime), formatTime(stat.ExitTime),
		stat.EntryPrice.String(), stat.ExitPrice.String(), stat.ProfitRate.String(),
		stat.EntryZScore.String(), stat.EntryExecStrength.String(), stat.EntryHour, stat.Success, string(stat.ExitReason))
	return err
}

// HourAggregate is the per-hour-bucket rollup the tuner consumes.
type HourAggregate struct {
	Hour          int
	SampleCount   int
	WinRate       decimal.Decimal
	AvgProfitRate decimal.Decimal
}

// HourlyAggregate computes, for every hour bucket with at least
// minSamples TradeStats since since, the win rate and average profit
// rate. Buckets below the threshold are omitted entirely (spec §4.8
// "under-sampled hours are skipped"). Profit rates are summed in Go
// after a per-row scan since sqlite has no native decimal aggregate.
func (s *Store) HourlyAggregate(ctx context.Context, since time.Time, minSamples int) (map[int]HourAggregate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_hour, success, profit_rate FROM trade_stats WHERE exit_time >= ?
	`, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type accum struct {
		n, wins  int
		sumRate  decimal.Decimal
	}
	byHour := make(map[int]*accum)

	for rows.Next() {
		var hour int
		var success bool
		var rateStr string
		if err := rows.Scan(&hour, &success, &rateStr); err != nil {
			return nil, err
		}
		a, ok := byHour[hour]
		if !ok {
			a = &accum{sumRate: decimal.Zero}
			byHour[hour] = a
		}
		a.n++
		if success {
			a.wins++
		}
		a.sumRate = a.sumRate.Add(decimalOrZero(rateStr))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[int]HourAggregate)
	for hour, a := range byHour {
		if a.n < minSamples {
			continue
		}
		out[hour] = HourAggregate{
			Hour:          hour,
			SampleCount:   a.n,
			WinRate:       decimal.NewFromInt(int64(a.wins)).Div(decimal.NewFromInt(int64(a.n))),
			AvgProfitRate: a.sumRate.Div(decimal.NewFromInt(int64(a.n))),
		}
	}
	return out, nil
}
