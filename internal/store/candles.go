package store

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// InsertCandles upserts a batch of candles for one (market, unit),
// the ingestion write path the core treats as read-only afterward.
func (s *Store) InsertCandles(ctx context.Context, bars []types.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (market, unit, timestamp_kst, timestamp_utc, open, high, low, trade_price, acc_volume, acc_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(market, unit, timestamp_kst) DO UPDATE SET
			trade_price = excluded.trade_price,
			high = excluded.high,
			low = excluded.low,
			acc_volume = excluded.acc_volume,
			acc_value = excluded.acc_value
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range bars {
		if _, err := stmt.ExecContext(ctx, c.Market, c.UnitMinutes,
			formatTime(c.TimestampKST), formatTime(c.TimestampUTC),
			c.Open.String(), c.High.String(), c.Low.String(), c.TradePrice.String(),
			c.CandleAccVolume.String(), c.CandleAccValue.String()); err != nil {
			return fmt.Errorf("insert candle %s %s: %w", c.Market, c.TimestampKST, err)
		}
	}
	return tx.Commit()
}

// CandlesInRange returns candles for (market, unit) within [startKST,
// endKST], ascending.
func (s *Store) CandlesInRange(ctx context.Context, market string, unit int, startKST, endKST time.Time) ([]types.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT market, unit, timestamp_kst, timestamp_utc, open, high, low, trade_price, acc_volume, acc_value
		FROM candles
		WHERE market = ? AND unit = ? AND timestamp_kst >= ? AND timestamp_kst <= ?
		ORDER BY timestamp_kst ASC
	`, market, unit, formatTime(startKST), formatTime(endKST))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Candle
	for rows.Next() {
		var c types.Candle
		var tsKST, tsUTC, open, high, low, tradePrice, accVol, accVal string
		if err := rows.Scan(&c.Market, &c.UnitMinutes, &tsKST, &tsUTC, &open, &high, &low, &tradePrice, &accVol, &accVal); err != nil {
			return nil, err
		}
		c.TimestampKST = parseTime(tsKST)
		c.TimestampUTC = parseTime(tsUTC)
		c.Open = decimalOrZero(open)
		c.High = decimalOrZero(high)
		c.Low = decimalOrZero(low)
		c.TradePrice = decimalOrZero(tradePrice)
		c.CandleAccVolume = decimalOrZero(accVol)
		c.CandleAccValue = decimalOrZero(accVal)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Markets returns the distinct markets with stored candle history.
func (s *Store) Markets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT market FROM candles ORDER BY market`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func decimalOrZero(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
