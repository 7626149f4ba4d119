package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// UpsertPosition persists the full current state of one (user,
// market) position. Positions are keyed on the phase-1 entry
// timestamp so staged re-entries and the eventual CLOSED row all
// update the same record.
func (s *Store) UpsertPosition(ctx context.Context, pos *types.Position) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (
			user_id, market, status, strategy, entry_phase,
			avg_entry_price, total_invested, quantity, stop_loss_price,
			highest_price, trailing_stop, trailing_armed,
			entry_ts_1, entry_ts_2, entry_ts_3,
			realized_pnl, unrealized_pnl, final_exit_time, exit_reason,
			entry_zscore, entry_exec_strength, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, market, entry_ts_1) DO UPDATE SET
			status = excluded.status,
			strategy = excluded.strategy,
			entry_phase = excluded.entry_phase,
			avg_entry_price = excluded.avg_entry_price,
			total_invested = excluded.total_invested,
			quantity = excluded.quantity,
			stop_loss_price = excluded.stop_loss_price,
			highest_price = excluded.highest_price,
			trailing_stop = excluded.trailing_stop,
			trailing_armed = excluded.trailing_armed,
			entry_ts_2 = excluded.entry_ts_2,
			entry_ts_3 = excluded.entry_ts_3,
			realized_pnl = excluded.realized_pnl,
			unrealized_pnl = excluded.unrealized_pnl,
			final_exit_time = excluded.final_exit_time,
			exit_reason = excluded.exit_reason,
			entry_zscore = excluded.entry_zscore,
			entry_exec_strength = excluded.entry_exec_strength,
			updated_at = CURRENT_TIMESTAMP
	`,
		pos.UserID, pos.Market, string(pos.Status), pos.Strategy, pos.EntryPhase,
		pos.AvgEntryPrice.String(), pos.TotalInvested.String(), pos.Quantity.String(), pos.StopLossPrice.String(),
		pos.HighestPrice.String(), pos.TrailingStop.String(), pos.TrailingArmed,
		nullableTime(pos.EntryTimestamps[0]), nullableTime(pos.EntryTimestamps[1]), nullableTime(pos.EntryTimestamps[2]),
		pos.RealizedPnL.String(), pos.UnrealizedPnL.String(), nullableTime(pos.FinalExitTime), string(pos.ExitReason),
		pos.EntryZScore.String(), pos.EntryExecStrength.String(),
	)
	return err
}

// FindActivePosition returns the non-CLOSED position for (user,
// market), if any.
func (s *Store) FindActivePosition(ctx context.Context, userID, market string) (*types.Position, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, market, status, strategy, entry_phase,
			avg_entry_price, total_invested, quantity, stop_loss_price,
			highest_price, trailing_stop, trailing_armed,
			entry_ts_1, entry_ts_2, entry_ts_3,
			realized_pnl, unrealized_pnl, final_exit_time, exit_reason,
			entry_zscore, entry_exec_strength
		FROM positions
		WHERE user_id = ? AND market = ? AND status != 'CLOSED'
		ORDER BY entry_ts_1 DESC LIMIT 1
	`, userID, market)
	pos, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return pos, err
}

// HasOpenPosition implements risk.Store.
func (s *Store) HasOpenPosition(ctx context.Context, userID, market string) (bool, error) {
	pos, err := s.FindActivePosition(ctx, userID, market)
	return pos != nil, err
}

// CountOpenPositions implements risk.Store.
func (s *Store) CountOpenPositions(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM positions WHERE user_id = ? AND status != 'CLOSED'
	`, userID).Scan(&n)
	return n, err
}

// DailyRealizedPnL implements risk.Store: the sum of RealizedPnL for
// positions closed on the given KST calendar day.
func (s *Store) DailyRealizedPnL(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT realized_pnl FROM positions
		WHERE user_id = ? AND status = 'CLOSED' AND final_exit_time >= ? AND final_exit_time < ?
	`, userID, formatTime(dayStart), formatTime(dayEnd))
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var pnl string
		if err := rows.Scan(&pnl); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(decimalOrZero(pnl))
	}
	return total, rows.Err()
}

// RecentClosedPositions implements risk.Store: the most recent CLOSED
// positions for a user, most-recent-first, for consecutive-loss scans.
func (s *Store) RecentClosedPositions(ctx context.Context, userID string, limit int) ([]types.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, market, status, strategy, entry_phase,
			avg_entry_price, total_invested, quantity, stop_loss_price,
			highest_price, trailing_stop, trailing_armed,
			entry_ts_1, entry_ts_2, entry_ts_3,
			realized_pnl, unrealized_pnl, final_exit_time, exit_reason,
			entry_zscore, entry_exec_strength
		FROM positions
		WHERE user_id = ? AND status = 'CLOSED'
		ORDER BY final_exit_time DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		pos, err := scanPositionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pos)
	}
	return out, rows.Err()
}

// FindStalePositions returns every non-CLOSED position across all
// users whose row has not been touched in at least olderThan, the
// operator-triggered recovery path's candidate set for emergency close
// (spec §5 "Durability and recovery"). The cutoff is computed by
// sqlite's own datetime() against updated_at's CURRENT_TIMESTAMP
// stamps, rather than comparing against this package's own timeLayout
// strings, since the two formats are not lexically comparable.
func (s *Store) FindStalePositions(ctx context.Context, olderThan time.Duration) ([]types.Position, error) {
	modifier := fmt.Sprintf("-%d seconds", int64(olderThan.Seconds()))
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, market, status, strategy, entry_phase,
			avg_entry_price, total_invested, quantity, stop_loss_price,
			highest_price, trailing_stop, trailing_armed,
			entry_ts_1, entry_ts_2, entry_ts_3,
			realized_pnl, unrealized_pnl, final_exit_time, exit_reason,
			entry_zscore, entry_exec_strength
		FROM positions
		WHERE status != 'CLOSED' AND updated_at < datetime('now', ?)
	`, modifier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []types.Position
	for rows.Next() {
		pos, err := scanPositionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pos)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPosition(row rowScanner) (*types.Position, error) {
	return scanPositionRows(row)
}

func scanPositionRows(row rowScanner) (*types.Position, error) {
	var pos types.Position
	var status, exitReason string
	var entryTS1, entryTS2, entryTS3, finalExit sql.NullString
	var avgEntry, totalInvested, qty, stopLoss, highest, trailing, realizedPnL, unrealizedPnL string
	var entryZScore, entryExecStrength string

	err := row.Scan(
		&pos.UserID, &pos.Market, &status, &pos.Strategy, &pos.EntryPhase,
		&avgEntry, &totalInvested, &qty, &stopLoss,
		&highest, &trailing, &pos.TrailingArmed,
		&entryTS1, &entryTS2, &entryTS3,
		&realizedPnL, &unrealizedPnL, &finalExit, &exitReason,
		&entryZScore, &entryExecStrength,
	)
	if err != nil {
		return nil, err
	}

	pos.Status = types.PositionStatus(status)
	pos.AvgEntryPrice = decimalOrZero(avgEntry)
	pos.TotalInvested = decimalOrZero(totalInvested)
	pos.Quantity = decimalOrZero(qty)
	pos.StopLossPrice = decimalOrZero(stopLoss)
	pos.HighestPrice = decimalOrZero(highest)
	pos.TrailingStop = decimalOrZero(trailing)
	pos.EntryTimestamps[0] = parseTime(entryTS1.String)
	pos.EntryTimestamps[1] = parseTime(entryTS2.String)
	pos.EntryTimestamps[2] = parseTime(entryTS3.String)
	pos.RealizedPnL = decimalOrZero(realizedPnL)
	pos.UnrealizedPnL = decimalOrZero(unrealizedPnL)
	pos.FinalExitTime = parseTime(finalExit.String)
	pos.ExitReason = types.ExitReason(exitReason)
	pos.EntryZScore = decimalOrZero(entryZScore)
	pos.EntryExecStrength = decimalOrZero(entryExecStrength)
	return &pos, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
