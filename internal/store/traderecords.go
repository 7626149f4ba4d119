package store

import (
	"context"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// InsertTradeRecord appends one execution's audit row. TradeRecord is
// append-only; rows are never updated after insert.
func (s *Store) InsertTradeRecord(ctx context.Context, tr types.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trade_records (id, user_id, market, timestamp, side, price, volume, fee, krw_balance, coin_balance, total_asset, profit_rate, strategy, exit_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tr.ID, tr.UserID, tr.Market, formatTime(tr.Timestamp), string(tr.Side), tr.Price.String(), tr.Volume.String(),
		tr.Fee.String(), tr.KRWBalance.String(), tr.CoinBalance.String(), tr.TotalAsset.String(),
		tr.ProfitRate.String(), tr.Strategy, string(tr.ExitReason))
	return err
}
