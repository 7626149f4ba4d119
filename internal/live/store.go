package live

import (
	"context"
	"time"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// Store is the slice of persistence the live loop reads and writes on
// every tick. A concrete implementation lives in internal/store.
type Store interface {
	FindActivePosition(ctx context.Context, userID, market string) (*types.Position, error)
	UpsertPosition(ctx context.Context, pos *types.Position) error
	InsertTradeRecord(ctx context.Context, tr types.TradeRecord) error
	InsertTradeStat(ctx context.Context, stat types.TradeStat) error
	FindStalePositions(ctx context.Context, olderThan time.Duration) ([]types.Position, error)
	HourParam(ctx context.Context, hour int) (types.HourParam, bool, error)
}
