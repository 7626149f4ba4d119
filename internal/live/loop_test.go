package live

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/exchange"
	"github.com/atlas-quant/upbit-engine/internal/risk"
	"github.com/atlas-quant/upbit-engine/internal/worker"
	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// fakeDecider returns pre-scripted signals regardless of window
// content, so tests can drive specific Buy/Sell/Hold paths.
type fakeDecider struct {
	sig              types.Signal
	minWinLn         int
	appliedHourParam *types.HourParam
}

func (d *fakeDecider) Evaluate(market string, window types.CandleWindow, holding bool) types.Signal {
	return d.sig
}
func (d *fakeDecider) MinWindowLen() int { return d.minWinLn }
func (d *fakeDecider) ApplyHourParam(hp types.HourParam) {
	cp := hp
	d.appliedHourParam = &cp
}
func (d *fakeDecider) Name() string { return "live" }

// fakeAdapter is an in-memory exchange.Adapter double: candles are
// served newest-first from a fixed slice, and orders fill immediately.
type fakeAdapter struct {
	candles  []types.Candle
	accounts []exchange.Account
	orders   map[string]exchange.OrderStatus
	nextUUID int
}

func newFakeAdapter(n int, price float64) *fakeAdapter {
	bars := make([]types.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		p := decimal.NewFromFloat(price)
		bars[n-1-i] = types.Candle{
			Market: "KRW-BTC", TimestampKST: base.Add(time.Duration(i) * time.Minute),
			Open: p, High: p, Low: p, TradePrice: p, UnitMinutes: 1,
		}
	}
	return &fakeAdapter{candles: bars, orders: make(map[string]exchange.OrderStatus)}
}

func (f *fakeAdapter) ListMarkets(ctx context.Context) ([]exchange.MarketInfo, error) { return nil, nil }
func (f *fakeAdapter) MinuteCandles(ctx context.Context, market string, unit, count int) ([]types.Candle, error) {
	if count > len(f.candles) {
		count = len(f.candles)
	}
	return f.candles[:count], nil
}
func (f *fakeAdapter) DayCandles(ctx context.Context, market string, count int) ([]types.Candle, error) {
	return nil, nil
}
func (f *fakeAdapter) Ticker(ctx context.Context, markets []string) ([]exchange.Ticker, error) {
	return nil, nil
}
func (f *fakeAdapter) Orderbook(ctx context.Context, market string) (exchange.Orderbook, error) {
	return exchange.Orderbook{}, nil
}
func (f *fakeAdapter) Accounts(ctx context.Context, userID string) ([]exchange.Account, error) {
	return f.accounts, nil
}

func (f *fakeAdapter) submit(volume, funds decimal.Decimal) exchange.OrderAck {
	f.nextUUID++
	uuid := fmt.Sprintf("order-%d", f.nextUUID)
	f.orders[uuid] = exchange.OrderStatus{UUID: uuid, State: exchange.OrderDone, ExecutedVolume: volume, ExecutedFunds: funds}
	return exchange.OrderAck{UUID: uuid, State: exchange.OrderDone, ExecutedVolume: volume, ExecutedFunds: funds}
}

func (f *fakeAdapter) BuyMarket(ctx context.Context, userID, market string, krwAmount decimal.Decimal) (exchange.OrderAck, error) {
	price := f.candles[len(f.candles)-1].TradePrice
	volume := krwAmount.Div(price)
	return f.submit(volume, krwAmount), nil
}
func (f *fakeAdapter) SellMarket(ctx context.Context, userID, market string, volume decimal.Decimal) (exchange.OrderAck, error) {
	price := f.candles[len(f.candles)-1].TradePrice
	return f.submit(volume, volume.Mul(price)), nil
}
func (f *fakeAdapter) BuyLimit(ctx context.Context, userID, market string, volume, price decimal.Decimal) (exchange.OrderAck, error) {
	return exchange.OrderAck{}, nil
}
func (f *fakeAdapter) SellLimit(ctx context.Context, userID, market string, volume, price decimal.Decimal) (exchange.OrderAck, error) {
	return exchange.OrderAck{}, nil
}
func (f *fakeAdapter) GetOrder(ctx context.Context, userID, uuid string) (exchange.OrderStatus, error) {
	return f.orders[uuid], nil
}
func (f *fakeAdapter) CancelOrder(ctx context.Context, userID, uuid string) error { return nil }

// fakeLiveStore is an in-memory Store double scoped to what the live
// loop touches.
type fakeLiveStore struct {
	positions   map[string]*types.Position
	records     []types.TradeRecord
	stats       []types.TradeStat
	stale       []types.Position
	hourParam   *types.HourParam
}

func newFakeLiveStore() *fakeLiveStore {
	return &fakeLiveStore{positions: make(map[string]*types.Position)}
}

func (s *fakeLiveStore) key(userID, market string) string { return userID + ":" + market }

func (s *fakeLiveStore) FindActivePosition(ctx context.Context, userID, market string) (*types.Position, error) {
	pos, ok := s.positions[s.key(userID, market)]
	if !ok || !pos.IsOpen() {
		return nil, nil
	}
	return pos, nil
}

func (s *fakeLiveStore) UpsertPosition(ctx context.Context, pos *types.Position) error {
	cp := *pos
	s.positions[s.key(pos.UserID, pos.Market)] = &cp
	return nil
}

func (s *fakeLiveStore) InsertTradeRecord(ctx context.Context, tr types.TradeRecord) error {
	s.records = append(s.records, tr)
	return nil
}

func (s *fakeLiveStore) InsertTradeStat(ctx context.Context, stat types.TradeStat) error {
	s.stats = append(s.stats, stat)
	return nil
}

func (s *fakeLiveStore) FindStalePositions(ctx context.Context, olderThan time.Duration) ([]types.Position, error) {
	return s.stale, nil
}

func (s *fakeLiveStore) HourParam(ctx context.Context, hour int) (types.HourParam, bool, error) {
	if s.hourParam != nil {
		return *s.hourParam, true, nil
	}
	return types.DefaultHourParam(hour), false, nil
}

// fakeRiskStore backs risk.Manager with canned answers so CheckEntry
// always approves.
type fakeRiskStore struct{}

func (fakeRiskStore) CountOpenPositions(ctx context.Context, userID string) (int, error) { return 0, nil }
func (fakeRiskStore) HasOpenPosition(ctx context.Context, userID, market string) (bool, error) {
	return false, nil
}
func (fakeRiskStore) DailyRealizedPnL(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (fakeRiskStore) RecentClosedPositions(ctx context.Context, userID string, limit int) ([]types.Position, error) {
	return nil, nil
}
func (fakeRiskStore) CooldownUntil(ctx context.Context, userID string) (time.Time, error) {
	return time.Time{}, nil
}
func (fakeRiskStore) SetCooldownUntil(ctx context.Context, userID string, until time.Time) error {
	return nil
}

func newTestLoop(t *testing.T, adapter *fakeAdapter, store *fakeLiveStore, sessions []UserSession) *Loop {
	t.Helper()
	cfg := types.Defaults()
	riskMgr := risk.NewManager(zap.NewNop(), fakeRiskStore{}, cfg)
	pool := worker.NewPool(zap.NewNop(), worker.DefaultPoolConfig("live-test"))
	t.Cleanup(func() { _ = pool.Stop(time.Second) })
	return New(zap.NewNop(), adapter, store, riskMgr, cfg, pool, sessions, "@every 5m")
}

func TestProcessMarketEntersOnBuySignal(t *testing.T) {
	adapter := newFakeAdapter(40, 100)
	adapter.accounts = []exchange.Account{{Currency: "KRW", Balance: decimal.NewFromInt(1_000_000)}}
	store := newFakeLiveStore()
	decider := &fakeDecider{sig: types.Signal{Action: types.Buy}, minWinLn: 30}
	sess := UserSession{UserID: "u1", Markets: []string{"KRW-BTC"}, Unit: 1, Decider: decider}
	loop := newTestLoop(t, adapter, store, []UserSession{sess})

	require.NoError(t, loop.processMarket(context.Background(), sess, "KRW-BTC"))

	pos, err := store.FindActivePosition(context.Background(), "u1", "KRW-BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, types.PositionActive, pos.Status)
	assert.True(t, pos.Quantity.IsPositive())
	require.Len(t, store.records, 1)
	assert.Equal(t, types.SideBuy, store.records[0].Side)
}

func TestProcessMarketHoldsOnInsufficientWindow(t *testing.T) {
	adapter := newFakeAdapter(10, 100)
	store := newFakeLiveStore()
	decider := &fakeDecider{sig: types.Signal{Action: types.Buy}, minWinLn: 30}
	sess := UserSession{UserID: "u1", Markets: []string{"KRW-BTC"}, Unit: 1, Decider: decider}
	loop := newTestLoop(t, adapter, store, []UserSession{sess})

	require.NoError(t, loop.processMarket(context.Background(), sess, "KRW-BTC"))

	pos, err := store.FindActivePosition(context.Background(), "u1", "KRW-BTC")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestManageActiveExitsOnHardStop(t *testing.T) {
	adapter := newFakeAdapter(40, 90) // price below stop-loss
	store := newFakeLiveStore()
	existing := &types.Position{
		UserID: "u1", Market: "KRW-BTC", Status: types.PositionActive, Strategy: "live",
		AvgEntryPrice: decimal.NewFromInt(100), Quantity: decimal.NewFromInt(1),
		TotalInvested: decimal.NewFromInt(100), StopLossPrice: decimal.NewFromInt(95),
		HighestPrice: decimal.NewFromInt(100),
	}
	require.NoError(t, store.UpsertPosition(context.Background(), existing))

	decider := &fakeDecider{sig: types.HoldSignal(), minWinLn: 30}
	sess := UserSession{UserID: "u1", Markets: []string{"KRW-BTC"}, Unit: 1, Decider: decider}
	loop := newTestLoop(t, adapter, store, []UserSession{sess})

	require.NoError(t, loop.processMarket(context.Background(), sess, "KRW-BTC"))

	pos, err := store.FindActivePosition(context.Background(), "u1", "KRW-BTC")
	require.NoError(t, err)
	assert.Nil(t, pos) // closed, no longer active

	closed := store.positions[store.key("u1", "KRW-BTC")]
	require.NotNil(t, closed)
	assert.Equal(t, types.PositionClosed, closed.Status)
	assert.Equal(t, types.ExitStopLossFixed, closed.ExitReason)
}

func TestTickSkipsWhenTradingDisabled(t *testing.T) {
	adapter := newFakeAdapter(40, 100)
	store := newFakeLiveStore()
	decider := &fakeDecider{sig: types.Signal{Action: types.Buy}, minWinLn: 30}
	sess := UserSession{UserID: "u1", Markets: []string{"KRW-BTC"}, Unit: 1, Decider: decider}
	loop := newTestLoop(t, adapter, store, []UserSession{sess})
	loop.cfg.TradingEnabled = false

	require.NoError(t, loop.Tick(context.Background()))
	assert.Empty(t, store.records)
}

func TestProcessMarketAppliesCurrentHourParam(t *testing.T) {
	adapter := newFakeAdapter(40, 100)
	store := newFakeLiveStore()
	hp := types.HourParam{Hour: 9, MinZScore: decimal.NewFromFloat(1.5), Enabled: true}
	store.hourParam = &hp
	decider := &fakeDecider{sig: types.HoldSignal(), minWinLn: 30}
	sess := UserSession{UserID: "u1", Markets: []string{"KRW-BTC"}, Unit: 1, Decider: decider}
	loop := newTestLoop(t, adapter, store, []UserSession{sess})

	require.NoError(t, loop.processMarket(context.Background(), sess, "KRW-BTC"))

	require.NotNil(t, decider.appliedHourParam)
	assert.True(t, decider.appliedHourParam.MinZScore.Equal(hp.MinZScore))
}

func TestReclaimStalePositionsEmergencyClosesEachRow(t *testing.T) {
	adapter := newFakeAdapter(40, 100)
	store := newFakeLiveStore()
	store.stale = []types.Position{
		{UserID: "u1", Market: "KRW-BTC", Status: types.PositionExiting},
	}
	require.NoError(t, store.UpsertPosition(context.Background(), &store.stale[0]))
	decider := &fakeDecider{sig: types.HoldSignal(), minWinLn: 30}
	sess := UserSession{UserID: "u1", Markets: []string{"KRW-BTC"}, Unit: 1, Decider: decider}
	loop := newTestLoop(t, adapter, store, []UserSession{sess})

	require.NoError(t, loop.ReclaimStalePositions(context.Background()))

	closed := store.positions[store.key("u1", "KRW-BTC")]
	require.NotNil(t, closed)
	assert.Equal(t, types.PositionClosed, closed.Status)
	assert.Equal(t, types.ExitEmergencyClose, closed.ExitReason)
}
