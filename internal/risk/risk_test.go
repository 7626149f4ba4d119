package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

type fakeStore struct {
	openCount     int
	hasOpen       map[string]bool
	dailyPnL      decimal.Decimal
	recentClosed  []types.Position
	cooldownUntil time.Time
}

func newFakeStore() *fakeStore { return &fakeStore{hasOpen: map[string]bool{}} }

func (f *fakeStore) CountOpenPositions(ctx context.Context, userID string) (int, error) {
	return f.openCount, nil
}
func (f *fakeStore) HasOpenPosition(ctx context.Context, userID, market string) (bool, error) {
	return f.hasOpen[market], nil
}
func (f *fakeStore) DailyRealizedPnL(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error) {
	return f.dailyPnL, nil
}
func (f *fakeStore) RecentClosedPositions(ctx context.Context, userID string, limit int) ([]types.Position, error) {
	if limit < len(f.recentClosed) {
		return f.recentClosed[:limit], nil
	}
	return f.recentClosed, nil
}
func (f *fakeStore) CooldownUntil(ctx context.Context, userID string) (time.Time, error) {
	return f.cooldownUntil, nil
}
func (f *fakeStore) SetCooldownUntil(ctx context.Context, userID string, until time.Time) error {
	f.cooldownUntil = until
	return nil
}

func testConfig() types.Config {
	cfg := types.Defaults()
	cfg.MaxConcurrentPositions = 2
	cfg.MaxPositionSizeRate = decimal.NewFromFloat(0.2)
	cfg.MaxDailyLossRate = decimal.NewFromFloat(-0.05)
	cfg.MaxConsecutiveLosses = 3
	cfg.CooldownMinutes = 30
	return cfg
}

func TestCheckEntryApprovesWithinLimits(t *testing.T) {
	store := newFakeStore()
	m := NewManager(zap.NewNop(), store, testConfig())
	d, err := m.CheckEntry(context.Background(), "u1", "KRW-BTC", decimal.NewFromInt(1_000_000), decimal.NewFromInt(100_000), time.Now())
	require.NoError(t, err)
	assert.True(t, d.Approved)
}

func TestCheckEntryDeniesDuringCooldown(t *testing.T) {
	store := newFakeStore()
	store.cooldownUntil = time.Now().Add(time.Hour)
	m := NewManager(zap.NewNop(), store, testConfig())
	d, err := m.CheckEntry(context.Background(), "u1", "KRW-BTC", decimal.NewFromInt(1_000_000), decimal.NewFromInt(100_000), time.Now())
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, DenyCooldown, d.Code)
}

func TestCheckEntryDeniesMaxConcurrent(t *testing.T) {
	store := newFakeStore()
	store.openCount = 2
	m := NewManager(zap.NewNop(), store, testConfig())
	d, err := m.CheckEntry(context.Background(), "u1", "KRW-BTC", decimal.NewFromInt(1_000_000), decimal.NewFromInt(100_000), time.Now())
	require.NoError(t, err)
	assert.Equal(t, DenyMaxConcurrent, d.Code)
}

func TestCheckEntryDeniesDuplicate(t *testing.T) {
	store := newFakeStore()
	store.hasOpen["KRW-BTC"] = true
	m := NewManager(zap.NewNop(), store, testConfig())
	d, err := m.CheckEntry(context.Background(), "u1", "KRW-BTC", decimal.NewFromInt(1_000_000), decimal.NewFromInt(100_000), time.Now())
	require.NoError(t, err)
	assert.Equal(t, DenyDuplicate, d.Code)
}

func TestCheckEntryDeniesSizingCap(t *testing.T) {
	store := newFakeStore()
	m := NewManager(zap.NewNop(), store, testConfig())
	d, err := m.CheckEntry(context.Background(), "u1", "KRW-BTC", decimal.NewFromInt(1_000_000), decimal.NewFromInt(300_000), time.Now())
	require.NoError(t, err)
	assert.Equal(t, DenySizingCap, d.Code)
}

func TestCheckEntryDeniesDailyLossCap(t *testing.T) {
	store := newFakeStore()
	store.dailyPnL = decimal.NewFromInt(-100_000) // -10% of 1,000,000 balance
	m := NewManager(zap.NewNop(), store, testConfig())
	d, err := m.CheckEntry(context.Background(), "u1", "KRW-BTC", decimal.NewFromInt(1_000_000), decimal.NewFromInt(50_000), time.Now())
	require.NoError(t, err)
	assert.Equal(t, DenyDailyLossCap, d.Code)
}

func TestCheckEntryDeniesConsecutiveLossesAndSetsCooldown(t *testing.T) {
	store := newFakeStore()
	store.recentClosed = []types.Position{
		{RealizedPnL: decimal.NewFromInt(-1)},
		{RealizedPnL: decimal.NewFromInt(-1)},
		{RealizedPnL: decimal.NewFromInt(-1)},
	}
	m := NewManager(zap.NewNop(), store, testConfig())
	now := time.Now()
	d, err := m.CheckEntry(context.Background(), "u1", "KRW-BTC", decimal.NewFromInt(1_000_000), decimal.NewFromInt(50_000), now)
	require.NoError(t, err)
	assert.Equal(t, DenyConsecutiveLosses, d.Code)
	assert.True(t, store.cooldownUntil.After(now))
}

func TestStopLossPriceClamps(t *testing.T) {
	entry := decimal.NewFromInt(100_000)
	atr := decimal.NewFromInt(10_000)
	k := decimal.NewFromFloat(1.5)
	minRate := decimal.NewFromFloat(0.01)
	maxRate := decimal.NewFromFloat(0.05)
	got := StopLossPrice(entry, atr, k, minRate, maxRate)
	// k*atr = 15000, clamp to [1000, 5000] -> 5000
	assert.True(t, got.Equal(decimal.NewFromInt(95_000)))
}

func TestScoreForcedToHundredDuringCooldown(t *testing.T) {
	store := newFakeStore()
	store.cooldownUntil = time.Now().Add(time.Hour)
	m := NewManager(zap.NewNop(), store, testConfig())
	score, err := m.Score(context.Background(), "u1", time.Now())
	require.NoError(t, err)
	assert.True(t, score.Equal(decimal.NewFromInt(100)))
}
