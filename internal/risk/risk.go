// Package risk implements the pre-trade risk pipeline and position
// sizing math described in SPEC_FULL.md §4.5. The manager is stateless
// over persisted counters: all history it needs comes through the
// Store port, never from in-memory fields.
package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/pkg/types"
	"github.com/atlas-quant/upbit-engine/pkg/utils"
)

// Store is the slice of persistence the risk manager reads and writes
// while evaluating an entry. A concrete implementation lives in
// internal/store.
type Store interface {
	CountOpenPositions(ctx context.Context, userID string) (int, error)
	HasOpenPosition(ctx context.Context, userID, market string) (bool, error)
	DailyRealizedPnL(ctx context.Context, userID string, day time.Time) (decimal.Decimal, error)
	RecentClosedPositions(ctx context.Context, userID string, limit int) ([]types.Position, error)
	CooldownUntil(ctx context.Context, userID string) (time.Time, error)
	SetCooldownUntil(ctx context.Context, userID string, until time.Time) error
}

// DenyCode enumerates which pipeline stage rejected an entry request.
type DenyCode string

const (
	DenyNone              DenyCode = ""
	DenyCooldown          DenyCode = "COOLDOWN"
	DenyMaxConcurrent     DenyCode = "MAX_CONCURRENT_POSITIONS"
	DenyDuplicate         DenyCode = "DUPLICATE_POSITION"
	DenySizingCap         DenyCode = "SIZING_CAP"
	DenyDailyLossCap      DenyCode = "DAILY_LOSS_CAP"
	DenyConsecutiveLosses DenyCode = "CONSECUTIVE_LOSSES"
)

// Decision is the typed result of a risk check, used instead of a
// plain error so callers can branch on Code without string matching.
type Decision struct {
	Approved bool
	Code     DenyCode
	Reason   string
}

func deny(code DenyCode, reason string) Decision {
	return Decision{Approved: false, Code: code, Reason: reason}
}

var approved = Decision{Approved: true}

// Manager evaluates entry requests against the ordered pipeline and
// exposes the position-sizing and stop-price math helpers.
type Manager struct {
	logger *zap.Logger
	store  Store
	cfg    types.Config
}

// NewManager builds a risk manager over the given store and config.
func NewManager(logger *zap.Logger, store Store, cfg types.Config) *Manager {
	return &Manager{logger: logger.Named("risk"), store: store, cfg: cfg}
}

// CheckEntry runs the six-stage ordered pipeline, short-circuiting on
// the first deny (SPEC_FULL.md §4.5).
func (m *Manager) CheckEntry(ctx context.Context, userID, market string, balance, notional decimal.Decimal, now time.Time) (Decision, error) {
	until, err := m.store.CooldownUntil(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("risk: cooldown lookup: %w", err)
	}
	if now.Before(until) {
		return deny(DenyCooldown, fmt.Sprintf("cooldown active until %s", until)), nil
	}

	openCount, err := m.store.CountOpenPositions(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("risk: open position count: %w", err)
	}
	if openCount >= m.cfg.MaxConcurrentPositions {
		return deny(DenyMaxConcurrent, fmt.Sprintf("open positions %d >= cap %d", openCount, m.cfg.MaxConcurrentPositions)), nil
	}

	dup, err := m.store.HasOpenPosition(ctx, userID, market)
	if err != nil {
		return Decision{}, fmt.Errorf("risk: duplicate check: %w", err)
	}
	if dup {
		return deny(DenyDuplicate, fmt.Sprintf("position already open for %s", market)), nil
	}

	cap := balance.Mul(m.cfg.MaxPositionSizeRate)
	if notional.GreaterThan(cap) {
		return deny(DenySizingCap, fmt.Sprintf("notional %s exceeds cap %s", notional, cap)), nil
	}

	dailyPnL, err := m.store.DailyRealizedPnL(ctx, userID, now)
	if err != nil {
		return Decision{}, fmt.Errorf("risk: daily pnl: %w", err)
	}
	dailyLossFloor := balance.Mul(m.cfg.MaxDailyLossRate) // negative rate -> negative floor
	if dailyPnL.LessThanOrEqual(dailyLossFloor) {
		return deny(DenyDailyLossCap, fmt.Sprintf("daily pnl %s breached floor %s", dailyPnL, dailyLossFloor)), nil
	}

	recent, err := m.store.RecentClosedPositions(ctx, userID, m.cfg.MaxConsecutiveLosses)
	if err != nil {
		return Decision{}, fmt.Errorf("risk: recent closed positions: %w", err)
	}
	if consecutiveLosses(recent) >= m.cfg.MaxConsecutiveLosses {
		cooldownUntil := now.Add(time.Duration(m.cfg.CooldownMinutes) * time.Minute)
		if err := m.store.SetCooldownUntil(ctx, userID, cooldownUntil); err != nil {
			return Decision{}, fmt.Errorf("risk: set cooldown: %w", err)
		}
		return deny(DenyConsecutiveLosses, fmt.Sprintf("consecutive losses >= %d, cooldown until %s", m.cfg.MaxConsecutiveLosses, cooldownUntil)), nil
	}

	return approved, nil
}

// consecutiveLosses counts the contiguous run of losing positions at
// the head of recent, which must be ordered most-recent-first.
func consecutiveLosses(recent []types.Position) int {
	count := 0
	for _, p := range recent {
		if p.RealizedPnL.IsNegative() {
			count++
			continue
		}
		break
	}
	return count
}

// StopLossPrice computes entry - clamp(k*atr, minRate*entry, maxRate*entry)
// for a long position.
func StopLossPrice(entry, atr, k, minRate, maxRate decimal.Decimal) decimal.Decimal {
	raw := k.Mul(atr)
	clamped := utils.ClampDecimal(raw, minRate.Mul(entry), maxRate.Mul(entry))
	return entry.Sub(clamped)
}

// TrailingStopPrice computes highest - max(k*atr, trailingRate*highest).
func TrailingStopPrice(highest, atr, k, trailingRate decimal.Decimal) decimal.Decimal {
	width := utils.MaxDecimal(k.Mul(atr), trailingRate.Mul(highest))
	return highest.Sub(width)
}

// PositionSize computes balance * maxPositionSizeRate * phaseRatio[phase].
// phase is 1-indexed (1, 2, or 3).
func (m *Manager) PositionSize(balance decimal.Decimal, phase int) decimal.Decimal {
	if phase < 1 || phase > len(m.cfg.EntryRatio) {
		return decimal.Zero
	}
	return balance.Mul(m.cfg.MaxPositionSizeRate).Mul(m.cfg.EntryRatio[phase-1])
}

// Score computes the 0-100 composite risk score: 30% position
// utilization, 40% daily-loss utilization, 30% consecutive-loss
// utilization. An active cooldown forces the score to 100.
func (m *Manager) Score(ctx context.Context, userID string, now time.Time) (decimal.Decimal, error) {
	until, err := m.store.CooldownUntil(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("risk: cooldown lookup: %w", err)
	}
	if now.Before(until) {
		return decimal.NewFromInt(100), nil
	}

	openCount, err := m.store.CountOpenPositions(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("risk: open position count: %w", err)
	}
	positionUtil := decimal.Zero
	if m.cfg.MaxConcurrentPositions > 0 {
		positionUtil = decimal.NewFromInt(int64(openCount)).Div(decimal.NewFromInt(int64(m.cfg.MaxConcurrentPositions)))
	}

	dailyPnL, err := m.store.DailyRealizedPnL(ctx, userID, now)
	if err != nil {
		return decimal.Zero, fmt.Errorf("risk: daily pnl: %w", err)
	}
	dailyLossUtil := decimal.Zero
	if m.cfg.MaxDailyLossRate.IsNegative() && dailyPnL.IsNegative() {
		dailyLossUtil = dailyPnL.Div(m.cfg.MaxDailyLossRate) // both negative -> positive ratio
	}

	recent, err := m.store.RecentClosedPositions(ctx, userID, m.cfg.MaxConsecutiveLosses)
	if err != nil {
		return decimal.Zero, fmt.Errorf("risk: recent closed positions: %w", err)
	}
	lossesUtil := decimal.Zero
	if m.cfg.MaxConsecutiveLosses > 0 {
		lossesUtil = decimal.NewFromInt(int64(consecutiveLosses(recent))).Div(decimal.NewFromInt(int64(m.cfg.MaxConsecutiveLosses)))
	}

	score := positionUtil.Mul(decimal.NewFromFloat(0.3)).
		Add(dailyLossUtil.Mul(decimal.NewFromFloat(0.4))).
		Add(lossesUtil.Mul(decimal.NewFromFloat(0.3))).
		Mul(decimal.NewFromInt(100))

	return utils.ClampDecimal(score, decimal.Zero, decimal.NewFromInt(100)), nil
}
