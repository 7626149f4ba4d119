// Package strategy provides the pluggable trading strategies evaluated
// by the aggregator and the backtest executor.
package strategy

import (
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// Strategy is a named, stateless-from-the-outside evaluator over a
// candle window (SPEC_FULL.md §4.2).
type Strategy interface {
	// Name is the strategy's stable identifier, used for registration,
	// persistence, and audit trails.
	Name() string

	// Analyze is the live path. It may read and update per-market
	// memoized state owned by the strategy, guarded internally by one
	// mutex shared by all of the strategy's markets (not a per-market
	// lock).
	Analyze(market string, window types.CandleWindow) (types.Signal, error)

	// AnalyzeForBacktest is the backtest path. It must be pure given
	// (window, position): no persistence access, no time source reads.
	AnalyzeForBacktest(market string, window types.CandleWindow, position *types.Position) (types.Signal, error)

	// TargetPrice, StopLossPrice, EntryPrice are advisory accessors
	// over the strategy's last memoized decision for a market. The
	// bool is false when nothing has been memoized yet.
	TargetPrice(market string) (decimal.Decimal, bool)
	StopLossPrice(market string) (decimal.Decimal, bool)
	EntryPrice(market string) (decimal.Decimal, bool)

	// ClearPosition drops any memoized state for market; called on
	// CLOSE.
	ClearPosition(market string)
}

// MinWindow is implemented by strategies that declare the minimum
// window length they require; the live loop and backtest executor use
// it to decide how many bars to fetch/slice before the first call.
type MinWindow interface {
	MinWindowLen() int
}

// memo is the per-market advisory state a strategy carries between
// calls: last target/stop/entry price.
type memo struct {
	targetPrice   decimal.Decimal
	stopLossPrice decimal.Decimal
	entryPrice    decimal.Decimal
	hasTarget     bool
	hasStopLoss   bool
	hasEntry      bool
}

// base carries the common per-market memo map and mutex every
// concrete strategy embeds; it is not itself a Strategy.
type base struct {
	mu      sync.Mutex
	memos   map[string]*memo
	logger  *zap.Logger
}

func newBase(logger *zap.Logger) base {
	return base{memos: make(map[string]*memo), logger: logger}
}

func (b *base) memoFor(market string) *memo {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.memos[market]
	if !ok {
		m = &memo{}
		b.memos[market] = m
	}
	return m
}

func (b *base) setAdvisory(market string, target, stopLoss, entry decimal.Decimal) {
	m := b.memoFor(market)
	b.mu.Lock()
	defer b.mu.Unlock()
	m.targetPrice, m.hasTarget = target, !target.IsZero()
	m.stopLossPrice, m.hasStopLoss = stopLoss, !stopLoss.IsZero()
	m.entryPrice, m.hasEntry = entry, !entry.IsZero()
}

func (b *base) TargetPrice(market string) (decimal.Decimal, bool) {
	m := b.memoFor(market)
	b.mu.Lock()
	defer b.mu.Unlock()
	return m.targetPrice, m.hasTarget
}

func (b *base) StopLossPrice(market string) (decimal.Decimal, bool) {
	m := b.memoFor(market)
	b.mu.Lock()
	defer b.mu.Unlock()
	return m.stopLossPrice, m.hasStopLoss
}

func (b *base) EntryPrice(market string) (decimal.Decimal, bool) {
	m := b.memoFor(market)
	b.mu.Lock()
	defer b.mu.Unlock()
	return m.entryPrice, m.hasEntry
}

func (b *base) ClearPosition(market string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.memos, market)
}

// sellWithReason builds a Sell signal carrying the given exit reason.
func (b *base) sellWithReason(market string, reason types.ExitReason) types.Signal {
	return types.Signal{Action: types.Sell, ExitReason: reason}
}

// Registry manages the set of available strategies by name, the
// duck-typed selection mechanism SPEC_FULL.md §9 calls for.
type Registry struct {
	mu         sync.RWMutex
	factories  map[string]func() Strategy
}

// NewRegistry builds a registry seeded with the built-in strategy set.
func NewRegistry(logger *zap.Logger) *Registry {
	r := &Registry{factories: make(map[string]func() Strategy)}
	r.Register("bollinger_breakout", func() Strategy { return NewBollingerBreakout(logger) })
	r.Register("trend_following", func() Strategy { return NewTrendFollowing(logger) })
	r.Register("rsi_reversal", func() Strategy { return NewRSIReversal(logger) })
	r.Register("vwap_reversion", func() Strategy { return NewVWAPReversion(logger) })
	r.Register("volume_impulse", func() Strategy { return NewVolumeImpulse(logger) })
	return r
}

// Register adds (or replaces) a named strategy factory.
func (r *Registry) Register(name string, factory func() Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates a strategy by name.
func (r *Registry) Create(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// List returns all registered strategy names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
