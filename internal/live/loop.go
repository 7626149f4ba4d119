// Package live drives the periodic live-trading tick described in
// SPEC_FULL.md §4.6: per enabled user, per market, evaluate the active
// position's exit triggers or attempt a fresh entry, submit the
// resulting order, confirm the fill, and persist the outcome.
package live

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-quant/upbit-engine/internal/exchange"
	"github.com/atlas-quant/upbit-engine/internal/indicator"
	"github.com/atlas-quant/upbit-engine/internal/metrics"
	"github.com/atlas-quant/upbit-engine/internal/position"
	"github.com/atlas-quant/upbit-engine/internal/risk"
	"github.com/atlas-quant/upbit-engine/internal/worker"
	"github.com/atlas-quant/upbit-engine/pkg/types"
	"github.com/atlas-quant/upbit-engine/pkg/utils"
)

const atrPeriod = 14

// Loop is the live-trading scheduler: one instance drives every
// enabled user's sessions on a shared cron tick.
type Loop struct {
	logger   *zap.Logger
	adapter  exchange.Adapter
	store    Store
	risk     *risk.Manager
	cfg      types.Config
	pool     *worker.Pool
	sessions []UserSession
	locks    *keyedMutex

	cron    *cron.Cron
	tickExp string
}

// New builds a live loop over the given sessions. tickExpr is a cron
// expression (e.g. "@every 5m") controlling how often Tick fires.
func New(logger *zap.Logger, adapter exchange.Adapter, store Store, riskMgr *risk.Manager, cfg types.Config, pool *worker.Pool, sessions []UserSession, tickExpr string) *Loop {
	return &Loop{
		logger:   logger.Named("live"),
		adapter:  adapter,
		store:    store,
		risk:     riskMgr,
		cfg:      cfg,
		pool:     pool,
		sessions: sessions,
		locks:    newKeyedMutex(),
		cron:     cron.New(),
		tickExp:  tickExpr,
	}
}

// Start schedules Tick on the configured cron expression.
func (l *Loop) Start(ctx context.Context) error {
	_, err := l.cron.AddFunc(l.tickExp, func() {
		if err := l.Tick(ctx); err != nil {
			l.logger.Error("tick failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("live: schedule tick: %w", err)
	}
	l.cron.Start()
	return nil
}

// Stop drains the cron scheduler, waiting for an in-flight tick.
func (l *Loop) Stop() {
	stopCtx := l.cron.Stop()
	<-stopCtx.Done()
}

// ReclaimStalePositions force-closes every non-CLOSED position that has
// not been touched in cfg.StalePositionMinutes, the operator-triggered
// recovery pass for positions orphaned by a crashed instance (spec §5
// "Durability and recovery"), analogous to simtask.Supervisor.Reclaim.
// Call once at startup before Start.
func (l *Loop) ReclaimStalePositions(ctx context.Context) error {
	threshold := time.Duration(l.cfg.StalePositionMinutes) * time.Minute
	stale, err := l.store.FindStalePositions(ctx, threshold)
	if err != nil {
		return fmt.Errorf("live: find stale positions: %w", err)
	}
	for i := range stale {
		pos := &stale[i]
		l.logger.Warn("emergency-closing stale position",
			zap.String("userId", pos.UserID), zap.String("market", pos.Market), zap.String("status", string(pos.Status)))
		m := position.Wrap(pos)
		if err := m.EmergencyClose(decimal.Zero, time.Now()); err != nil {
			l.logger.Error("emergency close failed", zap.String("userId", pos.UserID), zap.String("market", pos.Market), zap.Error(err))
			continue
		}
		if err := l.store.UpsertPosition(ctx, pos); err != nil {
			l.logger.Error("emergency close persist failed", zap.String("userId", pos.UserID), zap.String("market", pos.Market), zap.Error(err))
		}
	}
	return nil
}

// Tick processes every enabled user's sessions in order; markets
// within one user's session dispatch across the bounded worker pool.
// A single market's failure is logged and does not abort the tick.
func (l *Loop) Tick(ctx context.Context) error {
	if !l.cfg.TradingEnabled {
		l.logger.Debug("trading disabled, skipping tick")
		return nil
	}
	start := time.Now()
	for _, sess := range l.sessions {
		l.tickUser(ctx, sess)
	}
	elapsed := time.Since(start)
	l.logger.Debug("tick complete", zap.String("elapsed", utils.FormatDuration(elapsed)), zap.Int("users", len(l.sessions)))
	metrics.LiveTickDuration.Observe(elapsed.Seconds())
	metrics.ObserveWorkerPool("live", l.pool)
	return nil
}

func (l *Loop) tickUser(ctx context.Context, sess UserSession) {
	if score, err := l.risk.Score(ctx, sess.UserID, time.Now()); err == nil {
		scoreFloat, _ := score.Float64()
		metrics.RiskScore.WithLabelValues(sess.UserID).Set(scoreFloat)
	}

	var wg sync.WaitGroup
	wg.Add(len(sess.Markets))
	for _, market := range sess.Markets {
		market := market
		l.pool.SubmitFunc(func() error {
			defer wg.Done()
			if err := l.processMarket(ctx, sess, market); err != nil {
				l.logger.Error("market tick failed",
					zap.String("userId", sess.UserID), zap.String("market", market), zap.Error(err))
			}
			return nil
		})
	}
	wg.Wait()

	l.sampleOpenPositions(ctx, sess)
}

// sampleOpenPositions refreshes the open-position gauge for one user
// after its markets have all ticked.
func (l *Loop) sampleOpenPositions(ctx context.Context, sess UserSession) {
	open := 0
	for _, market := range sess.Markets {
		pos, err := l.store.FindActivePosition(ctx, sess.UserID, market)
		if err != nil {
			continue
		}
		if pos != nil && pos.IsOpen() {
			open++
		}
	}
	metrics.PositionsOpen.WithLabelValues(sess.UserID).Set(float64(open))
}

// processMarket runs the five numbered steps of the live loop for one
// (user, market) pair, holding that pair's mutex for the duration.
func (l *Loop) processMarket(ctx context.Context, sess UserSession, market string) error {
	lock := l.locks.get(sess.UserID + ":" + market)
	lock.Lock()
	defer lock.Unlock()

	hour := time.Now().Hour()
	hp, _, err := l.store.HourParam(ctx, hour)
	if err != nil {
		l.logger.Debug("hour param lookup failed, falling back to defaults", zap.Int("hour", hour), zap.Error(err))
		hp = types.DefaultHourParam(hour)
	}
	sess.Decider.ApplyHourParam(hp)

	minWindow := sess.Decider.MinWindowLen()
	newest, err := l.adapter.MinuteCandles(ctx, market, sess.Unit, minWindow)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	if len(newest) < minWindow {
		l.logger.Debug("window too short, skipping", zap.String("market", market), zap.Int("have", len(newest)))
		return nil
	}
	window := types.NewCandleWindow(market, sess.Unit, ascending(newest))

	pos, err := l.store.FindActivePosition(ctx, sess.UserID, market)
	if err != nil {
		return fmt.Errorf("load position: %w", err)
	}

	if pos != nil && pos.IsOpen() {
		return l.manageActive(ctx, sess, market, window, pos)
	}
	return l.tryEnter(ctx, sess, market, window)
}

// ascending reverses a newest-first candle slice into the
// oldest-first order types.CandleWindow expects.
func ascending(newest []types.Candle) []types.Candle {
	out := make([]types.Candle, len(newest))
	n := len(newest)
	for i, c := range newest {
		out[n-1-i] = c
	}
	return out
}

// manageActive evaluates the ordered exit triggers for an ACTIVE
// position and, if one fires, submits the exit and persists the
// outcome (SPEC_FULL.md §4.4, §4.6 step 3).
func (l *Loop) manageActive(ctx context.Context, sess UserSession, market string, window types.CandleWindow, pos *types.Position) error {
	m := position.Wrap(pos)
	price := window.Last().Close()

	m.UpdateHighest(price, l.cfg.TrailingStopRate)
	if pos.TrailingArmed {
		atr, err := indicator.ATR(window.Ascending(), atrPeriod)
		if err == nil {
			m.ArmTrailingStop(risk.TrailingStopPrice(pos.HighestPrice, atr, l.cfg.TrailingAtrMultiplier, l.cfg.TrailingStopRate))
		}
	}

	sig := sess.Decider.Evaluate(market, window, true)
	strategySell := sig.Action == types.Sell
	maxLossExceeded := unrealizedLossExceeds(pos, price, l.cfg.StopLossRate)

	trigger := m.EvaluateExitTriggers(price, strategySell, maxLossExceeded)
	if trigger == position.NoExitTrigger {
		return l.store.UpsertPosition(ctx, pos)
	}

	reason := exitReasonFor(trigger, sig)
	return l.exitPosition(ctx, sess.UserID, market, m, price, reason)
}

// unrealizedLossExceeds reports whether the position's current
// unrealized loss, as a fraction of invested capital, breaches the
// per-position floor used as the "max loss" exit trigger.
func unrealizedLossExceeds(pos *types.Position, price, maxLossRate decimal.Decimal) bool {
	if pos.AvgEntryPrice.IsZero() {
		return false
	}
	rate := price.Sub(pos.AvgEntryPrice).Div(pos.AvgEntryPrice)
	return rate.LessThanOrEqual(maxLossRate)
}

func exitReasonFor(trigger position.ExitTrigger, sig types.Signal) types.ExitReason {
	switch trigger {
	case position.TriggerHardStop:
		return types.ExitStopLossFixed
	case position.TriggerTrailingStop:
		return types.ExitTrailingStop
	case position.TriggerStrategySell:
		if sig.ExitReason != "" {
			return sig.ExitReason
		}
		return types.ExitSignalInvalid
	case position.TriggerMaxLoss:
		return types.ExitTimeout
	default:
		return types.ExitSignalInvalid
	}
}

// exitPosition submits a market sell, confirms the fill, closes the
// state machine, and records the TradeRecord/TradeStat pair.
func (l *Loop) exitPosition(ctx context.Context, userID, market string, m *position.Machine, price decimal.Decimal, reason types.ExitReason) error {
	pos := m.Position()
	if err := m.BeginExit(); err != nil {
		return fmt.Errorf("begin exit: %w", err)
	}
	if err := l.store.UpsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("persist exiting: %w", err)
	}

	ack, err := l.adapter.SellMarket(ctx, userID, market, pos.Quantity)
	if err != nil {
		return fmt.Errorf("submit sell: %w", err)
	}
	status, err := exchange.FillWaiter(ctx, l.adapter, userID, ack.UUID, l.cfg.OrderCheckMaxRetry, time.Duration(l.cfg.OrderCheckIntervalMs)*time.Millisecond)
	if err != nil {
		return fmt.Errorf("await sell fill: %w", err)
	}
	if status.State != exchange.OrderDone {
		_ = l.adapter.CancelOrder(ctx, userID, ack.UUID)
		return fmt.Errorf("sell not filled, state=%s", status.State)
	}

	fee := status.ExecutedFunds.Mul(l.cfg.TradeFeeRate)
	proceeds := status.ExecutedFunds.Sub(fee)
	realizedPnL := proceeds.Sub(pos.TotalInvested)
	profitRate := decimal.Zero
	if pos.TotalInvested.IsPositive() {
		profitRate = realizedPnL.Div(pos.TotalInvested)
	}

	now := time.Now()
	if err := m.Close(realizedPnL, reason, now); err != nil {
		return fmt.Errorf("close position: %w", err)
	}
	if err := l.store.UpsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("persist closed: %w", err)
	}

	if err := l.store.InsertTradeRecord(ctx, types.TradeRecord{
		ID: fmt.Sprintf("%s-%s-%d", userID, market, now.UnixNano()), UserID: userID, Market: market,
		Timestamp: now, Side: types.SideSell, Price: price, Volume: status.ExecutedVolume, Fee: fee,
		TotalAsset: proceeds, ProfitRate: profitRate, Strategy: pos.Strategy, ExitReason: reason,
	}); err != nil {
		l.logger.Error("trade record insert failed", zap.Error(err))
	}

	result := "loss"
	if realizedPnL.IsPositive() {
		result = "win"
	}
	metrics.TradesTotal.WithLabelValues(userID, string(types.SideSell), result).Inc()
	realizedPnLFloat, _ := realizedPnL.Float64()
	metrics.RealizedPnL.WithLabelValues(userID, market).Set(realizedPnLFloat)

	entryTime := pos.EntryTimestamps[0]
	return l.store.InsertTradeStat(ctx, types.TradeStat{
		Market: market, UserID: userID, EntryTime: entryTime, ExitTime: now,
		EntryPrice: pos.AvgEntryPrice, ExitPrice: price, ProfitRate: profitRate,
		EntryHour: entryTime.Hour(), Success: realizedPnL.IsPositive(), ExitReason: reason,
		EntryZScore: pos.EntryZScore, EntryExecStrength: pos.EntryExecStrength,
	})
}

// tryEnter runs the configured decider when there is no open position
// and, on Buy, asks the risk manager before submitting an entry.
func (l *Loop) tryEnter(ctx context.Context, sess UserSession, market string, window types.CandleWindow) error {
	sig := sess.Decider.Evaluate(market, window, false)
	if sig.Action != types.Buy {
		return nil
	}

	accounts, err := l.adapter.Accounts(ctx, sess.UserID)
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}
	balance := krwBalance(accounts)
	notional := l.risk.PositionSize(balance, 1)
	if notional.IsZero() {
		return nil
	}

	decision, err := l.risk.CheckEntry(ctx, sess.UserID, market, balance, notional, time.Now())
	if err != nil {
		return fmt.Errorf("risk check: %w", err)
	}
	if !decision.Approved {
		l.logger.Debug("entry denied", zap.String("market", market), zap.String("code", string(decision.Code)), zap.String("reason", decision.Reason))
		metrics.RiskDenials.WithLabelValues(sess.UserID, string(decision.Code)).Inc()
		return nil
	}

	return l.enterPosition(ctx, sess, market, window, notional)
}

func (l *Loop) enterPosition(ctx context.Context, sess UserSession, market string, window types.CandleWindow, notional decimal.Decimal) error {
	m := position.New(sess.UserID, market, sess.Decider.Name())
	pos := m.Position()
	if err := l.store.UpsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("persist pending: %w", err)
	}

	ack, err := l.adapter.BuyMarket(ctx, sess.UserID, market, notional)
	if err != nil {
		_ = m.CancelEntry(time.Now())
		_ = l.store.UpsertPosition(ctx, pos)
		return fmt.Errorf("submit buy: %w", err)
	}
	status, err := exchange.FillWaiter(ctx, l.adapter, sess.UserID, ack.UUID, l.cfg.OrderCheckMaxRetry, time.Duration(l.cfg.OrderCheckIntervalMs)*time.Millisecond)
	if err != nil || status.State != exchange.OrderDone {
		_ = l.adapter.CancelOrder(ctx, sess.UserID, ack.UUID)
		if cancelErr := m.CancelEntry(time.Now()); cancelErr == nil {
			_ = l.store.UpsertPosition(ctx, pos)
		}
		if err != nil {
			return fmt.Errorf("await buy fill: %w", err)
		}
		return fmt.Errorf("buy not filled, state=%s", status.State)
	}

	fillPrice := decimal.Zero
	if status.ExecutedVolume.IsPositive() {
		fillPrice = status.ExecutedFunds.Div(status.ExecutedVolume)
	}
	now := time.Now()
	if err := m.Enter(fillPrice, status.ExecutedVolume, now); err != nil {
		return fmt.Errorf("record entry: %w", err)
	}
	if err := m.ConfirmActive(); err != nil {
		return fmt.Errorf("confirm active: %w", err)
	}

	atr, err := indicator.ATR(window.Ascending(), atrPeriod)
	if err == nil {
		fixedStopRate := l.cfg.StopLossRate.Abs()
		pos.StopLossPrice = risk.StopLossPrice(fillPrice, atr, l.cfg.StopLossAtrMultiplier, fixedStopRate.Div(decimal.NewFromInt(2)), fixedStopRate.Mul(decimal.NewFromInt(2)))
	}
	if zscore, err := indicator.VolumeZScore(window.Ascending(), atrPeriod); err == nil {
		pos.EntryZScore = zscore
	}
	if ob, err := l.adapter.Orderbook(ctx, market); err == nil {
		pos.EntryExecStrength = executionStrength(ob)
	}
	if err := l.store.UpsertPosition(ctx, pos); err != nil {
		return fmt.Errorf("persist active: %w", err)
	}

	fee := notional.Mul(l.cfg.TradeFeeRate)
	if err := l.store.InsertTradeRecord(ctx, types.TradeRecord{
		ID: fmt.Sprintf("%s-%s-%d", sess.UserID, market, now.UnixNano()), UserID: sess.UserID, Market: market,
		Timestamp: now, Side: types.SideBuy, Price: fillPrice, Volume: status.ExecutedVolume, Fee: fee,
		TotalAsset: notional, Strategy: pos.Strategy,
	}); err != nil {
		return err
	}
	metrics.TradesTotal.WithLabelValues(sess.UserID, string(types.SideBuy), "n/a").Inc()
	return nil
}

// executionStrength is the ratio of buy-side to total resting
// orderbook depth, expressed on the same 0-100 scale as
// types.TunerBand.MinExecutionStrength, standing in for true
// buy/sell traded-volume strength since the exchange port exposes no
// raw trade feed.
func executionStrength(ob exchange.Orderbook) decimal.Decimal {
	total := ob.TotalBid.Add(ob.TotalAsk)
	if !total.IsPositive() {
		return decimal.Zero
	}
	return ob.TotalBid.Div(total).Mul(decimal.NewFromInt(100))
}

func krwBalance(accounts []exchange.Account) decimal.Decimal {
	for _, a := range accounts {
		if a.Currency == "KRW" {
			return a.Balance
		}
	}
	return decimal.Zero
}
