// Package position implements the per (user, market) position state
// machine described in SPEC_FULL.md §4.4.
package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/pkg/types"
)

// ErrInvalidTransition is returned when a caller asks for a state
// change the machine does not allow from the current status.
type ErrInvalidTransition struct {
	From types.PositionStatus
	To   types.PositionStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("position: invalid transition %s -> %s", e.From, e.To)
}

// Machine wraps a *types.Position and only permits the transitions
// SPEC_FULL.md §4.4 allows, keeping the invariants intact at every step.
type Machine struct {
	pos *types.Position
}

// New starts a fresh machine in PENDING for a (user, market) pair.
func New(userID, market, strategyName string) *Machine {
	return &Machine{pos: &types.Position{
		UserID:   userID,
		Market:   market,
		Status:   types.PositionPending,
		Strategy: strategyName,
	}}
}

// Wrap adapts an existing persisted position (e.g. loaded from the
// store) into a Machine.
func Wrap(pos *types.Position) *Machine { return &Machine{pos: pos} }

// Position returns the underlying record.
func (m *Machine) Position() *types.Position { return m.pos }

// Enter transitions PENDING->ENTERING on the first entry, or performs
// a staged re-entry while ENTERING/ACTIVE and entryPhase<3, averaging
// the new fill into AvgEntryPrice.
func (m *Machine) Enter(price, qty decimal.Decimal, at time.Time) error {
	switch m.pos.Status {
	case types.PositionPending:
		m.pos.Status = types.PositionEntering
	case types.PositionEntering, types.PositionActive:
		if !m.pos.CanEnter() {
			return &ErrInvalidTransition{From: m.pos.Status, To: types.PositionEntering}
		}
	default:
		return &ErrInvalidTransition{From: m.pos.Status, To: types.PositionEntering}
	}

	totalQty := m.pos.Quantity.Add(qty)
	notional := m.pos.AvgEntryPrice.Mul(m.pos.Quantity).Add(price.Mul(qty))
	if totalQty.IsPositive() {
		m.pos.AvgEntryPrice = notional.Div(totalQty)
	}
	m.pos.Quantity = totalQty
	m.pos.TotalInvested = m.pos.TotalInvested.Add(price.Mul(qty))
	m.pos.EntryPhase++
	if m.pos.EntryPhase >= 1 && m.pos.EntryPhase <= 3 {
		m.pos.EntryTimestamps[m.pos.EntryPhase-1] = at
	}
	if m.pos.HighestPrice.LessThan(price) {
		m.pos.HighestPrice = price
	}
	return m.pos.Validate()
}

// ConfirmActive transitions ENTERING->ACTIVE once the entry fill is
// confirmed by the exchange.
func (m *Machine) ConfirmActive() error {
	if m.pos.Status != types.PositionEntering {
		return &ErrInvalidTransition{From: m.pos.Status, To: types.PositionActive}
	}
	m.pos.Status = types.PositionActive
	return nil
}

// CancelEntry moves a failed/fully-cancelled entry straight to CLOSED
// without ever reaching ACTIVE.
func (m *Machine) CancelEntry(at time.Time) error {
	if m.pos.Status != types.PositionPending && m.pos.Status != types.PositionEntering {
		return &ErrInvalidTransition{From: m.pos.Status, To: types.PositionClosed}
	}
	m.pos.Status = types.PositionClosed
	m.pos.FinalExitTime = at
	return nil
}

// UpdateHighest refreshes the highest-price-since-entry tracker and
// arms the trailing stop once unrealized profit exceeds armThreshold
// (a fraction, e.g. 0.02 for 2%). trailingStop is computed by the
// caller (risk manager) and passed in once armed.
func (m *Machine) UpdateHighest(price, armThreshold decimal.Decimal) {
	if m.pos.Status != types.PositionActive && m.pos.Status != types.PositionExiting {
		return
	}
	if price.GreaterThan(m.pos.HighestPrice) {
		m.pos.HighestPrice = price
	}
	if m.pos.TrailingArmed || m.pos.AvgEntryPrice.IsZero() {
		return
	}
	profit := m.pos.HighestPrice.Sub(m.pos.AvgEntryPrice).Div(m.pos.AvgEntryPrice)
	if profit.GreaterThan(armThreshold) {
		m.pos.TrailingArmed = true
	}
}

// ArmTrailingStop sets the trailing-stop price once the machine has
// been armed by UpdateHighest; the risk manager owns the math.
func (m *Machine) ArmTrailingStop(trailingStop decimal.Decimal) {
	m.pos.TrailingStop = trailingStop
}

// BeginExit transitions ACTIVE->EXITING when an exit trigger fires.
func (m *Machine) BeginExit() error {
	if m.pos.Status != types.PositionActive {
		return &ErrInvalidTransition{From: m.pos.Status, To: types.PositionExiting}
	}
	m.pos.Status = types.PositionExiting
	return nil
}

// Close finalizes the position on exit fill or an unrecoverable hard
// failure, setting the fields SPEC_FULL.md §4.4 says are never
// rewritten afterward.
func (m *Machine) Close(realizedPnL decimal.Decimal, reason types.ExitReason, at time.Time) error {
	if m.pos.Status != types.PositionExiting && m.pos.Status != types.PositionActive {
		return &ErrInvalidTransition{From: m.pos.Status, To: types.PositionClosed}
	}
	m.pos.Status = types.PositionClosed
	m.pos.RealizedPnL = realizedPnL
	m.pos.ExitReason = reason
	m.pos.FinalExitTime = at
	return m.pos.Validate()
}

// EmergencyClose force-transitions any non-CLOSED position straight to
// CLOSED, bypassing the normal BeginExit->Close ordering. It is the
// operator-triggered recovery path for a position stuck stale (e.g. its
// owning process crashed mid-exit): the exchange fill is not reconciled
// here, so realizedPnL must come from whatever reconciliation the
// caller already performed (zero if unknown).
func (m *Machine) EmergencyClose(realizedPnL decimal.Decimal, at time.Time) error {
	if m.pos.Status == types.PositionClosed {
		return &ErrInvalidTransition{From: m.pos.Status, To: types.PositionClosed}
	}
	m.pos.Status = types.PositionClosed
	m.pos.RealizedPnL = realizedPnL
	m.pos.ExitReason = types.ExitEmergencyClose
	m.pos.FinalExitTime = at
	return nil
}

// ExitTrigger enumerates which of the four ordered exit checks fired,
// matching the SPEC_FULL.md §4.4 evaluation order (first match wins).
type ExitTrigger int

const (
	NoExitTrigger ExitTrigger = iota
	TriggerHardStop
	TriggerTrailingStop
	TriggerStrategySell
	TriggerMaxLoss
)

// EvaluateExitTriggers checks the ordered exit conditions for an
// ACTIVE/EXITING position and returns the first one that fires, or
// NoExitTrigger if none do. strategySell reports whether the
// aggregator/strategy emitted a Sell; maxLossExceeded reports whether
// the risk manager's per-position max loss check tripped.
func (m *Machine) EvaluateExitTriggers(price decimal.Decimal, strategySell, maxLossExceeded bool) ExitTrigger {
	if !m.pos.StopLossPrice.IsZero() && price.LessThanOrEqual(m.pos.StopLossPrice) {
		return TriggerHardStop
	}
	if m.pos.TrailingArmed && price.LessThanOrEqual(m.pos.TrailingStop) {
		return TriggerTrailingStop
	}
	if strategySell {
		return TriggerStrategySell
	}
	if maxLossExceeded {
		return TriggerMaxLoss
	}
	return NoExitTrigger
}
