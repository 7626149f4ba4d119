package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the state-machine state of one (user, market) position.
type PositionStatus string

const (
	PositionPending  PositionStatus = "PENDING"
	PositionEntering PositionStatus = "ENTERING"
	PositionActive   PositionStatus = "ACTIVE"
	PositionExiting  PositionStatus = "EXITING"
	PositionClosed   PositionStatus = "CLOSED"
)

// Position is the per (user, market) lifecycle record described in spec §3.
type Position struct {
	UserID   string
	Market   string
	Status   PositionStatus
	Strategy string

	EntryPhase int // 1..3, staged scaling

	AvgEntryPrice   decimal.Decimal
	TotalInvested   decimal.Decimal
	Quantity        decimal.Decimal
	StopLossPrice   decimal.Decimal
	HighestPrice    decimal.Decimal
	TrailingStop    decimal.Decimal // zero value means "not armed"
	TrailingArmed   bool

	EntryTimestamps [3]time.Time // index = phase-1

	RealizedPnL   decimal.Decimal
	UnrealizedPnL decimal.Decimal

	FinalExitTime time.Time
	ExitReason    ExitReason

	// EntryZScore and EntryExecStrength snapshot the entry-time signal
	// strength so exitPosition can carry them into the closing
	// TradeStat without recomputing against a window that has since
	// moved on.
	EntryZScore       decimal.Decimal
	EntryExecStrength decimal.Decimal
}

// IsOpen reports whether the position occupies the "at most one
// non-CLOSED position per (user,market)" slot.
func (p *Position) IsOpen() bool {
	return p.Status != "" && p.Status != PositionClosed
}

// CanEnter reports whether a further entry (staged re-entry) is allowed.
func (p *Position) CanEnter() bool {
	if p.Status != PositionEntering && p.Status != PositionActive {
		return false
	}
	return p.EntryPhase < 3
}

// Validate checks the invariants from spec §3. It does not mutate p.
func (p *Position) Validate() error {
	if p.Quantity.IsNegative() {
		return errInvariant("quantity < 0")
	}
	if p.Status == PositionActive || p.Status == PositionExiting {
		if !p.HighestPrice.IsZero() && p.HighestPrice.LessThan(p.AvgEntryPrice) {
			return errInvariant("highest < avgEntry")
		}
		if !p.StopLossPrice.IsZero() && !p.StopLossPrice.LessThan(p.AvgEntryPrice) {
			return errInvariant("stopLoss >= avgEntry for long")
		}
		if p.TrailingArmed && p.TrailingStop.LessThan(p.StopLossPrice) {
			return errInvariant("trailingStop < stopLoss while armed")
		}
	}
	return nil
}

type invariantError string

func (e invariantError) Error() string { return "position invariant violated: " + string(e) }

func errInvariant(msg string) error { return invariantError(msg) }
