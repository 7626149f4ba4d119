package types

import "github.com/shopspring/decimal"

// SignalAction is the tagged value a strategy or the aggregator emits.
type SignalAction string

const (
	Buy  SignalAction = "BUY"
	Hold SignalAction = "HOLD"
	Sell SignalAction = "SELL"
)

// ExitReason enumerates why a strategy emitted a Sell.
type ExitReason string

const (
	ExitStopLossFixed  ExitReason = "STOP_LOSS_FIXED"
	ExitStopLossATR    ExitReason = "STOP_LOSS_ATR"
	ExitTrailingStop   ExitReason = "TRAILING_STOP"
	ExitTakeProfit     ExitReason = "TAKE_PROFIT"
	ExitSignalInvalid  ExitReason = "SIGNAL_INVALID"
	ExitFakeRebound    ExitReason = "FAKE_REBOUND"
	ExitVolumeDrop     ExitReason = "VOLUME_DROP"
	ExitOverheated     ExitReason = "OVERHEATED"
	ExitTimeout        ExitReason = "TIMEOUT"
	ExitEmergencyClose ExitReason = "EMERGENCY_CLOSE"
)

// Signal is the outcome of one strategy evaluation over a candle window.
type Signal struct {
	Action        SignalAction
	TargetPrice   decimal.Decimal
	StopLossPrice decimal.Decimal
	EntryPrice    decimal.Decimal
	ExitReason    ExitReason // only meaningful when Action == Sell
}

// HasTargetPrice reports whether TargetPrice was set by the strategy.
func (s Signal) HasTargetPrice() bool { return !s.TargetPrice.IsZero() }

// HasStopLossPrice reports whether StopLossPrice was set by the strategy.
func (s Signal) HasStopLossPrice() bool { return !s.StopLossPrice.IsZero() }

// HoldSignal is the Hold signal strategies return on insufficient
// window length or when no condition fires.
func HoldSignal() Signal { return Signal{Action: Hold} }
