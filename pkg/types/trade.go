package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide distinguishes a buy fill from a sell fill.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// TradeRecord is an append-only row of one execution.
type TradeRecord struct {
	ID           string
	UserID       string
	Market       string
	Timestamp    time.Time
	Side         OrderSide
	Price        decimal.Decimal
	Volume       decimal.Decimal
	Fee          decimal.Decimal
	KRWBalance   decimal.Decimal
	CoinBalance  decimal.Decimal
	TotalAsset   decimal.Decimal
	ProfitRate   decimal.Decimal
	Strategy     string
	ExitReason   ExitReason // only set on sells
}

// TradeStat is the per-trade outcome row persisted at exit.
type TradeStat struct {
	Market              string
	UserID              string
	EntryTime           time.Time
	ExitTime            time.Time
	EntryPrice          decimal.Decimal
	ExitPrice           decimal.Decimal
	ProfitRate          decimal.Decimal
	EntryZScore         decimal.Decimal
	EntryExecStrength   decimal.Decimal
	EntryHour           int
	Success             bool
	ExitReason          ExitReason
}

// HourParam is the per-hour tuning row for parameterized strategies.
type HourParam struct {
	Hour                 int // 0..23, unique
	MinExecutionStrength decimal.Decimal
	MinZScore            decimal.Decimal
	VolumeMultiplier     decimal.Decimal
	SampleCount          int
	WinRate              decimal.Decimal
	AvgProfitRate        decimal.Decimal
	Enabled              bool
}

// DefaultHourParam is what strategies fall back to on a missing or
// disabled row (spec §4.8 "default" band).
func DefaultHourParam(hour int) HourParam {
	return HourParam{
		Hour:                 hour,
		MinExecutionStrength: decimal.NewFromFloat(65.0),
		MinZScore:            decimal.NewFromFloat(1.5),
		VolumeMultiplier:     decimal.NewFromFloat(4.0),
		Enabled:              true,
	}
}
