// Package pricetick rounds KRW-quoted prices down to Upbit's tick-size
// ladder, a ten-band table keyed by price level (spec §6).
package pricetick

import "github.com/shopspring/decimal"

type band struct {
	floor decimal.Decimal
	tick  decimal.Decimal
}

var bands = buildBands()

func buildBands() []band {
	f := func(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }
	// Ordered from highest floor to lowest; Round walks top-down.
	return []band{
		{floor: f(2_000_000), tick: f(1000)},
		{floor: f(1_000_000), tick: f(500)},
		{floor: f(500_000), tick: f(100)},
		{floor: f(100_000), tick: f(50)},
		{floor: f(10_000), tick: f(10)},
		{floor: f(1_000), tick: f(5)},
		{floor: f(100), tick: f(1)},
		{floor: f(10), tick: f(0.1)},
		{floor: f(1), tick: f(0.01)},
		{floor: f(0), tick: f(0.001)},
	}
}

// TickFor returns the tick size for the band a price falls into.
func TickFor(price decimal.Decimal) decimal.Decimal {
	for _, b := range bands {
		if price.GreaterThanOrEqual(b.floor) {
			return b.tick
		}
	}
	return bands[len(bands)-1].tick
}

// Round rounds price down to the nearest valid tick for its band, the
// rounding every limit order must apply before submission.
func Round(price decimal.Decimal) decimal.Decimal {
	if price.IsNegative() {
		return decimal.Zero
	}
	tick := TickFor(price)
	return price.Div(tick).Floor().Mul(tick)
}

// Valid reports whether price already sits on a tick boundary for its
// band, i.e. price / tick is an integer (spec §8 testable property).
func Valid(price decimal.Decimal) bool {
	tick := TickFor(price)
	return price.Div(tick).Equal(price.Div(tick).Floor())
}
