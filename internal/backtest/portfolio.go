package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-quant/upbit-engine/pkg/utils"
)

// coinStepSize is Upbit's standard volume tick size (8 decimal
// places) applied to simulated fills so replay quantities round the
// way a real market order would.
var coinStepSize = decimal.New(1, -8)

// portfolio tracks the mutable per-market balance state a single
// replay walks forward bar by bar: KRW cash, coin held, the last buy
// price, and the highest price observed since that buy (SPEC_FULL.md
// §4.7). It is not safe for concurrent use; each market replay owns
// its own instance.
type portfolio struct {
	krwBalance      decimal.Decimal
	coinBalance     decimal.Decimal
	lastBuyPrice    decimal.Decimal
	highestSinceBuy decimal.Decimal

	maxTotalAsset decimal.Decimal
	minTotalAsset decimal.Decimal
}

func newPortfolio(initialKRW decimal.Decimal) *portfolio {
	return &portfolio{
		krwBalance:    initialKRW,
		maxTotalAsset: initialKRW,
		minTotalAsset: initialKRW,
	}
}

func (p *portfolio) holding() bool { return p.coinBalance.IsPositive() }

func (p *portfolio) totalAsset(price decimal.Decimal) decimal.Decimal {
	return p.krwBalance.Add(p.coinBalance.Mul(price))
}

func (p *portfolio) trackExtremes(price decimal.Decimal) {
	asset := p.totalAsset(price)
	if asset.GreaterThan(p.maxTotalAsset) {
		p.maxTotalAsset = asset
	}
	if asset.LessThan(p.minTotalAsset) {
		p.minTotalAsset = asset
	}
}

// buy spends buyFraction of available KRW at price, net of feeRate,
// and returns the fill details.
func (p *portfolio) buy(price, feeRate, buyFraction decimal.Decimal, at time.Time) (qty, fee decimal.Decimal) {
	spend := p.krwBalance.Mul(buyFraction)
	fee = spend.Mul(feeRate)
	notional := spend.Sub(fee)
	qty = utils.RoundToStepSize(notional.Div(price), coinStepSize)

	p.krwBalance = p.krwBalance.Sub(spend)
	p.coinBalance = p.coinBalance.Add(qty)
	p.lastBuyPrice = price
	p.highestSinceBuy = price
	return qty, fee
}

// sell liquidates the full coin balance at price, net of feeRate, and
// returns the realized proceeds and fee.
func (p *portfolio) sell(price, feeRate decimal.Decimal) (proceeds, fee decimal.Decimal) {
	gross := p.coinBalance.Mul(price)
	fee = gross.Mul(feeRate)
	proceeds = gross.Sub(fee)

	p.krwBalance = p.krwBalance.Add(proceeds)
	p.coinBalance = decimal.Zero
	p.lastBuyPrice = decimal.Zero
	p.highestSinceBuy = decimal.Zero
	return proceeds, fee
}
