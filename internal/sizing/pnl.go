package sizing

import (
	"github.com/shopspring/decimal"

	"vault-operator/pkg/types"
)

// PositionPnL computes the unrealized PnL of an exchange position in quote
// currency. Quantity sign carries direction: negative quantity is short,
// so a falling mark price yields positive PnL.
func PositionPnL(p *types.ExchangePosition) decimal.Decimal {
	if p == nil || p.Quantity.IsZero() {
		return decimal.Zero
	}
	return p.MarkPrice.Sub(p.AvgEntryPrice).Mul(p.Quantity)
}

// QuoteToCRO converts a quote-currency amount to CRO using the last traded
// price, falling back to fallbackPrice when no live quote is available.
// The vault accounts in CRO, so PnL must be reported in CRO.
func QuoteToCRO(quoteAmount decimal.Decimal, lastPrice decimal.Decimal, fallbackPrice decimal.Decimal) decimal.Decimal {
	price := lastPrice
	if !price.IsPositive() {
		price = fallbackPrice
	}
	if !price.IsPositive() {
		return decimal.Zero
	}
	return quoteAmount.Div(price)
}
