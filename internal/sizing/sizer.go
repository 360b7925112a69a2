// Package sizing turns an AI decision plus pool and venue metadata into a
// venue-compliant order, or a reasoned decision to skip.
package sizing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"vault-operator/pkg/types"
)

// one hundred, for percent math.
var hundred = decimal.NewFromInt(100)

// Size builds an OrderRequest from a decision and current market state.
// A nil request with a non-empty reason means "skip, do not lock".
//
// Rounding choices: tick rounding is round-half-away-from-zero (shopspring
// Round), matching ordinary arithmetic rounding. The minimum-quantity floor
// can make the realized position larger than the percentage implied; that
// is the documented trade-off, not a bug.
func Size(d *types.AIDecision, pool *types.PoolSnapshot, spec *types.InstrumentSpec, ticker *types.Ticker) (*types.OrderRequest, string) {
	if d == nil || d.Hold() {
		return nil, "decision is HOLD"
	}
	if pool == nil {
		return nil, "pool snapshot unavailable"
	}
	if spec == nil || ticker == nil {
		return nil, "market data unavailable"
	}

	pct := decimal.NewFromFloat(d.PositionSizePercent)
	qty := pool.Total().Mul(pct).Div(hundred)

	// Tick rounding: snap to the nearest multiple of the quantity tick.
	if spec.QtyTickSize.IsPositive() {
		ticks := qty.Div(spec.QtyTickSize).Round(0)
		qty = ticks.Mul(spec.QtyTickSize)
	}

	qty = qty.Round(spec.QuantityDecimals)

	// Rounding can collapse a small but nonzero intent to zero; one tick is
	// the smallest order that still expresses it.
	if qty.IsZero() && pct.IsPositive() && spec.QtyTickSize.IsPositive() {
		qty = spec.QtyTickSize
	}

	if spec.MinQuantity.IsPositive() && qty.LessThan(spec.MinQuantity) {
		qty = spec.MinQuantity
	}

	if !qty.IsPositive() {
		return nil, fmt.Sprintf("sized quantity %s is not positive", qty)
	}

	var side types.Side
	var price decimal.Decimal
	switch d.Action {
	case types.ActionBuy:
		side = types.BUY
		price = ticker.BestAsk
	case types.ActionSell:
		side = types.SELL
		price = ticker.BestBid
	default:
		return nil, fmt.Sprintf("unsupported action %q", d.Action)
	}
	if !price.IsPositive() {
		return nil, "no quote for pricing side"
	}

	return &types.OrderRequest{
		Instrument: spec.Instrument,
		Side:       side,
		Type:       types.OrderTypeLimit,
		Price:      price.Round(spec.QuoteDecimals),
		Quantity:   qty,
	}, ""
}
