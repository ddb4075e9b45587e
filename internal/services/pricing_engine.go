package services

import (
	"math"

	domain "github.com/forkline/api/internal/domain"
)

// PricingEngine computes order fee breakdowns. It is pure and total: no
// clock, no I/O, and every numeric degeneracy (negative, NaN, infinite
// inputs) clamps to zero instead of erroring. Identical commands always
// yield identical breakdowns, so callers may recompute on every cart
// mutation and rely on the result as the single source of truth for what the
// customer is charged.
type PricingEngine struct{}

// NewPricingEngine constructs the engine.
func NewPricingEngine() *PricingEngine {
	return &PricingEngine{}
}

// Quote produces the fee breakdown for the command.
//
// Rounding happens per line item, never on the aggregate, so that
// weight-based quantities (0.25 lb at $22.99/lb) cannot accumulate
// fractional-cent drift across the cart.
func (e *PricingEngine) Quote(cmd PriceOrderCommand) FeeBreakdown {
	fees := cmd.Fees.WithDefaults()

	var subtotal int64
	for _, item := range cmd.Items {
		subtotal += LineSubtotal(item)
	}

	discount := clampCents(cmd.PromoDiscount)
	if discount > subtotal {
		discount = subtotal
	}
	discounted := subtotal - discount

	tax := roundCents(float64(discounted) * fees.TaxRate)

	tip := e.tipAmount(cmd.Tip, discounted)
	if cmd.Fulfillment == domain.FulfillmentDelivery && tip > fees.CourierTipCapCents {
		// Excess over the courier cap is silently dropped from the charge.
		tip = fees.CourierTipCapCents
	}

	platformFee := roundCents(float64(discounted) * fees.PlatformFeeRate)

	var deliveryFee int64
	if cmd.Fulfillment == domain.FulfillmentDelivery {
		deliveryFee = clampCents(cmd.DeliveryFeeCents)
	}

	total := discounted + tax + tip + platformFee + deliveryFee

	processorFee := roundCents(float64(total)*fees.ProcessorPercent + float64(fees.ProcessorFixedCents))

	var courierTip int64
	if cmd.Fulfillment == domain.FulfillmentDelivery {
		courierTip = tip
	}
	netPayout := total - processorFee - platformFee - deliveryFee - courierTip
	if netPayout < 0 {
		netPayout = 0
	}

	return FeeBreakdown{
		Subtotal:             discounted,
		Discount:             discount,
		Tax:                  tax,
		PlatformFee:          platformFee,
		DeliveryFee:          deliveryFee,
		Tip:                  tip,
		Total:                total,
		ProcessorFeeEstimate: processorFee,
		NetPayoutEstimate:    netPayout,
	}
}

func (e *PricingEngine) tipAmount(tip TipSelection, discountedSubtotal int64) int64 {
	if tip.CustomCents > 0 {
		return tip.CustomCents
	}
	pct := tip.Percent
	if math.IsNaN(pct) || pct < 0 {
		pct = 0
	}
	return roundCents(float64(discountedSubtotal) * pct / 100)
}

// LineSubtotal computes round((unit_price + Σ modifier_prices) × quantity)
// for one line, clamping degenerate prices and quantities to zero.
func LineSubtotal(item CartItem) int64 {
	unit := clampCents(item.UnitPrice)
	for _, m := range item.Modifiers {
		unit += clampCents(m.Price)
	}
	qty := item.Quantity
	if math.IsNaN(qty) || math.IsInf(qty, 0) || qty < 0 {
		qty = 0
	}
	return roundCents(float64(unit) * qty)
}

func clampCents(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

func roundCents(v float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if math.IsInf(v, 1) {
		return math.MaxInt64
	}
	return int64(math.Round(v))
}

var _ Pricer = (*PricingEngine)(nil)
