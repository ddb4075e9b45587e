package services

import (
	"math"
	"reflect"
	"testing"

	domain "github.com/forkline/api/internal/domain"
)

func TestLineSubtotalPerLineRounding(t *testing.T) {
	// 0.25 lb at $22.99/lb rounds on the line itself: round(2299 × 0.25) = 575.
	line := CartItem{SKU: "BEEF-RIB", UnitPrice: 2299, Unit: domain.UnitPound, Quantity: 0.25}
	if got := LineSubtotal(line); got != 575 {
		t.Fatalf("LineSubtotal = %d, want 575", got)
	}

	engine := NewPricingEngine()
	solo := engine.Quote(PriceOrderCommand{Items: []CartItem{line}, Fulfillment: domain.FulfillmentPickup})
	crowded := engine.Quote(PriceOrderCommand{
		Items: []CartItem{
			line,
			{SKU: "SODA", UnitPrice: 199, Quantity: 3},
			{SKU: "CHIPS", UnitPrice: 349, Quantity: 1},
		},
		Fulfillment: domain.FulfillmentPickup,
	})
	if diff := crowded.Subtotal - solo.Subtotal; diff != 199*3+349 {
		t.Fatalf("line rounding must be independent of other lines: extra lines contributed %d", diff)
	}
}

func TestLineSubtotalIncludesModifiers(t *testing.T) {
	line := CartItem{
		SKU:       "BUR-001",
		UnitPrice: 1299,
		Quantity:  2,
		Modifiers: []Modifier{{ID: "mod_cheese", Price: 150}, {ID: "mod_bacon", Price: 250}},
	}
	if got := LineSubtotal(line); got != (1299+150+250)*2 {
		t.Fatalf("LineSubtotal = %d, want %d", got, (1299+150+250)*2)
	}
}

func TestQuoteFullBreakdown(t *testing.T) {
	engine := NewPricingEngine()
	cmd := PriceOrderCommand{
		Items: []CartItem{
			{SKU: "BUR-001", UnitPrice: 1299, Quantity: 2, Modifiers: []Modifier{{ID: "mod_cheese", Price: 150}}},
			{SKU: "BEEF-RIB", UnitPrice: 2299, Unit: domain.UnitPound, Quantity: 0.25},
		},
		Fulfillment:      domain.FulfillmentDelivery,
		Tip:              TipSelection{Percent: 10},
		PromoDiscount:    500,
		Fees:             FeeConfig{TaxRate: 0.08},
		DeliveryFeeCents: 599,
	}

	got := engine.Quote(cmd)
	want := FeeBreakdown{
		Subtotal:             2973,
		Discount:             500,
		Tax:                  238,
		PlatformFee:          30,
		DeliveryFee:          599,
		Tip:                  297,
		Total:                4137,
		ProcessorFeeEstimate: 150,
		NetPayoutEstimate:    3061,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Quote = %+v, want %+v", got, want)
	}
	if got.Total != got.Subtotal+got.Tax+got.PlatformFee+got.DeliveryFee+got.Tip {
		t.Fatalf("total invariant violated: %+v", got)
	}
}

func TestQuoteDiscountNeverExceedsSubtotal(t *testing.T) {
	engine := NewPricingEngine()
	got := engine.Quote(PriceOrderCommand{
		Items:         []CartItem{{SKU: "X", UnitPrice: 1000, Quantity: 1}},
		Fulfillment:   domain.FulfillmentPickup,
		PromoDiscount: 1500,
	})
	if got.Discount != 1000 {
		t.Fatalf("discount = %d, want clamp to subtotal 1000", got.Discount)
	}
	if got.Subtotal != 0 {
		t.Fatalf("discounted subtotal = %d, want 0", got.Subtotal)
	}
}

func TestQuoteTipCapAppliesToDeliveryOnly(t *testing.T) {
	engine := NewPricingEngine()
	base := PriceOrderCommand{
		Items: []CartItem{{SKU: "CATERING", UnitPrice: 100000, Quantity: 1}},
		Tip:   TipSelection{Percent: 25},
	}

	delivery := base
	delivery.Fulfillment = domain.FulfillmentDelivery
	if got := engine.Quote(delivery); got.Tip != domain.DefaultCourierTipCapCents {
		t.Fatalf("delivery tip = %d, want capped %d", got.Tip, domain.DefaultCourierTipCapCents)
	}

	pickup := base
	pickup.Fulfillment = domain.FulfillmentPickup
	if got := engine.Quote(pickup); got.Tip != 25000 {
		t.Fatalf("pickup tip = %d, want uncapped 25000", got.Tip)
	}
}

func TestQuoteCustomTipWinsOverPercent(t *testing.T) {
	engine := NewPricingEngine()
	got := engine.Quote(PriceOrderCommand{
		Items:       []CartItem{{SKU: "X", UnitPrice: 2000, Quantity: 1}},
		Fulfillment: domain.FulfillmentPickup,
		Tip:         TipSelection{Percent: 20, CustomCents: 137},
	})
	if got.Tip != 137 {
		t.Fatalf("tip = %d, want custom 137", got.Tip)
	}
}

func TestQuotePlatformFeeDefaultsToOnePercent(t *testing.T) {
	engine := NewPricingEngine()
	got := engine.Quote(PriceOrderCommand{
		Items:       []CartItem{{SKU: "X", UnitPrice: 5000, Quantity: 1}},
		Fulfillment: domain.FulfillmentPickup,
	})
	if got.PlatformFee != 50 {
		t.Fatalf("platform fee = %d, want 1%% default = 50", got.PlatformFee)
	}

	configured := engine.Quote(PriceOrderCommand{
		Items:       []CartItem{{SKU: "X", UnitPrice: 5000, Quantity: 1}},
		Fulfillment: domain.FulfillmentPickup,
		Fees:        FeeConfig{PlatformFeeRate: 0.05},
	})
	if configured.PlatformFee != 250 {
		t.Fatalf("platform fee = %d, want configured 5%% = 250", configured.PlatformFee)
	}
}

func TestQuoteDeliveryFeeIgnoredForPickup(t *testing.T) {
	engine := NewPricingEngine()
	got := engine.Quote(PriceOrderCommand{
		Items:            []CartItem{{SKU: "X", UnitPrice: 1000, Quantity: 1}},
		Fulfillment:      domain.FulfillmentPickup,
		DeliveryFeeCents: 599,
	})
	if got.DeliveryFee != 0 {
		t.Fatalf("delivery fee = %d, want 0 for pickup", got.DeliveryFee)
	}
}

func TestQuoteNetPayoutFloorsAtZero(t *testing.T) {
	engine := NewPricingEngine()
	got := engine.Quote(PriceOrderCommand{
		Items:            []CartItem{{SKU: "X", UnitPrice: 1000, Quantity: 1}},
		Fulfillment:      domain.FulfillmentDelivery,
		Tip:              TipSelection{CustomCents: 500},
		PromoDiscount:    1000,
		DeliveryFeeCents: 300,
	})
	if got.Total != 800 {
		t.Fatalf("total = %d, want 800", got.Total)
	}
	if got.NetPayoutEstimate != 0 {
		t.Fatalf("net payout = %d, want floor at 0", got.NetPayoutEstimate)
	}
}

func TestQuoteIsDeterministic(t *testing.T) {
	engine := NewPricingEngine()
	cmd := PriceOrderCommand{
		Items: []CartItem{
			{SKU: "A", UnitPrice: 1299, Quantity: 2},
			{SKU: "B", UnitPrice: 2299, Unit: domain.UnitPound, Quantity: 0.25},
		},
		Fulfillment:      domain.FulfillmentDelivery,
		Tip:              TipSelection{Percent: 18},
		PromoDiscount:    250,
		Fees:             FeeConfig{TaxRate: 0.0875},
		DeliveryFeeCents: 499,
	}
	first := engine.Quote(cmd)
	second := engine.Quote(cmd)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("identical commands must yield identical breakdowns: %+v vs %+v", first, second)
	}
}

func TestQuoteClampsDegenerateInputs(t *testing.T) {
	engine := NewPricingEngine()
	got := engine.Quote(PriceOrderCommand{
		Items: []CartItem{
			{SKU: "NEG", UnitPrice: -500, Quantity: 2},
			{SKU: "NAN", UnitPrice: 1000, Quantity: math.NaN()},
			{SKU: "OK", UnitPrice: 700, Quantity: 1},
		},
		Fulfillment:   domain.FulfillmentPickup,
		Tip:           TipSelection{Percent: math.NaN()},
		PromoDiscount: -200,
		Fees:          FeeConfig{TaxRate: math.NaN()},
	})
	if got.Subtotal != 700 {
		t.Fatalf("subtotal = %d, want 700 after clamping degenerate lines", got.Subtotal)
	}
	if got.Discount != 0 || got.Tax != 0 || got.Tip != 0 {
		t.Fatalf("degenerate inputs must clamp to zero: %+v", got)
	}
}
