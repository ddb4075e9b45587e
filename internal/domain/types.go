package domain

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Modifier is a priced option attached to a cart or order line.
type Modifier struct {
	ID    string
	Name  string
	Price int64
}

// CartItem stores a single menu-item entry within a cart. Quantity is
// fractional only for weight and volume units.
type CartItem struct {
	ID        string
	SKU       string
	Name      string
	UnitPrice int64
	Unit      PriceUnit
	Quantity  float64
	Modifiers []Modifier
	Note      string
	AddedAt   time.Time
	UpdatedAt time.Time
}

// LineKey derives the deduplication key for the line: SKU plus the sorted
// modifier IDs plus the trimmed note. Two lines with equal keys must merge
// quantities rather than coexist.
func (i CartItem) LineKey() string {
	ids := make([]string, 0, len(i.Modifiers))
	for _, m := range i.Modifiers {
		ids = append(ids, strings.TrimSpace(m.ID))
	}
	sort.Strings(ids)
	parts := append([]string{strings.TrimSpace(i.SKU)}, ids...)
	parts = append(parts, strings.TrimSpace(i.Note))
	return strings.Join(parts, "|")
}

// TipSelection carries the customer's tip choice: a percentage of the
// discounted subtotal or a fixed custom amount in cents. A positive custom
// amount always wins over the percentage.
type TipSelection struct {
	Percent     float64
	CustomCents int64
}

// CartPromotion captures the applied promotion snapshot on a cart.
type CartPromotion struct {
	PromotionID   string
	Code          string
	DiscountCents int64
}

// Address is a delivery destination or restaurant location.
type Address struct {
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Lat        float64
	Lng        float64
}

// SingleLine renders the address as one comma-joined line.
func (a Address) SingleLine() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.Region, a.PostalCode} {
		if v := strings.TrimSpace(p); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ", ")
}

// DeliveryQuote is a courier fee quote. FeeCents is authoritative and never
// recomputed locally.
type DeliveryQuote struct {
	ID         string
	Provider   string
	FeeCents   int64
	Currency   string
	DistanceKm float64
	ExpiresAt  time.Time
}

// Cart aggregates the mutable ordering state for a user within a tenant.
type Cart struct {
	ID              string
	TenantID        string
	UserID          string
	Currency        string
	Fulfillment     FulfillmentType
	Items           []CartItem
	Tip             TipSelection
	Promotion       *CartPromotion
	DeliveryAddress *Address
	DeliveryQuote   *DeliveryQuote
	Estimate        *FeeBreakdown
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DeliveryZone maps a straight-line distance threshold to a flat delivery
// fee. Zones are stored in ascending threshold order.
type DeliveryZone struct {
	MaxDistanceKm float64
	FeeCents      int64
}

// FeeConfig holds the tenant-scoped rate schedule consumed read-only by the
// pricing engine.
type FeeConfig struct {
	TaxRate             float64
	PlatformFeeRate     float64
	ProcessorPercent    float64
	ProcessorFixedCents int64
	CourierTipCapCents  int64
	DeliveryZones       []DeliveryZone
}

const (
	// DefaultPlatformFeeRate applies when a tenant's configured rate is zero
	// or absent.
	DefaultPlatformFeeRate = 0.01
	// DefaultProcessorPercent is the card processor's percentage component.
	DefaultProcessorPercent = 0.029
	// DefaultProcessorFixedCents is the card processor's fixed component.
	DefaultProcessorFixedCents = 30
	// DefaultCourierTipCapCents caps courier tips on delivery orders.
	DefaultCourierTipCapCents = 2000
)

// WithDefaults fills absent fee-model fields with platform defaults.
func (c FeeConfig) WithDefaults() FeeConfig {
	if c.PlatformFeeRate <= 0 || math.IsNaN(c.PlatformFeeRate) {
		c.PlatformFeeRate = DefaultPlatformFeeRate
	}
	if c.ProcessorPercent <= 0 || math.IsNaN(c.ProcessorPercent) {
		c.ProcessorPercent = DefaultProcessorPercent
	}
	if c.ProcessorFixedCents <= 0 {
		c.ProcessorFixedCents = DefaultProcessorFixedCents
	}
	if c.CourierTipCapCents <= 0 {
		c.CourierTipCapCents = DefaultCourierTipCapCents
	}
	if c.TaxRate < 0 || math.IsNaN(c.TaxRate) {
		c.TaxRate = 0
	}
	return c
}

// PromotionType distinguishes percentage discounts from fixed amounts.
type PromotionType string

const (
	// PromotionPercent discounts a percentage of the subtotal.
	PromotionPercent PromotionType = "percent"
	// PromotionFixed discounts a fixed amount in cents.
	PromotionFixed PromotionType = "fixed"
)

// Promotion is a tenant-scoped discount code.
type Promotion struct {
	ID               string
	TenantID         string
	Code             string
	Type             PromotionType
	Value            int64
	MaxDiscountCents int64
	MinSubtotalCents int64
	StartsAt         time.Time
	EndsAt           time.Time
	Enabled          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ResolveDiscount computes the discount the promotion yields against a
// subtotal, clamped to the optional cap and to the subtotal itself. The
// result is never negative and never exceeds either bound.
func (p Promotion) ResolveDiscount(subtotalCents int64) int64 {
	if subtotalCents <= 0 {
		return 0
	}
	var discount int64
	switch p.Type {
	case PromotionPercent:
		discount = int64(math.Round(float64(subtotalCents) * float64(p.Value) / 100))
	case PromotionFixed:
		discount = p.Value
	}
	if discount < 0 {
		discount = 0
	}
	if p.MaxDiscountCents > 0 && discount > p.MaxDiscountCents {
		discount = p.MaxDiscountCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	return discount
}

// FeeBreakdown is the pricing engine's output. Subtotal is already net of
// Discount. All amounts are integer cents.
type FeeBreakdown struct {
	Subtotal             int64
	Discount             int64
	Tax                  int64
	PlatformFee          int64
	DeliveryFee          int64
	Tip                  int64
	Total                int64
	ProcessorFeeEstimate int64
	NetPayoutEstimate    int64
}

// CustomerContact identifies the person placing the order.
type CustomerContact struct {
	Name  string
	Phone string
	Email string
}

// OrderItem is a priced line captured at order placement.
type OrderItem struct {
	SKU             string
	Name            string
	UnitPrice       int64
	Quantity        float64
	DisplayQuantity string
	Unit            PriceUnit
	Modifiers       []Modifier
	Note            string
	LineTotal       int64
}

// StatusHistoryEntry records one applied status change.
type StatusHistoryEntry struct {
	Status OrderStatus
	Source string
	Note   string
	At     time.Time
}

// Order is the immutable record of a placed order; only its status, history,
// and per-status timestamps change after creation.
type Order struct {
	ID              string
	TenantID        string
	Number          string
	UserID          string
	Fulfillment     FulfillmentType
	Status          OrderStatus
	Items           []OrderItem
	Contact         CustomerContact
	DeliveryAddress *Address
	DeliveryQuoteID string
	Breakdown       FeeBreakdown
	Currency        string
	PaymentIntentID string
	PromotionID     string
	PromotionCode   string
	History         []StatusHistoryEntry
	StatusTimes     map[OrderStatus]time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// ModifierGroup bundles selectable options on a menu item.
type ModifierGroup struct {
	ID      string
	Name    string
	MinPick int
	MaxPick int
	Options []Modifier
}

// MenuItem is a tenant's sellable catalog entry.
type MenuItem struct {
	SKU            string
	TenantID       string
	Name           string
	Description    string
	PriceCents     int64
	Unit           PriceUnit
	Category       string
	ModifierGroups []ModifierGroup
	Available      bool
	ImagePath      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Tenant is a restaurant on the platform.
type Tenant struct {
	ID              string
	Name            string
	Currency        string
	StripeAccountID string
	Location        Address
	Fees            FeeConfig
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
