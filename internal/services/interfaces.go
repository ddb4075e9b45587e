package services

import (
	"context"
	"io"

	domain "github.com/forkline/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartPromotion      = domain.CartPromotion
	Modifier           = domain.Modifier
	TipSelection       = domain.TipSelection
	Address            = domain.Address
	DeliveryQuote      = domain.DeliveryQuote
	DeliveryZone       = domain.DeliveryZone
	FeeConfig          = domain.FeeConfig
	FeeBreakdown       = domain.FeeBreakdown
	Promotion          = domain.Promotion
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	FulfillmentType    = domain.FulfillmentType
	CustomerContact    = domain.CustomerContact
	StatusHistoryEntry = domain.StatusHistoryEntry
	MenuItem           = domain.MenuItem
	Tenant             = domain.Tenant
)

// Pricer produces a complete fee breakdown for an order-in-progress. The
// implementation is pure: identical commands yield identical breakdowns.
type Pricer interface {
	Quote(cmd PriceOrderCommand) FeeBreakdown
}

// PriceOrderCommand carries everything the pricing engine needs. The
// promotion discount arrives already resolved to cents; the delivery fee is
// the courier's authoritative quote and is ignored for pickup.
type PriceOrderCommand struct {
	Items            []CartItem
	Fulfillment      FulfillmentType
	Tip              TipSelection
	PromoDiscount    int64
	Fees             FeeConfig
	DeliveryFeeCents int64
}

// CartService owns all cart mutations. Every mutation reprices the cart
// through the engine and stores the refreshed estimate.
type CartService interface {
	GetCart(ctx context.Context, tenantID, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, tenantID, userID, itemID string, quantity float64) (Cart, error)
	RemoveItem(ctx context.Context, tenantID, userID, itemID string) (Cart, error)
	ClearCart(ctx context.Context, tenantID, userID string) error
	SetFulfillment(ctx context.Context, tenantID, userID string, fulfillment FulfillmentType) (Cart, error)
	SetTip(ctx context.Context, tenantID, userID string, tip TipSelection) (Cart, error)
	ApplyPromotion(ctx context.Context, tenantID, userID, code string) (Cart, error)
	RemovePromotion(ctx context.Context, tenantID, userID string) (Cart, error)
	// SetDeliveryAddress stores the address and fetches a fresh courier
	// quote; any previously held quote is discarded.
	SetDeliveryAddress(ctx context.Context, tenantID, userID string, address Address) (Cart, error)
}

// AddCartItemCommand describes an add-to-cart request. Modifiers reference
// option IDs on the menu item's modifier groups.
type AddCartItemCommand struct {
	TenantID  string
	UserID    string
	SKU       string
	Quantity  float64
	Modifiers []string
	Note      string
}

// PromotionService resolves codes for carts and backs the admin CRUD surface.
type PromotionService interface {
	// Resolve validates the code against its active window, enabled flag, and
	// minimum subtotal, returning the promotion and its discount in cents for
	// the given subtotal.
	Resolve(ctx context.Context, tenantID, code string, subtotalCents int64) (Promotion, int64, error)
	ListPromotions(ctx context.Context, tenantID string) ([]Promotion, error)
	CreatePromotion(ctx context.Context, promotion Promotion) (Promotion, error)
	UpdatePromotion(ctx context.Context, promotion Promotion) (Promotion, error)
	DeletePromotion(ctx context.Context, tenantID, promotionID string) error
}

// DeliveryService quotes and dispatches courier deliveries.
type DeliveryService interface {
	// QuoteDelivery returns a fee quote for delivering to the address. Quotes
	// are cached per normalised address fingerprint within a short TTL.
	QuoteDelivery(ctx context.Context, tenantID string, address Address) (DeliveryQuote, error)
	// Dispatch requests a courier for the order and returns the provider's
	// delivery reference.
	Dispatch(ctx context.Context, order Order) (string, error)
}

// OrderService owns the post-placement order lifecycle.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, tenantID, orderID string) (Order, error)
	List(ctx context.Context, tenantID, userID string, pager Pagination) (domain.CursorPage[Order], error)
	// ApplyStatusUpdate normalises the raw status, validates the transition,
	// and persists and publishes the change.
	ApplyStatusUpdate(ctx context.Context, cmd StatusUpdateCommand) (Order, error)
	// Cancel is the customer-initiated path, allowed only within the
	// post-placement cancellation window.
	Cancel(ctx context.Context, tenantID, orderID, userID, reason string) (Order, error)
}

// CreateOrderCommand is the order-creation payload assembled by checkout.
type CreateOrderCommand struct {
	TenantID        string
	UserID          string
	Fulfillment     FulfillmentType
	Items           []OrderItem
	Contact         CustomerContact
	DeliveryAddress *Address
	DeliveryQuoteID string
	Breakdown       FeeBreakdown
	Currency        string
	PaymentIntentID string
	PromotionID     string
	PromotionCode   string
}

// StatusUpdateCommand carries one inbound status event from the kitchen,
// POS, or courier feed.
type StatusUpdateCommand struct {
	TenantID  string
	OrderID   string
	RawStatus string
	Source    string
	Note      string
}

// CheckoutService turns a priced cart into a placed order.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
}

// PlaceOrderCommand carries the checkout request.
type PlaceOrderCommand struct {
	TenantID       string
	UserID         string
	Contact        CustomerContact
	PaymentMethod  string
	IdempotencyKey string
}

// CatalogService owns the tenant menu and its admin surface.
type CatalogService interface {
	ListMenu(ctx context.Context, tenantID string, includeUnavailable bool) ([]MenuItem, error)
	GetItem(ctx context.Context, tenantID, sku string) (MenuItem, error)
	UpsertItem(ctx context.Context, item MenuItem) (MenuItem, error)
	DeleteItem(ctx context.Context, tenantID, sku string) error
	// AttachImage stores the uploaded image and records its path on the item.
	AttachImage(ctx context.Context, tenantID, sku string, upload ImageUpload) (MenuItem, error)
}

// ImageUpload describes an inbound menu image stream.
type ImageUpload struct {
	ContentType string
	Size        int64
	Body        io.Reader
}

// EventPublisher fans order lifecycle events out to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload map[string]any) error
}
