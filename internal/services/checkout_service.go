package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/payments"
	"github.com/forkline/api/internal/repositories"
)

var (
	// ErrCheckoutInvalidInput signals bad or incomplete checkout data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutCartEmpty indicates there is nothing to place.
	ErrCheckoutCartEmpty = errors.New("checkout: cart is empty")
	// ErrCheckoutStaleQuote indicates the held delivery quote no longer
	// matches the computed totals and the caller must re-quote.
	ErrCheckoutStaleQuote = errors.New("checkout: delivery quote is stale")
	// ErrCheckoutPaymentFailed indicates payment authorisation failed and no
	// order was created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Carts    repositories.CartRepository
	Tenants  repositories.TenantRepository
	Orders   OrderService
	Pricer   Pricer
	Payments *payments.Manager
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts   repositories.CartRepository
	tenants repositories.TenantRepository
	orders  OrderService
	pricer  Pricer
	psp     *payments.Manager
	clock   func() time.Time
	logger  func(context.Context, string, map[string]any)
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Tenants == nil {
		return nil, errors.New("checkout service: tenant repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Pricer == nil {
		return nil, errors.New("checkout service: pricer is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payments manager is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:   deps.Carts,
		tenants: deps.Tenants,
		orders:  deps.Orders,
		pricer:  deps.Pricer,
		psp:     deps.Payments,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// PlaceOrder validates the cart, prices it one final time as the
// authoritative breakdown, authorises payment, creates the order, and clears
// the cart. The payment's application fee is the breakdown's platform fee,
// bit-identical.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	cart, err := s.carts.GetCart(ctx, strings.TrimSpace(cmd.TenantID), strings.TrimSpace(cmd.UserID))
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, ErrCheckoutCartEmpty
		}
		return Order{}, err
	}

	if err := validateCheckoutCart(cart, cmd); err != nil {
		return Order{}, err
	}

	tenant, err := s.tenants.GetTenant(ctx, cart.TenantID)
	if err != nil {
		return Order{}, err
	}

	var deliveryFee int64
	if cart.Fulfillment == domain.FulfillmentDelivery {
		if err := s.validateQuote(cart); err != nil {
			return Order{}, err
		}
		deliveryFee = cart.DeliveryQuote.FeeCents
	}

	var discount int64
	if cart.Promotion != nil {
		discount = cart.Promotion.DiscountCents
	}

	breakdown := s.pricer.Quote(PriceOrderCommand{
		Items:            cart.Items,
		Fulfillment:      cart.Fulfillment,
		Tip:              cart.Tip,
		PromoDiscount:    discount,
		Fees:             tenant.Fees,
		DeliveryFeeCents: deliveryFee,
	})

	// The customer approved the totals in the cart estimate; a disagreement
	// here means configuration or quote drift since the last reprice.
	if cart.Estimate != nil && cart.Estimate.Total != breakdown.Total {
		return Order{}, fmt.Errorf("%w: displayed total %d no longer matches computed total %d",
			ErrCheckoutStaleQuote, cart.Estimate.Total, breakdown.Total)
	}

	intent, err := s.authorizePayment(ctx, cart, tenant, breakdown, cmd)
	if err != nil {
		return Order{}, err
	}

	orderCmd := CreateOrderCommand{
		TenantID:        cart.TenantID,
		UserID:          cart.UserID,
		Fulfillment:     cart.Fulfillment,
		Items:           buildOrderItems(cart.Items),
		Contact:         trimContact(cmd.Contact),
		DeliveryAddress: cloneAddress(cart.DeliveryAddress),
		Breakdown:       breakdown,
		Currency:        cart.Currency,
		PaymentIntentID: intent.ID,
	}
	if cart.DeliveryQuote != nil {
		orderCmd.DeliveryQuoteID = cart.DeliveryQuote.ID
	}
	if cart.Promotion != nil {
		orderCmd.PromotionID = cart.Promotion.PromotionID
		orderCmd.PromotionCode = cart.Promotion.Code
	}

	order, err := s.orders.Create(ctx, orderCmd)
	if err != nil {
		return Order{}, err
	}

	if err := s.carts.DeleteCart(ctx, cart.TenantID, cart.UserID); err != nil {
		s.logger(ctx, "checkout.cart.clear.failed", map[string]any{
			"cartId": cart.ID,
			"error":  err.Error(),
		})
	}
	return order, nil
}

func (s *checkoutService) validateQuote(cart Cart) error {
	if cart.DeliveryAddress == nil {
		return fmt.Errorf("%w: delivery orders require an address", ErrCheckoutInvalidInput)
	}
	if cart.DeliveryQuote == nil {
		return fmt.Errorf("%w: delivery orders require a courier quote", ErrCheckoutInvalidInput)
	}
	if !cart.DeliveryQuote.ExpiresAt.IsZero() && s.clock().After(cart.DeliveryQuote.ExpiresAt) {
		return fmt.Errorf("%w: quote %s expired", ErrCheckoutStaleQuote, cart.DeliveryQuote.ID)
	}
	return nil
}

func (s *checkoutService) authorizePayment(ctx context.Context, cart Cart, tenant Tenant, breakdown FeeBreakdown, cmd PlaceOrderCommand) (payments.PaymentIntent, error) {
	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		key = checkoutIdempotencyKey(cart, breakdown.Total)
	}

	intent, err := s.psp.CreatePaymentIntent(ctx, payments.PaymentContext{Currency: cart.Currency}, payments.PaymentIntentRequest{
		Amount:              breakdown.Total,
		Currency:            cart.Currency,
		PaymentMethod:       strings.TrimSpace(cmd.PaymentMethod),
		ApplicationFeeCents: breakdown.PlatformFee,
		ConnectedAccountID:  tenant.StripeAccountID,
		Metadata: map[string]string{
			"tenantId": cart.TenantID,
			"userId":   cart.UserID,
		},
		IdempotencyKey: key,
	})
	if err != nil {
		return payments.PaymentIntent{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}
	if intent.Status == payments.StatusFailed {
		return payments.PaymentIntent{}, fmt.Errorf("%w: intent %s reported %s", ErrCheckoutPaymentFailed, intent.ID, intent.Status)
	}
	return intent, nil
}

func validateCheckoutCart(cart Cart, cmd PlaceOrderCommand) error {
	if len(cart.Items) == 0 {
		return ErrCheckoutCartEmpty
	}
	contact := trimContact(cmd.Contact)
	if contact.Name == "" {
		return fmt.Errorf("%w: customer name is required", ErrCheckoutInvalidInput)
	}
	if contact.Phone == "" && contact.Email == "" {
		return fmt.Errorf("%w: a phone number or email is required", ErrCheckoutInvalidInput)
	}
	return nil
}

// buildOrderItems snapshots cart lines into immutable order lines with
// display quantities and per-line totals.
func buildOrderItems(items []CartItem) []OrderItem {
	lines := make([]OrderItem, 0, len(items))
	for _, item := range items {
		lines = append(lines, OrderItem{
			SKU:             item.SKU,
			Name:            item.Name,
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			DisplayQuantity: domain.FormatQuantity(item.Quantity, item.Unit),
			Unit:            item.Unit,
			Modifiers:       append([]Modifier(nil), item.Modifiers...),
			Note:            item.Note,
			LineTotal:       LineSubtotal(item),
		})
	}
	return lines
}

func trimContact(contact CustomerContact) CustomerContact {
	return CustomerContact{
		Name:  strings.TrimSpace(contact.Name),
		Phone: strings.TrimSpace(contact.Phone),
		Email: strings.TrimSpace(contact.Email),
	}
}

// checkoutIdempotencyKey derives a stable key from the cart identity, its
// last modification time, and the charge total, so a retried submission of
// the same cart state cannot double-charge.
func checkoutIdempotencyKey(cart Cart, total int64) string {
	payload := fmt.Sprintf("stripe|%s|%s|%d|%d", cart.TenantID, cart.ID, cart.UpdatedAt.UTC().UnixNano(), total)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
