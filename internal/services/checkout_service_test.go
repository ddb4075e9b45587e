package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/payments"
	"github.com/forkline/api/internal/repositories"
)

var checkoutTestTime = time.Date(2025, time.March, 10, 19, 0, 0, 0, time.UTC)

type stubPaymentProvider struct {
	requests []payments.PaymentIntentRequest
	err      error
	status   payments.Status
}

func (p *stubPaymentProvider) CreatePaymentIntent(_ context.Context, req payments.PaymentIntentRequest) (payments.PaymentIntent, error) {
	if p.err != nil {
		return payments.PaymentIntent{}, p.err
	}
	p.requests = append(p.requests, req)
	status := p.status
	if status == "" {
		status = payments.StatusSucceeded
	}
	return payments.PaymentIntent{
		ID:       "pi_test",
		Status:   status,
		Amount:   req.Amount,
		Currency: req.Currency,
	}, nil
}

func (p *stubPaymentProvider) LookupPayment(context.Context, payments.LookupRequest) (payments.PaymentIntent, error) {
	return payments.PaymentIntent{ID: "pi_test"}, nil
}

type checkoutFixture struct {
	service  CheckoutService
	carts    *memCartRepo
	orders   *memOrderRepo
	provider *stubPaymentProvider
	tenant   domain.Tenant
}

func newCheckoutFixture(t *testing.T) checkoutFixture {
	t.Helper()

	tenant := testTenant()
	tenant.StripeAccountID = "acct_t1"

	carts := newMemCartRepo()
	orders := newMemOrderRepo()
	provider := &stubPaymentProvider{}

	manager, err := payments.NewManager(map[string]payments.Provider{"stripe": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	orderSvc, err := NewOrderService(OrderServiceDeps{
		Orders:      orders,
		Counters:    newMemCounterRepo(),
		Events:      &memEventPublisher{},
		Clock:       fixedClock(checkoutTestTime),
		IDGenerator: sequenceIDs("ord"),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:    carts,
		Tenants:  newMemTenantRepo(tenant),
		Orders:   orderSvc,
		Pricer:   NewPricingEngine(),
		Payments: manager,
		Clock:    fixedClock(checkoutTestTime),
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return checkoutFixture{service: service, carts: carts, orders: orders, provider: provider, tenant: tenant}
}

// seedCart stores a pickup cart whose estimate matches what the engine will
// recompute at checkout time.
func (fx checkoutFixture) seedCart(t *testing.T) Cart {
	t.Helper()

	cart := Cart{
		ID:          "u1",
		TenantID:    "t1",
		UserID:      "u1",
		Currency:    "USD",
		Fulfillment: domain.FulfillmentPickup,
		Items: []CartItem{{
			ID:        "itm_1",
			SKU:       "burger",
			Name:      "Smash Burger",
			UnitPrice: 999,
			Unit:      domain.UnitEach,
			Quantity:  1,
		}},
		CreatedAt: checkoutTestTime.Add(-10 * time.Minute),
		UpdatedAt: checkoutTestTime.Add(-time.Minute),
	}
	estimate := NewPricingEngine().Quote(PriceOrderCommand{
		Items:       cart.Items,
		Fulfillment: cart.Fulfillment,
		Fees:        fx.tenant.Fees,
	})
	cart.Estimate = &estimate

	if _, err := fx.carts.UpsertCart(context.Background(), cart, nil); err != nil {
		t.Fatalf("UpsertCart: %v", err)
	}
	return cart
}

func placeCmd() PlaceOrderCommand {
	return PlaceOrderCommand{
		TenantID:      "t1",
		UserID:        "u1",
		Contact:       CustomerContact{Name: "Ada", Phone: "+15550100"},
		PaymentMethod: "pm_card",
	}
}

func TestCheckoutPlaceOrder(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.seedCart(t)

	order, err := fx.service.PlaceOrder(context.Background(), placeCmd())
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	// 999 subtotal, 8% tax = 80, 1% platform fee = 10.
	if order.Breakdown.Total != 1089 {
		t.Fatalf("total = %d, want 1089", order.Breakdown.Total)
	}
	if order.PaymentIntentID != "pi_test" {
		t.Fatalf("payment intent = %q, want pi_test", order.PaymentIntentID)
	}
	if order.Items[0].LineTotal != 999 || order.Items[0].DisplayQuantity != "1" {
		t.Fatalf("order item = %+v", order.Items[0])
	}

	if len(fx.provider.requests) != 1 {
		t.Fatalf("payment requests = %d, want 1", len(fx.provider.requests))
	}
	req := fx.provider.requests[0]
	if req.Amount != order.Breakdown.Total {
		t.Fatalf("charge amount = %d, want %d", req.Amount, order.Breakdown.Total)
	}
	if req.ApplicationFeeCents != order.Breakdown.PlatformFee {
		t.Fatalf("application fee = %d, want platform fee %d", req.ApplicationFeeCents, order.Breakdown.PlatformFee)
	}
	if req.ConnectedAccountID != "acct_t1" {
		t.Fatalf("connected account = %q, want acct_t1", req.ConnectedAccountID)
	}
	if len(req.IdempotencyKey) != 64 {
		t.Fatalf("idempotency key = %q, want derived sha256 hex", req.IdempotencyKey)
	}

	// Cart is cleared after placement.
	if _, err := fx.carts.GetCart(context.Background(), "t1", "u1"); err == nil {
		t.Fatal("expected cart to be deleted after placement")
	}
}

func TestCheckoutIdempotencyKeyOverride(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.seedCart(t)

	cmd := placeCmd()
	cmd.IdempotencyKey = "client-key-1"
	if _, err := fx.service.PlaceOrder(context.Background(), cmd); err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if got := fx.provider.requests[0].IdempotencyKey; got != "client-key-1" {
		t.Fatalf("idempotency key = %q, want caller override", got)
	}
}

func TestCheckoutMissingCart(t *testing.T) {
	fx := newCheckoutFixture(t)
	if _, err := fx.service.PlaceOrder(context.Background(), placeCmd()); !errors.Is(err, ErrCheckoutCartEmpty) {
		t.Fatalf("error = %v, want %v", err, ErrCheckoutCartEmpty)
	}
}

func TestCheckoutContactValidation(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.seedCart(t)

	cmd := placeCmd()
	cmd.Contact = CustomerContact{Name: "  "}
	if _, err := fx.service.PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("error = %v, want %v", err, ErrCheckoutInvalidInput)
	}

	cmd.Contact = CustomerContact{Name: "Ada"}
	if _, err := fx.service.PlaceOrder(context.Background(), cmd); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("error = %v, want %v for missing phone and email", err, ErrCheckoutInvalidInput)
	}
}

func TestCheckoutDeliveryQuoteChecks(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	cart := fx.seedCart(t)
	cart.Fulfillment = domain.FulfillmentDelivery
	cart.DeliveryAddress = &Address{Line1: "1 Pike Pl", City: "Seattle"}
	if _, err := fx.carts.UpsertCart(ctx, cart, nil); err != nil {
		t.Fatalf("UpsertCart: %v", err)
	}

	if _, err := fx.service.PlaceOrder(ctx, placeCmd()); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("error = %v, want %v for missing quote", err, ErrCheckoutInvalidInput)
	}

	cart.DeliveryQuote = &DeliveryQuote{
		ID:        "dlv_1",
		FeeCents:  499,
		ExpiresAt: checkoutTestTime.Add(-time.Second),
	}
	if _, err := fx.carts.UpsertCart(ctx, cart, nil); err != nil {
		t.Fatalf("UpsertCart: %v", err)
	}
	if _, err := fx.service.PlaceOrder(ctx, placeCmd()); !errors.Is(err, ErrCheckoutStaleQuote) {
		t.Fatalf("error = %v, want %v for expired quote", err, ErrCheckoutStaleQuote)
	}
}

func TestCheckoutStaleEstimate(t *testing.T) {
	fx := newCheckoutFixture(t)
	cart := fx.seedCart(t)

	cart.Estimate.Total -= 50
	if _, err := fx.carts.UpsertCart(context.Background(), cart, nil); err != nil {
		t.Fatalf("UpsertCart: %v", err)
	}

	if _, err := fx.service.PlaceOrder(context.Background(), placeCmd()); !errors.Is(err, ErrCheckoutStaleQuote) {
		t.Fatalf("error = %v, want %v", err, ErrCheckoutStaleQuote)
	}
}

func TestCheckoutPaymentFailureLeavesNoOrder(t *testing.T) {
	fx := newCheckoutFixture(t)
	fx.seedCart(t)
	fx.provider.err = errors.New("card declined")

	if _, err := fx.service.PlaceOrder(context.Background(), placeCmd()); !errors.Is(err, ErrCheckoutPaymentFailed) {
		t.Fatalf("error = %v, want %v", err, ErrCheckoutPaymentFailed)
	}

	page, err := fx.orders.ListOrders(context.Background(), repositories.OrderListFilter{TenantID: "t1"})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("orders = %d, want none after payment failure", len(page.Items))
	}

	// The cart survives a failed payment so the customer can retry.
	if _, err := fx.carts.GetCart(context.Background(), "t1", "u1"); err != nil {
		t.Fatalf("GetCart after failure: %v", err)
	}
}
