package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/forkline/api/internal/domain"
)

var orderTestTime = time.Date(2025, time.March, 10, 18, 0, 0, 0, time.UTC)

type orderFixture struct {
	service  OrderService
	orders   *memOrderRepo
	events   *memEventPublisher
	delivery *stubDeliveryService
	now      *time.Time
}

func newOrderFixture(t *testing.T) orderFixture {
	t.Helper()

	orders := newMemOrderRepo()
	events := &memEventPublisher{}
	delivery := &stubDeliveryService{dispatchRef: "courier-123"}
	now := orderTestTime

	service, err := NewOrderService(OrderServiceDeps{
		Orders:      orders,
		Counters:    newMemCounterRepo(),
		Delivery:    delivery,
		Events:      events,
		Clock:       func() time.Time { return now },
		IDGenerator: sequenceIDs("ord"),
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return orderFixture{service: service, orders: orders, events: events, delivery: delivery, now: &now}
}

func (fx orderFixture) createOrder(t *testing.T, fulfillment domain.FulfillmentType) Order {
	t.Helper()

	cmd := CreateOrderCommand{
		TenantID:    "t1",
		UserID:      "u1",
		Fulfillment: fulfillment,
		Items: []OrderItem{{
			SKU:             "burger",
			Name:            "Smash Burger",
			UnitPrice:       999,
			Quantity:        1,
			DisplayQuantity: "1",
			Unit:            domain.UnitEach,
			LineTotal:       999,
		}},
		Contact:   CustomerContact{Name: "Ada", Phone: "+15550100"},
		Breakdown: FeeBreakdown{Subtotal: 999, Tax: 80, Total: 1079},
		Currency:  "usd",
	}
	if fulfillment == domain.FulfillmentDelivery {
		cmd.DeliveryAddress = &Address{Line1: "1 Pike Pl", City: "Seattle"}
		cmd.DeliveryQuoteID = "dlv_1"
	}

	order, err := fx.service.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return order
}

func (fx orderFixture) apply(t *testing.T, orderID, raw, source string) (Order, error) {
	t.Helper()
	return fx.service.ApplyStatusUpdate(context.Background(), StatusUpdateCommand{
		TenantID:  "t1",
		OrderID:   orderID,
		RawStatus: raw,
		Source:    source,
	})
}

func TestOrderCreate(t *testing.T) {
	fx := newOrderFixture(t)
	order := fx.createOrder(t, domain.FulfillmentPickup)

	if order.Number != "FK-2025-000001" {
		t.Fatalf("number = %q, want FK-2025-000001", order.Number)
	}
	if order.Status != domain.OrderStatusCreated {
		t.Fatalf("status = %q, want created", order.Status)
	}
	if order.Currency != "USD" {
		t.Fatalf("currency = %q, want upper-cased USD", order.Currency)
	}
	if len(order.History) != 1 || order.History[0].Source != "checkout" {
		t.Fatalf("history = %+v, want single checkout entry", order.History)
	}
	if _, ok := order.StatusTimes[domain.OrderStatusCreated]; !ok {
		t.Fatal("expected created timestamp in StatusTimes")
	}

	second := fx.createOrder(t, domain.FulfillmentPickup)
	if second.Number != "FK-2025-000002" {
		t.Fatalf("number = %q, want sequential FK-2025-000002", second.Number)
	}

	if events := fx.events.byType("order.created"); len(events) != 2 {
		t.Fatalf("order.created events = %d, want 2", len(events))
	}
}

func TestOrderCreateRequiresAddressForDelivery(t *testing.T) {
	fx := newOrderFixture(t)

	_, err := fx.service.Create(context.Background(), CreateOrderCommand{
		TenantID:    "t1",
		UserID:      "u1",
		Fulfillment: domain.FulfillmentDelivery,
		Items:       []OrderItem{{SKU: "burger", Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("error = %v, want %v", err, ErrOrderInvalidInput)
	}
}

func TestOrderStatusHappyPath(t *testing.T) {
	fx := newOrderFixture(t)
	order := fx.createOrder(t, domain.FulfillmentPickup)

	for _, raw := range []string{"accepted", "in_kitchen", "ready", "picked_up"} {
		updated, err := fx.apply(t, order.ID, raw, "kitchen")
		if err != nil {
			t.Fatalf("ApplyStatusUpdate(%s): %v", raw, err)
		}
		if string(updated.Status) != raw {
			t.Fatalf("status = %q, want %q", updated.Status, raw)
		}
	}

	events := fx.events.byType("order.status.changed")
	if len(events) != 4 {
		t.Fatalf("status events = %d, want 4", len(events))
	}
	if events[0].payload["previousStatus"] != "created" || events[0].payload["currentStatus"] != "accepted" {
		t.Fatalf("first event payload = %+v", events[0].payload)
	}
}

func TestOrderStatusAliases(t *testing.T) {
	fx := newOrderFixture(t)
	order := fx.createOrder(t, domain.FulfillmentPickup)

	updated, err := fx.apply(t, order.ID, "Confirmed", "pos")
	if err != nil {
		t.Fatalf("ApplyStatusUpdate: %v", err)
	}
	if updated.Status != domain.OrderStatusAccepted {
		t.Fatalf("status = %q, want accepted for alias", updated.Status)
	}

	updated, err = fx.apply(t, order.ID, "PREPARING", "pos")
	if err != nil {
		t.Fatalf("ApplyStatusUpdate: %v", err)
	}
	if updated.Status != domain.OrderStatusInKitchen {
		t.Fatalf("status = %q, want in_kitchen for alias", updated.Status)
	}
}

func TestOrderStatusUnknownFallsBackAndRejects(t *testing.T) {
	fx := newOrderFixture(t)
	order := fx.createOrder(t, domain.FulfillmentPickup)

	// Unknown statuses normalise to created; for a freshly created order that
	// is a same-state update and is rejected rather than applied.
	_, err := fx.apply(t, order.ID, "teleported", "pos")
	if !errors.Is(err, ErrOrderInvalidTransition) {
		t.Fatalf("error = %v, want %v", err, ErrOrderInvalidTransition)
	}

	stored, err := fx.service.Get(context.Background(), "t1", order.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.Status != domain.OrderStatusCreated {
		t.Fatalf("status = %q, want unchanged created", stored.Status)
	}
}

func TestOrderStatusGuards(t *testing.T) {
	t.Run("no skipping ahead", func(t *testing.T) {
		fx := newOrderFixture(t)
		order := fx.createOrder(t, domain.FulfillmentPickup)
		if _, err := fx.apply(t, order.ID, "ready", "kitchen"); !errors.Is(err, ErrOrderInvalidTransition) {
			t.Fatalf("error = %v, want %v", err, ErrOrderInvalidTransition)
		}
	})

	t.Run("pickup never requests courier", func(t *testing.T) {
		fx := newOrderFixture(t)
		order := fx.createOrder(t, domain.FulfillmentPickup)
		for _, raw := range []string{"accepted", "in_kitchen", "ready"} {
			if _, err := fx.apply(t, order.ID, raw, "kitchen"); err != nil {
				t.Fatalf("ApplyStatusUpdate(%s): %v", raw, err)
			}
		}
		if _, err := fx.apply(t, order.ID, "courier_requested", "pos"); !errors.Is(err, ErrOrderInvalidTransition) {
			t.Fatalf("error = %v, want %v", err, ErrOrderInvalidTransition)
		}
	})

	t.Run("delivery must request courier after ready", func(t *testing.T) {
		fx := newOrderFixture(t)
		order := fx.createOrder(t, domain.FulfillmentDelivery)
		for _, raw := range []string{"accepted", "in_kitchen", "ready"} {
			if _, err := fx.apply(t, order.ID, raw, "kitchen"); err != nil {
				t.Fatalf("ApplyStatusUpdate(%s): %v", raw, err)
			}
		}
		if _, err := fx.apply(t, order.ID, "picked_up", "courier"); !errors.Is(err, ErrOrderInvalidTransition) {
			t.Fatalf("error = %v, want %v", err, ErrOrderInvalidTransition)
		}
	})

	t.Run("terminal orders never change", func(t *testing.T) {
		fx := newOrderFixture(t)
		order := fx.createOrder(t, domain.FulfillmentPickup)
		for _, raw := range []string{"accepted", "in_kitchen", "ready", "delivered"} {
			if _, err := fx.apply(t, order.ID, raw, "kitchen"); err != nil {
				t.Fatalf("ApplyStatusUpdate(%s): %v", raw, err)
			}
		}
		if _, err := fx.apply(t, order.ID, "canceled", "pos"); !errors.Is(err, ErrOrderInvalidTransition) {
			t.Fatalf("error = %v, want %v", err, ErrOrderInvalidTransition)
		}
	})
}

func TestOrderCourierDispatchOnRequest(t *testing.T) {
	fx := newOrderFixture(t)
	order := fx.createOrder(t, domain.FulfillmentDelivery)

	for _, raw := range []string{"accepted", "in_kitchen", "ready", "courier_requested"} {
		if _, err := fx.apply(t, order.ID, raw, "kitchen"); err != nil {
			t.Fatalf("ApplyStatusUpdate(%s): %v", raw, err)
		}
	}
	if fx.delivery.dispatchCalls != 1 {
		t.Fatalf("dispatch calls = %d, want 1", fx.delivery.dispatchCalls)
	}
}

func TestOrderCourierDispatchFailureDoesNotBlockStatus(t *testing.T) {
	fx := newOrderFixture(t)
	fx.delivery.dispatchErr = errors.New("provider down")
	order := fx.createOrder(t, domain.FulfillmentDelivery)

	var updated Order
	var err error
	for _, raw := range []string{"accepted", "in_kitchen", "ready", "courier_requested"} {
		updated, err = fx.apply(t, order.ID, raw, "kitchen")
		if err != nil {
			t.Fatalf("ApplyStatusUpdate(%s): %v", raw, err)
		}
	}
	if updated.Status != domain.OrderStatusCourierRequested {
		t.Fatalf("status = %q, want courier_requested despite dispatch failure", updated.Status)
	}
}

func TestOrderTerminalStampsCompletedAt(t *testing.T) {
	fx := newOrderFixture(t)
	order := fx.createOrder(t, domain.FulfillmentPickup)

	var updated Order
	var err error
	for _, raw := range []string{"accepted", "in_kitchen", "ready", "delivered"} {
		updated, err = fx.apply(t, order.ID, raw, "kitchen")
		if err != nil {
			t.Fatalf("ApplyStatusUpdate(%s): %v", raw, err)
		}
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected CompletedAt for terminal status")
	}
	if _, ok := updated.StatusTimes[domain.OrderStatusDelivered]; !ok {
		t.Fatal("expected delivered timestamp in StatusTimes")
	}
	if len(updated.History) != 5 {
		t.Fatalf("history length = %d, want 5", len(updated.History))
	}
}

func TestOrderCancelWindow(t *testing.T) {
	fx := newOrderFixture(t)
	order := fx.createOrder(t, domain.FulfillmentPickup)
	ctx := context.Background()

	t.Run("wrong user is forbidden", func(t *testing.T) {
		if _, err := fx.service.Cancel(ctx, "t1", order.ID, "intruder", ""); !errors.Is(err, ErrOrderForbidden) {
			t.Fatalf("error = %v, want %v", err, ErrOrderForbidden)
		}
	})

	t.Run("within window succeeds", func(t *testing.T) {
		*fx.now = orderTestTime.Add(2 * time.Minute)
		canceled, err := fx.service.Cancel(ctx, "t1", order.ID, "u1", "changed my mind")
		if err != nil {
			t.Fatalf("Cancel: %v", err)
		}
		if canceled.Status != domain.OrderStatusCanceled {
			t.Fatalf("status = %q, want canceled", canceled.Status)
		}
		last := canceled.History[len(canceled.History)-1]
		if last.Source != "customer" || last.Note != "changed my mind" {
			t.Fatalf("history entry = %+v", last)
		}
	})

	t.Run("after window is rejected", func(t *testing.T) {
		second := fx.createOrder(t, domain.FulfillmentPickup)
		*fx.now = fx.now.Add(4 * time.Minute)
		if _, err := fx.service.Cancel(ctx, "t1", second.ID, "u1", ""); !errors.Is(err, ErrOrderCancelWindowClosed) {
			t.Fatalf("error = %v, want %v", err, ErrOrderCancelWindowClosed)
		}
	})
}

func TestOrderList(t *testing.T) {
	fx := newOrderFixture(t)
	fx.createOrder(t, domain.FulfillmentPickup)
	fx.createOrder(t, domain.FulfillmentPickup)

	page, err := fx.service.List(context.Background(), "t1", "u1", Pagination{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(page.Items))
	}
	for _, order := range page.Items {
		if !strings.HasPrefix(order.ID, "ord_") {
			t.Fatalf("order id = %q, want ord_ prefix", order.ID)
		}
	}
}

func TestOrderGetNotFound(t *testing.T) {
	fx := newOrderFixture(t)
	if _, err := fx.service.Get(context.Background(), "t1", "ord_missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("error = %v, want %v", err, ErrOrderNotFound)
	}
}
