package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"

	orderIDPrefix      = "ord_"
	orderCounterName   = "orders"
	orderMeterName     = "github.com/forkline/api/internal/services"
	statusFallbackName = "orders.status.normalize.fallback"

	// defaultCancelWindow bounds customer-initiated cancellation after placement.
	defaultCancelWindow = 3 * time.Minute
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidTransition indicates a status change not permitted by the
	// transition table or its guards. The wrapped message carries the reason.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderConflict indicates optimistic concurrency conflicts or duplicates.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderCancelWindowClosed indicates the customer cancellation window elapsed.
	ErrOrderCancelWindowClosed = errors.New("order: cancellation window closed")
	// ErrOrderForbidden indicates the caller does not own the order.
	ErrOrderForbidden = errors.New("order: forbidden")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Counters     repositories.CounterRepository
	Delivery     DeliveryService
	Events       EventPublisher
	Meter        metric.Meter
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
	CancelWindow time.Duration
}

type orderService struct {
	orders       repositories.OrderRepository
	counters     repositories.CounterRepository
	delivery     DeliveryService
	events       EventPublisher
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
	cancelWindow time.Duration

	statusFallback        metric.Int64Counter
	statusFallbackEnabled bool
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	window := deps.CancelWindow
	if window <= 0 {
		window = defaultCancelWindow
	}

	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(orderMeterName)
	}
	fallback, fallbackErr := meter.Int64Counter(
		statusFallbackName,
		metric.WithDescription("Count of inbound status strings that failed to normalize and fell back to created"),
	)

	return &orderService{
		orders:       deps.Orders,
		counters:     deps.Counters,
		delivery:     deps.Delivery,
		events:       deps.Events,
		clock:        func() time.Time { return clock().UTC() },
		newID:        idGen,
		logger:       logger,
		cancelWindow: window,

		statusFallback:        fallback,
		statusFallbackEnabled: fallbackErr == nil,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	tenantID := strings.TrimSpace(cmd.TenantID)
	if tenantID == "" {
		return Order{}, fmt.Errorf("%w: tenant id is required", ErrOrderInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	if cmd.Fulfillment == domain.FulfillmentDelivery && cmd.DeliveryAddress == nil {
		return Order{}, fmt.Errorf("%w: delivery orders require an address", ErrOrderInvalidInput)
	}

	now := s.now()
	number, err := s.nextOrderNumber(ctx, tenantID, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:              orderIDPrefix + s.newID(),
		TenantID:        tenantID,
		Number:          number,
		UserID:          userID,
		Fulfillment:     cmd.Fulfillment,
		Status:          domain.OrderStatusCreated,
		Items:           cloneOrderItems(cmd.Items),
		Contact:         cmd.Contact,
		DeliveryAddress: cloneAddress(cmd.DeliveryAddress),
		DeliveryQuoteID: strings.TrimSpace(cmd.DeliveryQuoteID),
		Breakdown:       cmd.Breakdown,
		Currency:        strings.ToUpper(strings.TrimSpace(cmd.Currency)),
		PaymentIntentID: strings.TrimSpace(cmd.PaymentIntentID),
		PromotionID:     strings.TrimSpace(cmd.PromotionID),
		PromotionCode:   strings.TrimSpace(cmd.PromotionCode),
		History: []StatusHistoryEntry{{
			Status: domain.OrderStatusCreated,
			Source: "checkout",
			At:     now,
		}},
		StatusTimes: map[domain.OrderStatus]time.Time{domain.OrderStatusCreated: now},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.orders.CreateOrder(ctx, order)
	if err != nil {
		return Order{}, translateOrderRepoError(err)
	}

	s.publish(ctx, orderEventCreated, map[string]any{
		"orderId":     created.ID,
		"orderNumber": created.Number,
		"tenantId":    created.TenantID,
		"fulfillment": string(created.Fulfillment),
		"totalCents":  created.Breakdown.Total,
	})
	return created, nil
}

func (s *orderService) Get(ctx context.Context, tenantID, orderID string) (Order, error) {
	order, err := s.orders.GetOrder(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(orderID))
	if err != nil {
		return Order{}, translateOrderRepoError(err)
	}
	return order, nil
}

func (s *orderService) List(ctx context.Context, tenantID, userID string, pager Pagination) (domain.CursorPage[Order], error) {
	page, err := s.orders.ListOrders(ctx, repositories.OrderListFilter{
		TenantID:   strings.TrimSpace(tenantID),
		UserID:     strings.TrimSpace(userID),
		Pagination: pager,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, translateOrderRepoError(err)
	}
	return page, nil
}

func (s *orderService) ApplyStatusUpdate(ctx context.Context, cmd StatusUpdateCommand) (Order, error) {
	order, err := s.Get(ctx, cmd.TenantID, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	target, fellBack := domain.NormalizeOrderStatus(cmd.RawStatus)
	if fellBack {
		s.logger(ctx, "order.status.normalize.fallback", map[string]any{
			"orderId":   order.ID,
			"rawStatus": cmd.RawStatus,
			"source":    cmd.Source,
		})
		if s.statusFallbackEnabled {
			s.statusFallback.Add(ctx, 1, metric.WithAttributes(
				attribute.String("source", strings.TrimSpace(cmd.Source)),
			))
		}
	}

	return s.transition(ctx, order, target, cmd.Source, cmd.Note)
}

func (s *orderService) Cancel(ctx context.Context, tenantID, orderID, userID, reason string) (Order, error) {
	order, err := s.Get(ctx, tenantID, orderID)
	if err != nil {
		return Order{}, err
	}
	if uid := strings.TrimSpace(userID); uid != "" && uid != order.UserID {
		return Order{}, ErrOrderForbidden
	}
	if s.now().Sub(order.CreatedAt) > s.cancelWindow {
		return Order{}, ErrOrderCancelWindowClosed
	}
	return s.transition(ctx, order, domain.OrderStatusCanceled, "customer", strings.TrimSpace(reason))
}

// transition validates and applies one status change, persisting history and
// per-status timestamps and publishing the change event.
func (s *orderService) transition(ctx context.Context, order Order, target domain.OrderStatus, source, note string) (Order, error) {
	if err := domain.ValidateTransition(order.Status, target, order.Fulfillment); err != nil {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderInvalidTransition, err.Error())
	}

	now := s.now()
	previous := order.Status
	expectedUpdate := order.UpdatedAt

	order.Status = target
	order.History = append(order.History, StatusHistoryEntry{
		Status: target,
		Source: strings.TrimSpace(source),
		Note:   strings.TrimSpace(note),
		At:     now,
	})
	if order.StatusTimes == nil {
		order.StatusTimes = map[domain.OrderStatus]time.Time{}
	}
	order.StatusTimes[target] = now
	order.UpdatedAt = now
	if target.IsTerminal() {
		order.CompletedAt = &now
	}

	updated, err := s.orders.UpdateOrderStatus(ctx, order, expectedUpdate)
	if err != nil {
		return Order{}, translateOrderRepoError(err)
	}

	s.publish(ctx, orderEventStatusChanged, map[string]any{
		"orderId":        updated.ID,
		"orderNumber":    updated.Number,
		"tenantId":       updated.TenantID,
		"previousStatus": string(previous),
		"currentStatus":  string(updated.Status),
		"source":         strings.TrimSpace(source),
	})

	if updated.Status == domain.OrderStatusCourierRequested {
		s.dispatchCourier(ctx, updated)
	}
	return updated, nil
}

// dispatchCourier requests a courier once the order reaches
// courier_requested. Dispatch failures are logged, not propagated: the status
// change has already been accepted and the courier feed retries dispatch.
func (s *orderService) dispatchCourier(ctx context.Context, order Order) {
	if s.delivery == nil {
		return
	}
	ref, err := s.delivery.Dispatch(ctx, order)
	if err != nil {
		s.logger(ctx, "order.courier.dispatch.failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
		return
	}
	s.logger(ctx, "order.courier.dispatched", map[string]any{
		"orderId":    order.ID,
		"deliveryId": ref,
	})
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) nextOrderNumber(ctx context.Context, tenantID string, now time.Time) (string, error) {
	seq, err := s.counters.NextSequence(ctx, tenantID, orderCounterName)
	if err != nil {
		return "", translateOrderRepoError(err)
	}
	return fmt.Sprintf("FK-%d-%06d", now.Year(), seq), nil
}

func (s *orderService) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}

func translateOrderRepoError(err error) error {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsConflict():
			return ErrOrderConflict
		}
	}
	return err
}

func cloneOrderItems(items []OrderItem) []OrderItem {
	cloned := make([]OrderItem, len(items))
	for i, item := range items {
		cloned[i] = item
		if len(item.Modifiers) > 0 {
			cloned[i].Modifiers = append([]Modifier(nil), item.Modifiers...)
		}
	}
	return cloned
}

func cloneAddress(addr *Address) *Address {
	if addr == nil {
		return nil
	}
	cloned := *addr
	return &cloned
}
