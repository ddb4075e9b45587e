package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/repositories"
)

type repoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string       { return e.msg }
func (e repoError) IsNotFound() bool    { return e.notFound }
func (e repoError) IsConflict() bool    { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

var _ repositories.RepositoryError = repoError{}

func notFoundErr(what string) error {
	return repoError{msg: what + " not found", notFound: true}
}

type memCartRepo struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
	fail  error
}

func newMemCartRepo() *memCartRepo {
	return &memCartRepo{carts: make(map[string]domain.Cart)}
}

func cartKey(tenantID, userID string) string { return tenantID + "/" + userID }

func (r *memCartRepo) GetCart(_ context.Context, tenantID, userID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return domain.Cart{}, r.fail
	}
	cart, ok := r.carts[cartKey(tenantID, userID)]
	if !ok {
		return domain.Cart{}, notFoundErr("cart")
	}
	return cart, nil
}

func (r *memCartRepo) UpsertCart(_ context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return domain.Cart{}, r.fail
	}
	key := cartKey(cart.TenantID, cart.UserID)
	if expectedUpdate != nil {
		stored, ok := r.carts[key]
		if ok && !stored.UpdatedAt.Equal(*expectedUpdate) {
			return domain.Cart{}, repoError{msg: "cart was modified concurrently", conflict: true}
		}
	}
	r.carts[key] = cart
	return cart, nil
}

func (r *memCartRepo) DeleteCart(_ context.Context, tenantID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cartKey(tenantID, userID)
	if _, ok := r.carts[key]; !ok {
		return notFoundErr("cart")
	}
	delete(r.carts, key)
	return nil
}

type memMenuRepo struct {
	mu    sync.Mutex
	items map[string]domain.MenuItem
}

func newMemMenuRepo(items ...domain.MenuItem) *memMenuRepo {
	repo := &memMenuRepo{items: make(map[string]domain.MenuItem)}
	for _, item := range items {
		repo.items[cartKey(item.TenantID, item.SKU)] = item
	}
	return repo
}

func (r *memMenuRepo) GetItem(_ context.Context, tenantID, sku string) (domain.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[cartKey(tenantID, sku)]
	if !ok {
		return domain.MenuItem{}, notFoundErr("menu item")
	}
	return item, nil
}

func (r *memMenuRepo) ListItems(_ context.Context, tenantID string, availableOnly bool) ([]domain.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.MenuItem
	for _, item := range r.items {
		if item.TenantID != tenantID {
			continue
		}
		if availableOnly && !item.Available {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SKU < items[j].SKU })
	return items, nil
}

func (r *memMenuRepo) UpsertItem(_ context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[cartKey(item.TenantID, item.SKU)] = item
	return item, nil
}

func (r *memMenuRepo) DeleteItem(_ context.Context, tenantID, sku string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cartKey(tenantID, sku)
	if _, ok := r.items[key]; !ok {
		return notFoundErr("menu item")
	}
	delete(r.items, key)
	return nil
}

type memTenantRepo struct {
	tenants map[string]domain.Tenant
}

func newMemTenantRepo(tenants ...domain.Tenant) *memTenantRepo {
	repo := &memTenantRepo{tenants: make(map[string]domain.Tenant)}
	for _, tenant := range tenants {
		repo.tenants[tenant.ID] = tenant
	}
	return repo
}

func (r *memTenantRepo) GetTenant(_ context.Context, tenantID string) (domain.Tenant, error) {
	tenant, ok := r.tenants[tenantID]
	if !ok {
		return domain.Tenant{}, notFoundErr("tenant")
	}
	return tenant, nil
}

type memPromotionRepo struct {
	mu         sync.Mutex
	promotions map[string]domain.Promotion
}

func newMemPromotionRepo(promotions ...domain.Promotion) *memPromotionRepo {
	repo := &memPromotionRepo{promotions: make(map[string]domain.Promotion)}
	for _, promotion := range promotions {
		repo.promotions[cartKey(promotion.TenantID, promotion.Code)] = promotion
	}
	return repo
}

func (r *memPromotionRepo) FindByCode(_ context.Context, tenantID, code string) (domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	promotion, ok := r.promotions[cartKey(tenantID, strings.ToUpper(code))]
	if !ok {
		return domain.Promotion{}, notFoundErr("promotion")
	}
	return promotion, nil
}

func (r *memPromotionRepo) ListPromotions(_ context.Context, tenantID string) ([]domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var promotions []domain.Promotion
	for _, promotion := range r.promotions {
		if promotion.TenantID == tenantID {
			promotions = append(promotions, promotion)
		}
	}
	return promotions, nil
}

func (r *memPromotionRepo) UpsertPromotion(_ context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.promotions[cartKey(promotion.TenantID, promotion.Code)] = promotion
	return promotion, nil
}

func (r *memPromotionRepo) DeletePromotion(_ context.Context, tenantID, promotionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, promotion := range r.promotions {
		if promotion.TenantID == tenantID && promotion.ID == promotionID {
			delete(r.promotions, key)
			return nil
		}
	}
	return notFoundErr("promotion")
}

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]domain.Order)}
}

func (r *memOrderRepo) CreateOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cartKey(order.TenantID, order.ID)
	if _, ok := r.orders[key]; ok {
		return domain.Order{}, repoError{msg: "order already exists", conflict: true}
	}
	r.orders[key] = order
	return order, nil
}

func (r *memOrderRepo) GetOrder(_ context.Context, tenantID, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[cartKey(tenantID, orderID)]
	if !ok {
		return domain.Order{}, notFoundErr("order")
	}
	return order, nil
}

func (r *memOrderRepo) UpdateOrderStatus(_ context.Context, order domain.Order, expectedUpdate time.Time) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cartKey(order.TenantID, order.ID)
	stored, ok := r.orders[key]
	if !ok {
		return domain.Order{}, notFoundErr("order")
	}
	if !stored.UpdatedAt.Equal(expectedUpdate) {
		return domain.Order{}, repoError{msg: "order was modified concurrently", conflict: true}
	}
	r.orders[key] = order
	return order, nil
}

func (r *memOrderRepo) ListOrders(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var orders []domain.Order
	for _, order := range r.orders {
		if order.TenantID != filter.TenantID {
			continue
		}
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return domain.CursorPage[domain.Order]{Items: orders}, nil
}

type memCounterRepo struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func newMemCounterRepo() *memCounterRepo {
	return &memCounterRepo{seqs: make(map[string]int64)}
}

func (r *memCounterRepo) NextSequence(_ context.Context, tenantID, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cartKey(tenantID, name)
	r.seqs[key]++
	return r.seqs[key], nil
}

type capturedEvent struct {
	eventType string
	payload   map[string]any
}

type memEventPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
	err    error
}

func (p *memEventPublisher) Publish(_ context.Context, eventType string, payload map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, capturedEvent{eventType: eventType, payload: payload})
	return nil
}

func (p *memEventPublisher) byType(eventType string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []capturedEvent
	for _, event := range p.events {
		if event.eventType == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

type stubDeliveryService struct {
	quote      domain.DeliveryQuote
	quoteErr   error
	quoteCalls int

	dispatchRef   string
	dispatchErr   error
	dispatchCalls int
}

func (s *stubDeliveryService) QuoteDelivery(context.Context, string, domain.Address) (domain.DeliveryQuote, error) {
	s.quoteCalls++
	if s.quoteErr != nil {
		return domain.DeliveryQuote{}, s.quoteErr
	}
	return s.quote, nil
}

func (s *stubDeliveryService) Dispatch(context.Context, domain.Order) (string, error) {
	s.dispatchCalls++
	if s.dispatchErr != nil {
		return "", s.dispatchErr
	}
	return s.dispatchRef, nil
}

func sequenceIDs(prefix string) func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%s%04d", prefix, n)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
