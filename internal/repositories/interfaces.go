package repositories

import (
	"context"
	"time"

	domain "github.com/forkline/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	Orders() OrderRepository
	Menu() MenuRepository
	Promotions() PromotionRepository
	Tenants() TenantRepository
	Counters() CounterRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository owns cart persistence with optimistic locking guarantees.
// Each tenant/user pair holds at most one active cart.
type CartRepository interface {
	GetCart(ctx context.Context, tenantID, userID string) (domain.Cart, error)
	// UpsertCart writes the cart. A non-nil expectedUpdate enforces the stored
	// document's last update time as a write precondition.
	UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error)
	DeleteCart(ctx context.Context, tenantID, userID string) error
}

// OrderListFilter narrows order listings to a tenant and optionally a user.
type OrderListFilter struct {
	TenantID   string
	UserID     string
	Pagination domain.Pagination
}

// OrderRepository persists orders and their status history.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	GetOrder(ctx context.Context, tenantID, orderID string) (domain.Order, error)
	// UpdateOrderStatus persists the order's status, history, and per-status
	// timestamps under an optimistic-concurrency precondition.
	UpdateOrderStatus(ctx context.Context, order domain.Order, expectedUpdate time.Time) (domain.Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// MenuRepository persists a tenant's sellable catalog.
type MenuRepository interface {
	GetItem(ctx context.Context, tenantID, sku string) (domain.MenuItem, error)
	ListItems(ctx context.Context, tenantID string, availableOnly bool) ([]domain.MenuItem, error)
	UpsertItem(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error)
	DeleteItem(ctx context.Context, tenantID, sku string) error
}

// PromotionRepository persists tenant promotion codes.
type PromotionRepository interface {
	FindByCode(ctx context.Context, tenantID, code string) (domain.Promotion, error)
	ListPromotions(ctx context.Context, tenantID string) ([]domain.Promotion, error)
	UpsertPromotion(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error)
	DeletePromotion(ctx context.Context, tenantID, promotionID string) error
}

// TenantRepository reads restaurant records, including fee configuration and
// the connected payout account.
type TenantRepository interface {
	GetTenant(ctx context.Context, tenantID string) (domain.Tenant, error)
}

// CounterRepository allocates monotonically increasing sequence numbers used
// for human-readable order numbers.
type CounterRepository interface {
	NextSequence(ctx context.Context, tenantID, name string) (int64, error)
}
