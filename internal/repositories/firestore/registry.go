package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/forkline/api/internal/platform/firestore"
	"github.com/forkline/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry interface.
type Registry struct {
	provider *pfirestore.Provider

	carts      *CartRepository
	orders     *OrderRepository
	menu       *MenuRepository
	promotions *PromotionRepository
	tenants    *TenantRepository
	counters   *CounterRepository
}

// NewRegistry constructs every repository over a shared provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	menu, err := NewMenuRepository(provider)
	if err != nil {
		return nil, err
	}
	promotions, err := NewPromotionRepository(provider)
	if err != nil {
		return nil, err
	}
	tenants, err := NewTenantRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}

	return &Registry{
		provider:   provider,
		carts:      carts,
		orders:     orders,
		menu:       menu,
		promotions: promotions,
		tenants:    tenants,
		counters:   counters,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *Registry) Carts() repositories.CartRepository           { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Menu() repositories.MenuRepository            { return r.menu }
func (r *Registry) Promotions() repositories.PromotionRepository { return r.promotions }
func (r *Registry) Tenants() repositories.TenantRepository       { return r.tenants }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }

var _ repositories.Registry = (*Registry)(nil)
