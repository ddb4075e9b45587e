package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/forkline/api/internal/courier"
	"github.com/forkline/api/internal/payments"
	"github.com/forkline/api/internal/platform/config"
	"github.com/forkline/api/internal/repositories"
	"github.com/forkline/api/internal/services"
)

// Infrastructure carries the external adapters assembled by the entrypoint:
// payment processor, courier providers, image storage, and the event
// publisher. Optional fields may be nil; dependent services degrade or are
// skipped according to the feature flags.
type Infrastructure struct {
	Images          services.ImageStore
	Payments        *payments.Manager
	Courier         courier.Provider
	CourierFallback courier.Provider
	Events          services.EventPublisher
	Clock           func() time.Time
	Logger          *zap.Logger
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Catalog    services.CatalogService
	Cart       services.CartService
	Checkout   services.CheckoutService
	Orders     services.OrderService
	Delivery   services.DeliveryService
	Promotions services.PromotionService
}

// Container wires repositories, services, and external adapters for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer assembles the service graph over the repository registry.
// Production wiring provides real adapters, while tests can supply in-memory
// registries and stub infrastructure.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	// User-supplied text (item names, notes, addresses) is stripped of any
	// markup before it reaches Firestore or receipts.
	policy := bluemonday.StrictPolicy()
	sanitize := func(s string) string {
		return strings.TrimSpace(policy.Sanitize(s))
	}

	pricer := services.NewPricingEngine()

	promotionSvc, err := services.NewPromotionService(services.PromotionServiceDeps{
		Promotions: reg.Promotions(),
		Clock:      clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build promotion service: %w", err)
	}
	svc.Promotions = promotionSvc

	if cfg.Features.EnableDelivery && (infra.Courier != nil || infra.CourierFallback != nil) {
		deliverySvc, err := services.NewDeliveryService(services.DeliveryServiceDeps{
			Provider: infra.Courier,
			Fallback: infra.CourierFallback,
			Tenants:  reg.Tenants(),
			Clock:    clock,
			Logger:   eventLogger(infra.Logger, "delivery"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build delivery service: %w", err)
		}
		svc.Delivery = deliverySvc
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Counters: reg.Counters(),
		Delivery: svc.Delivery,
		Events:   infra.Events,
		Clock:    clock,
		Logger:   eventLogger(infra.Logger, "orders"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Menu:     reg.Menu(),
		Images:   infra.Images,
		Sanitize: sanitize,
		Clock:    clock,
		Logger:   eventLogger(infra.Logger, "catalog"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	cartPromotions := svc.Promotions
	if !cfg.Features.EnablePromotions {
		cartPromotions = nil
	}
	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:      reg.Carts(),
		Menu:       reg.Menu(),
		Tenants:    reg.Tenants(),
		Pricer:     pricer,
		Promotions: cartPromotions,
		Delivery:   svc.Delivery,
		Sanitize:   sanitize,
		Clock:      clock,
		Logger:     eventLogger(infra.Logger, "cart"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	if infra.Payments != nil {
		checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
			Carts:    reg.Carts(),
			Tenants:  reg.Tenants(),
			Orders:   svc.Orders,
			Pricer:   pricer,
			Payments: infra.Payments,
			Clock:    clock,
			Logger:   eventLogger(infra.Logger, "checkout"),
		})
		if err != nil {
			return Services{}, fmt.Errorf("build checkout service: %w", err)
		}
		svc.Checkout = checkoutSvc
	}

	return svc, nil
}

func eventLogger(logger *zap.Logger, name string) func(context.Context, string, map[string]any) {
	if logger == nil {
		return nil
	}
	scoped := logger.Named(name)
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		scoped.Debug("service event", zFields...)
	}
}
