package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/forkline/api/internal/courier"
	"github.com/forkline/api/internal/repositories"
)

const (
	deliveryQuoteIDPrefix   = "dlv_"
	defaultDeliveryQuoteTTL = 5 * time.Minute
)

var (
	// ErrDeliveryOutOfRange indicates the address lies beyond the deliverable area.
	ErrDeliveryOutOfRange = errors.New("delivery: address out of range")
	// ErrDeliveryUnavailable indicates no provider could produce a quote.
	ErrDeliveryUnavailable = errors.New("delivery: unavailable")
	// ErrDeliveryInvalidInput signals a missing or unusable address.
	ErrDeliveryInvalidInput = errors.New("delivery: invalid input")
)

// DeliveryServiceDeps bundles collaborators for the delivery quote service.
type DeliveryServiceDeps struct {
	Provider    courier.Provider
	Fallback    courier.Provider
	Tenants     repositories.TenantRepository
	CacheTTL    time.Duration
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type deliveryService struct {
	provider courier.Provider
	fallback courier.Provider
	tenants  repositories.TenantRepository
	ttl      time.Duration
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
	cache    *deliveryQuoteCache
}

// NewDeliveryService wires a DeliveryService around the courier provider with
// an in-memory quote cache and a zone-table fallback.
func NewDeliveryService(deps DeliveryServiceDeps) (DeliveryService, error) {
	if deps.Provider == nil && deps.Fallback == nil {
		return nil, errors.New("delivery service: at least one courier provider is required")
	}
	if deps.Tenants == nil {
		return nil, errors.New("delivery service: tenant repository is required")
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultDeliveryQuoteTTL
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

	now := func() time.Time { return clock().UTC() }
	return &deliveryService{
		provider: deps.Provider,
		fallback: deps.Fallback,
		tenants:  deps.Tenants,
		ttl:      ttl,
		clock:    now,
		newID:    idGen,
		logger:   logger,
		cache:    newDeliveryQuoteCache(ttl, now),
	}, nil
}

func (s *deliveryService) QuoteDelivery(ctx context.Context, tenantID string, address Address) (DeliveryQuote, error) {
	tid := strings.TrimSpace(tenantID)
	if tid == "" {
		return DeliveryQuote{}, fmt.Errorf("%w: tenant id is required", ErrDeliveryInvalidInput)
	}
	if address.SingleLine() == "" && address.Lat == 0 && address.Lng == 0 {
		return DeliveryQuote{}, fmt.Errorf("%w: address is required", ErrDeliveryInvalidInput)
	}

	key := tid + "|" + AddressFingerprint(address)
	if quote, ok := s.cache.get(key); ok {
		return quote, nil
	}

	tenant, err := s.tenants.GetTenant(ctx, tid)
	if err != nil {
		return DeliveryQuote{}, err
	}

	req := courier.QuoteRequest{
		TenantID: tid,
		Pickup:   tenant.Location,
		Dropoff:  address,
		Zones:    tenant.Fees.DeliveryZones,
	}

	quote, err := s.quoteWithFallback(ctx, req)
	if err != nil {
		return DeliveryQuote{}, err
	}

	if quote.ID == "" {
		quote.ID = deliveryQuoteIDPrefix + s.newID()
	}
	if quote.Currency == "" {
		quote.Currency = tenant.Currency
	}
	if quote.ExpiresAt.IsZero() {
		quote.ExpiresAt = s.clock().Add(s.ttl)
	}

	s.cache.set(key, quote)
	return quote, nil
}

// quoteWithFallback asks the primary provider first and falls back to the
// zone estimator when the provider is unreachable or unconfigured. An
// out-of-range answer is final and never retried against the fallback.
func (s *deliveryService) quoteWithFallback(ctx context.Context, req courier.QuoteRequest) (DeliveryQuote, error) {
	providers := make([]courier.Provider, 0, 2)
	if s.provider != nil {
		providers = append(providers, s.provider)
	}
	if s.fallback != nil {
		providers = append(providers, s.fallback)
	}

	var lastErr error
	for _, p := range providers {
		quote, err := p.Quote(ctx, req)
		if err == nil {
			return quote, nil
		}
		if errors.Is(err, courier.ErrOutOfRange) {
			return DeliveryQuote{}, fmt.Errorf("%w: %v", ErrDeliveryOutOfRange, err)
		}
		lastErr = err
		s.logger(ctx, "delivery.quote.provider.failed", map[string]any{
			"provider": p.Name(),
			"error":    err.Error(),
		})
	}
	return DeliveryQuote{}, fmt.Errorf("%w: %v", ErrDeliveryUnavailable, lastErr)
}

func (s *deliveryService) Dispatch(ctx context.Context, order Order) (string, error) {
	if order.DeliveryAddress == nil {
		return "", fmt.Errorf("%w: order has no delivery address", ErrDeliveryInvalidInput)
	}
	if s.provider == nil {
		return "", ErrDeliveryUnavailable
	}

	tenant, err := s.tenants.GetTenant(ctx, order.TenantID)
	if err != nil {
		return "", err
	}

	delivery, err := s.provider.CreateDelivery(ctx, courier.DispatchRequest{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		TenantID:    order.TenantID,
		Pickup:      tenant.Location,
		Dropoff:     *order.DeliveryAddress,
		Contact:     order.Contact,
		TipCents:    order.Breakdown.Tip,
	})
	if err != nil {
		return "", err
	}
	return delivery.ID, nil
}

// AddressFingerprint normalises an address into a stable cache key: Unicode
// NFKC form, lowercased, with whitespace runs collapsed. Two renderings of
// the same address hit the same cached quote.
func AddressFingerprint(address Address) string {
	line := address.SingleLine()
	if line == "" {
		line = fmt.Sprintf("%.6f,%.6f", address.Lat, address.Lng)
	}
	folded := strings.ToLower(norm.NFKC.String(line))
	return strings.Join(strings.Fields(folded), " ")
}

type deliveryQuoteCache struct {
	mu      sync.Mutex
	entries map[string]deliveryQuoteCacheEntry
	ttl     time.Duration
	now     func() time.Time
}

type deliveryQuoteCacheEntry struct {
	quote     DeliveryQuote
	expiresAt time.Time
}

func newDeliveryQuoteCache(ttl time.Duration, now func() time.Time) *deliveryQuoteCache {
	return &deliveryQuoteCache{
		entries: make(map[string]deliveryQuoteCacheEntry),
		ttl:     ttl,
		now:     now,
	}
}

func (c *deliveryQuoteCache) get(key string) (DeliveryQuote, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return DeliveryQuote{}, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return DeliveryQuote{}, false
	}
	return entry.quote, true
}

func (c *deliveryQuoteCache) set(key string, quote DeliveryQuote) {
	c.mu.Lock()
	c.entries[key] = deliveryQuoteCacheEntry{
		quote:     quote,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
}
