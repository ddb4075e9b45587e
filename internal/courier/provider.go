// Package courier abstracts delivery providers behind a narrow interface: a
// fee quote for an address and a dispatch request once an order is ready for
// handoff. A zone-table estimator serves tenants without a courier API
// integration and doubles as the fallback when the API is unreachable.
package courier

import (
	"context"
	"errors"

	domain "github.com/forkline/api/internal/domain"
)

var (
	// ErrOutOfRange indicates the dropoff lies beyond the deliverable area.
	ErrOutOfRange = errors.New("courier: address out of delivery range")
	// ErrUnavailable indicates the provider cannot be reached or is not configured.
	ErrUnavailable = errors.New("courier: provider unavailable")
	// ErrInvalidRequest signals missing pickup or dropoff data.
	ErrInvalidRequest = errors.New("courier: invalid request")
)

// QuoteRequest asks for a delivery fee from pickup to dropoff. Zones carries
// the tenant's zone schedule for estimators that price locally.
type QuoteRequest struct {
	TenantID string
	Pickup   domain.Address
	Dropoff  domain.Address
	Zones    []domain.DeliveryZone
}

// DispatchRequest asks the provider to send a courier for a placed order.
type DispatchRequest struct {
	OrderID     string
	OrderNumber string
	TenantID    string
	Pickup      domain.Address
	Dropoff     domain.Address
	Contact     domain.CustomerContact
	TipCents    int64
}

// Delivery is the provider's record of a dispatched courier run.
type Delivery struct {
	ID       string
	Provider string
	Status   string
}

// Provider quotes and dispatches deliveries.
type Provider interface {
	Name() string
	Quote(ctx context.Context, req QuoteRequest) (domain.DeliveryQuote, error)
	CreateDelivery(ctx context.Context, req DispatchRequest) (Delivery, error)
}
