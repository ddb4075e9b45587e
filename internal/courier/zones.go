package courier

import (
	"context"
	"fmt"
	"math"
	"sort"

	domain "github.com/forkline/api/internal/domain"
)

const earthRadiusKm = 6371.0

// ZoneEstimator prices deliveries from the tenant's zone schedule:
// straight-line distance against ascending thresholds, flat fee per zone,
// unavailable beyond the last zone. It performs no dispatching of its own;
// CreateDelivery reports unavailable so callers keep orders in
// courier_requested until an operator intervenes.
type ZoneEstimator struct{}

// NewZoneEstimator constructs the estimator.
func NewZoneEstimator() *ZoneEstimator {
	return &ZoneEstimator{}
}

// Name identifies the provider in quotes and logs.
func (z *ZoneEstimator) Name() string {
	return "zones"
}

// Quote resolves the flat fee for the dropoff's zone.
func (z *ZoneEstimator) Quote(ctx context.Context, req QuoteRequest) (domain.DeliveryQuote, error) {
	if len(req.Zones) == 0 {
		return domain.DeliveryQuote{}, fmt.Errorf("%w: no delivery zones configured", ErrUnavailable)
	}
	if req.Pickup.Lat == 0 && req.Pickup.Lng == 0 {
		return domain.DeliveryQuote{}, fmt.Errorf("%w: pickup coordinates are required", ErrInvalidRequest)
	}
	if req.Dropoff.Lat == 0 && req.Dropoff.Lng == 0 {
		return domain.DeliveryQuote{}, fmt.Errorf("%w: dropoff coordinates are required", ErrInvalidRequest)
	}

	distance := HaversineKm(req.Pickup.Lat, req.Pickup.Lng, req.Dropoff.Lat, req.Dropoff.Lng)

	zones := append([]domain.DeliveryZone(nil), req.Zones...)
	sort.Slice(zones, func(i, j int) bool { return zones[i].MaxDistanceKm < zones[j].MaxDistanceKm })

	for _, zone := range zones {
		if distance <= zone.MaxDistanceKm {
			return domain.DeliveryQuote{
				Provider:   z.Name(),
				FeeCents:   zone.FeeCents,
				DistanceKm: distance,
			}, nil
		}
	}
	return domain.DeliveryQuote{}, fmt.Errorf("%w: %.1f km exceeds the last zone", ErrOutOfRange, distance)
}

// CreateDelivery is not supported by the zone estimator.
func (z *ZoneEstimator) CreateDelivery(ctx context.Context, req DispatchRequest) (Delivery, error) {
	return Delivery{}, fmt.Errorf("%w: zone estimator cannot dispatch couriers", ErrUnavailable)
}

// HaversineKm computes the great-circle distance between two coordinates.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

var _ Provider = (*ZoneEstimator)(nil)
