package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/forkline/api/internal/domain"
	pfirestore "github.com/forkline/api/internal/platform/firestore"
	"github.com/forkline/api/internal/repositories"
)

// TenantRepository reads restaurant records from the restaurants collection.
type TenantRepository struct {
	base *pfirestore.BaseRepository[tenantDocument]
}

// NewTenantRepository constructs a Firestore-backed tenant repository.
func NewTenantRepository(provider *pfirestore.Provider) (*TenantRepository, error) {
	if provider == nil {
		return nil, errors.New("tenant repository requires firestore provider")
	}
	return &TenantRepository{
		base: pfirestore.NewBaseRepository[tenantDocument](provider, tenantCollection),
	}, nil
}

func (r *TenantRepository) GetTenant(ctx context.Context, tenantID string) (domain.Tenant, error) {
	if r == nil || r.base == nil {
		return domain.Tenant{}, errors.New("tenant repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	if tid == "" {
		return domain.Tenant{}, errors.New("tenant repository: tenant id is required")
	}

	doc, err := r.base.Get(ctx, tid)
	if err != nil {
		return domain.Tenant{}, err
	}

	tenant := domain.Tenant{
		ID:              doc.ID,
		Name:            doc.Data.Name,
		Currency:        strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
		StripeAccountID: doc.Data.StripeAccountID,
		CreatedAt:       doc.Data.CreatedAt,
		UpdatedAt:       doc.Data.UpdatedAt,
	}
	if addr := decodeAddress(doc.Data.Location); addr != nil {
		tenant.Location = *addr
	}
	tenant.Fees = domain.FeeConfig{
		TaxRate:             doc.Data.Fees.TaxRate,
		PlatformFeeRate:     doc.Data.Fees.PlatformFeeRate,
		ProcessorPercent:    doc.Data.Fees.ProcessorPercent,
		ProcessorFixedCents: doc.Data.Fees.ProcessorFixedCents,
		CourierTipCapCents:  doc.Data.Fees.CourierTipCapCents,
	}
	for _, zone := range doc.Data.Fees.DeliveryZones {
		tenant.Fees.DeliveryZones = append(tenant.Fees.DeliveryZones, domain.DeliveryZone{
			MaxDistanceKm: zone.MaxDistanceKm,
			FeeCents:      zone.FeeCents,
		})
	}
	return tenant, nil
}

type tenantDocument struct {
	Name            string            `firestore:"name"`
	Currency        string            `firestore:"currency"`
	StripeAccountID string            `firestore:"stripeAccountId,omitempty"`
	Location        *addressDocument  `firestore:"location,omitempty"`
	Fees            feeConfigDocument `firestore:"fees"`
	CreatedAt       time.Time         `firestore:"createdAt"`
	UpdatedAt       time.Time         `firestore:"updatedAt"`
}

type feeConfigDocument struct {
	TaxRate             float64                `firestore:"taxRate"`
	PlatformFeeRate     float64                `firestore:"platformFeeRate,omitempty"`
	ProcessorPercent    float64                `firestore:"processorPercent,omitempty"`
	ProcessorFixedCents int64                  `firestore:"processorFixedCents,omitempty"`
	CourierTipCapCents  int64                  `firestore:"courierTipCapCents,omitempty"`
	DeliveryZones       []deliveryZoneDocument `firestore:"deliveryZones,omitempty"`
}

type deliveryZoneDocument struct {
	MaxDistanceKm float64 `firestore:"maxDistanceKm"`
	FeeCents      int64   `firestore:"feeCents"`
}

var _ repositories.TenantRepository = (*TenantRepository)(nil)
