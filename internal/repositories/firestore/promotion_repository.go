package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/forkline/api/internal/domain"
	pfirestore "github.com/forkline/api/internal/platform/firestore"
	"github.com/forkline/api/internal/repositories"
)

// PromotionRepository persists promotion codes under
// restaurants/{tenantID}/promotions/{promotionID}.
type PromotionRepository struct {
	provider *pfirestore.Provider
}

// NewPromotionRepository constructs a Firestore-backed promotion repository.
func NewPromotionRepository(provider *pfirestore.Provider) (*PromotionRepository, error) {
	if provider == nil {
		return nil, errors.New("promotion repository requires firestore provider")
	}
	return &PromotionRepository{provider: provider}, nil
}

func (r *PromotionRepository) base(tenantID string) *pfirestore.BaseRepository[promotionDocument] {
	return pfirestore.NewBaseRepository[promotionDocument](r.provider, tenantScopedCollection(tenantID, promotionSubcollection))
}

// FindByCode looks a promotion up by its normalised code.
func (r *PromotionRepository) FindByCode(ctx context.Context, tenantID, code string) (domain.Promotion, error) {
	if r == nil || r.provider == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if tid == "" || normalized == "" {
		return domain.Promotion{}, errors.New("promotion repository: tenant id and code are required")
	}

	docs, err := r.base(tid).Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("code", "==", normalized).Limit(1)
	})
	if err != nil {
		return domain.Promotion{}, err
	}
	if len(docs) == 0 {
		return domain.Promotion{}, pfirestore.WrapError("promotions.findByCode",
			status.Errorf(codes.NotFound, "promotion %s not found", normalized))
	}
	return decodePromotion(tid, docs[0]), nil
}

func (r *PromotionRepository) ListPromotions(ctx context.Context, tenantID string) ([]domain.Promotion, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("promotion repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	if tid == "" {
		return nil, errors.New("promotion repository: tenant id is required")
	}

	docs, err := r.base(tid).Query(ctx, func(query firestore.Query) firestore.Query {
		return query.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	promotions := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		promotions = append(promotions, decodePromotion(tid, doc))
	}
	return promotions, nil
}

func (r *PromotionRepository) UpsertPromotion(ctx context.Context, promotion domain.Promotion) (domain.Promotion, error) {
	if r == nil || r.provider == nil {
		return domain.Promotion{}, errors.New("promotion repository not initialised")
	}
	tid := strings.TrimSpace(promotion.TenantID)
	pid := strings.TrimSpace(promotion.ID)
	if tid == "" || pid == "" {
		return domain.Promotion{}, errors.New("promotion repository: tenant and promotion ids are required")
	}

	if _, err := r.base(tid).Set(ctx, pid, encodePromotion(promotion)); err != nil {
		return domain.Promotion{}, err
	}
	return promotion, nil
}

func (r *PromotionRepository) DeletePromotion(ctx context.Context, tenantID, promotionID string) error {
	if r == nil || r.provider == nil {
		return errors.New("promotion repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	pid := strings.TrimSpace(promotionID)
	if tid == "" || pid == "" {
		return errors.New("promotion repository: tenant and promotion ids are required")
	}

	ref, err := r.base(tid).DocumentRef(ctx, pid)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("promotions.delete", err)
	}
	return nil
}

type promotionDocument struct {
	Code             string    `firestore:"code"`
	Type             string    `firestore:"type"`
	Value            int64     `firestore:"value"`
	MaxDiscountCents int64     `firestore:"maxDiscountCents,omitempty"`
	MinSubtotalCents int64     `firestore:"minSubtotalCents,omitempty"`
	StartsAt         time.Time `firestore:"startsAt,omitempty"`
	EndsAt           time.Time `firestore:"endsAt,omitempty"`
	Enabled          bool      `firestore:"enabled"`
	CreatedAt        time.Time `firestore:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func encodePromotion(promotion domain.Promotion) promotionDocument {
	return promotionDocument{
		Code:             strings.ToUpper(strings.TrimSpace(promotion.Code)),
		Type:             string(promotion.Type),
		Value:            promotion.Value,
		MaxDiscountCents: promotion.MaxDiscountCents,
		MinSubtotalCents: promotion.MinSubtotalCents,
		StartsAt:         normalizeTime(promotion.StartsAt),
		EndsAt:           normalizeTime(promotion.EndsAt),
		Enabled:          promotion.Enabled,
		CreatedAt:        normalizeTime(promotion.CreatedAt),
		UpdatedAt:        normalizeTime(promotion.UpdatedAt),
	}
}

func decodePromotion(tenantID string, doc pfirestore.Document[promotionDocument]) domain.Promotion {
	return domain.Promotion{
		ID:               doc.ID,
		TenantID:         tenantID,
		Code:             doc.Data.Code,
		Type:             domain.PromotionType(doc.Data.Type),
		Value:            doc.Data.Value,
		MaxDiscountCents: doc.Data.MaxDiscountCents,
		MinSubtotalCents: doc.Data.MinSubtotalCents,
		StartsAt:         doc.Data.StartsAt,
		EndsAt:           doc.Data.EndsAt,
		Enabled:          doc.Data.Enabled,
		CreatedAt:        doc.Data.CreatedAt,
		UpdatedAt:        doc.Data.UpdatedAt,
	}
}

var _ repositories.PromotionRepository = (*PromotionRepository)(nil)
