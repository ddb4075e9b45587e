package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/repositories"
)

const promotionIDPrefix = "prm_"

var (
	// ErrPromotionInvalidCode signals an empty or malformed promotion code.
	ErrPromotionInvalidCode = errors.New("promotion: invalid code")
	// ErrPromotionNotFound indicates no promotion exists for the code.
	ErrPromotionNotFound = errors.New("promotion: not found")
	// ErrPromotionInactive indicates the promotion is disabled or outside its window.
	ErrPromotionInactive = errors.New("promotion: inactive")
	// ErrPromotionMinSubtotal indicates the cart subtotal is below the promotion's minimum.
	ErrPromotionMinSubtotal = errors.New("promotion: minimum subtotal not met")
	// ErrPromotionInvalidInput signals invalid admin CRUD data.
	ErrPromotionInvalidInput = errors.New("promotion: invalid input")
)

// PromotionServiceDeps bundles dependencies required to construct the promotion service.
type PromotionServiceDeps struct {
	Promotions  repositories.PromotionRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type promotionService struct {
	repo  repositories.PromotionRepository
	clock func() time.Time
	newID func() string
}

// NewPromotionService wires a PromotionService backed by the provided repository.
func NewPromotionService(deps PromotionServiceDeps) (PromotionService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("promotion service: promotion repository is required")
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
	return &promotionService{
		repo:  deps.Promotions,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *promotionService) Resolve(ctx context.Context, tenantID, code string, subtotalCents int64) (Promotion, int64, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return Promotion{}, 0, ErrPromotionInvalidCode
	}

	promotion, err := s.repo.FindByCode(ctx, strings.TrimSpace(tenantID), normalized)
	if err != nil {
		if isRepoNotFound(err) {
			return Promotion{}, 0, ErrPromotionNotFound
		}
		return Promotion{}, 0, err
	}

	now := s.clock()
	if !promotion.Enabled {
		return Promotion{}, 0, ErrPromotionInactive
	}
	if !promotion.StartsAt.IsZero() && now.Before(promotion.StartsAt) {
		return Promotion{}, 0, ErrPromotionInactive
	}
	if !promotion.EndsAt.IsZero() && now.After(promotion.EndsAt) {
		return Promotion{}, 0, ErrPromotionInactive
	}
	if promotion.MinSubtotalCents > 0 && subtotalCents < promotion.MinSubtotalCents {
		return Promotion{}, 0, ErrPromotionMinSubtotal
	}

	return promotion, promotion.ResolveDiscount(subtotalCents), nil
}

func (s *promotionService) ListPromotions(ctx context.Context, tenantID string) ([]Promotion, error) {
	return s.repo.ListPromotions(ctx, strings.TrimSpace(tenantID))
}

func (s *promotionService) CreatePromotion(ctx context.Context, promotion Promotion) (Promotion, error) {
	normalized, err := normalizePromotion(promotion)
	if err != nil {
		return Promotion{}, err
	}
	now := s.clock()
	normalized.ID = promotionIDPrefix + s.newID()
	normalized.CreatedAt = now
	normalized.UpdatedAt = now
	return s.repo.UpsertPromotion(ctx, normalized)
}

func (s *promotionService) UpdatePromotion(ctx context.Context, promotion Promotion) (Promotion, error) {
	if strings.TrimSpace(promotion.ID) == "" {
		return Promotion{}, fmt.Errorf("%w: promotion id is required", ErrPromotionInvalidInput)
	}
	normalized, err := normalizePromotion(promotion)
	if err != nil {
		return Promotion{}, err
	}
	normalized.UpdatedAt = s.clock()
	return s.repo.UpsertPromotion(ctx, normalized)
}

func (s *promotionService) DeletePromotion(ctx context.Context, tenantID, promotionID string) error {
	if strings.TrimSpace(promotionID) == "" {
		return fmt.Errorf("%w: promotion id is required", ErrPromotionInvalidInput)
	}
	return s.repo.DeletePromotion(ctx, strings.TrimSpace(tenantID), strings.TrimSpace(promotionID))
}

func normalizePromotion(promotion Promotion) (Promotion, error) {
	promotion.Code = strings.ToUpper(strings.TrimSpace(promotion.Code))
	if promotion.Code == "" {
		return Promotion{}, fmt.Errorf("%w: code is required", ErrPromotionInvalidInput)
	}
	switch promotion.Type {
	case domain.PromotionPercent:
		if promotion.Value <= 0 || promotion.Value > 100 {
			return Promotion{}, fmt.Errorf("%w: percent value must be within (0, 100]", ErrPromotionInvalidInput)
		}
	case domain.PromotionFixed:
		if promotion.Value <= 0 {
			return Promotion{}, fmt.Errorf("%w: fixed value must be positive", ErrPromotionInvalidInput)
		}
	default:
		return Promotion{}, fmt.Errorf("%w: unknown type %q", ErrPromotionInvalidInput, promotion.Type)
	}
	if promotion.MaxDiscountCents < 0 || promotion.MinSubtotalCents < 0 {
		return Promotion{}, fmt.Errorf("%w: caps must not be negative", ErrPromotionInvalidInput)
	}
	return promotion, nil
}
