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

// CartRepository persists carts under restaurants/{tenantID}/carts/{userID}.
// One document per user; the items live inline since carts stay small.
type CartRepository struct {
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{provider: provider}, nil
}

func (r *CartRepository) base(tenantID string) *pfirestore.BaseRepository[cartDocument] {
	return pfirestore.NewBaseRepository[cartDocument](r.provider, tenantScopedCollection(tenantID, cartSubcollection))
}

// GetCart loads the cart for the tenant/user pair.
func (r *CartRepository) GetCart(ctx context.Context, tenantID, userID string) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	uid := strings.TrimSpace(userID)
	if tid == "" || uid == "" {
		return domain.Cart{}, errors.New("cart repository: tenant and user ids are required")
	}

	doc, err := r.base(tid).Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(tid, doc), nil
}

// UpsertCart writes the cart. A non-nil expectedUpdate turns the write into a
// compare-and-swap on the document's last update time.
func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart, expectedUpdate *time.Time) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	tid := strings.TrimSpace(cart.TenantID)
	uid := strings.TrimSpace(cart.UserID)
	if tid == "" || uid == "" {
		return domain.Cart{}, errors.New("cart repository: tenant and user ids are required")
	}

	doc := encodeCart(cart)
	base := r.base(tid)

	if expectedUpdate == nil || expectedUpdate.IsZero() {
		result, err := base.Set(ctx, uid, doc)
		if err != nil {
			return domain.Cart{}, err
		}
		saved := cart
		saved.ID = uid
		saved.UpdatedAt = result.UpdateTime
		return saved, nil
	}

	ref, err := base.DocumentRef(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	// Set replaces the whole document, so the last-update precondition is
	// enforced with a read inside the transaction.
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		if !snapshot.UpdateTime.Equal(expectedUpdate.UTC()) {
			return status.Error(codes.FailedPrecondition, "cart was modified concurrently")
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Cart{}, pfirestore.WrapError("carts.upsert", err)
	}

	saved := cart
	saved.ID = uid
	return saved, nil
}

// DeleteCart removes the user's cart. Deleting an absent cart reports not found.
func (r *CartRepository) DeleteCart(ctx context.Context, tenantID, userID string) error {
	if r == nil || r.provider == nil {
		return errors.New("cart repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	uid := strings.TrimSpace(userID)
	if tid == "" || uid == "" {
		return errors.New("cart repository: tenant and user ids are required")
	}

	ref, err := r.base(tid).DocumentRef(ctx, uid)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("carts.delete", err)
	}
	return nil
}

type cartDocument struct {
	Currency      string                 `firestore:"currency"`
	Fulfillment   string                 `firestore:"fulfillment"`
	Items         []cartItemDocument     `firestore:"items,omitempty"`
	TipPercent    float64                `firestore:"tipPercent,omitempty"`
	TipCustom     int64                  `firestore:"tipCustomCents,omitempty"`
	Promotion     *cartPromotionDocument `firestore:"promo,omitempty"`
	Address       *addressDocument       `firestore:"deliveryAddress,omitempty"`
	DeliveryQuote *deliveryQuoteDocument `firestore:"deliveryQuote,omitempty"`
	Estimate      *breakdownDocument     `firestore:"estimate,omitempty"`
	CreatedAt     time.Time              `firestore:"createdAt"`
	UpdatedAt     time.Time              `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ID        string             `firestore:"id"`
	SKU       string             `firestore:"sku"`
	Name      string             `firestore:"name"`
	UnitPrice int64              `firestore:"unitPrice"`
	Unit      string             `firestore:"unit"`
	Quantity  float64            `firestore:"quantity"`
	Modifiers []modifierDocument `firestore:"modifiers,omitempty"`
	Note      string             `firestore:"note,omitempty"`
	AddedAt   time.Time          `firestore:"addedAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartPromotionDocument struct {
	PromotionID   string `firestore:"promotionId"`
	Code          string `firestore:"code"`
	DiscountCents int64  `firestore:"discountCents"`
}

type deliveryQuoteDocument struct {
	ID         string    `firestore:"id"`
	Provider   string    `firestore:"provider"`
	FeeCents   int64     `firestore:"feeCents"`
	Currency   string    `firestore:"currency"`
	DistanceKm float64   `firestore:"distanceKm,omitempty"`
	ExpiresAt  time.Time `firestore:"expiresAt"`
}

func encodeCart(cart domain.Cart) cartDocument {
	doc := cartDocument{
		Currency:    strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Fulfillment: string(cart.Fulfillment),
		TipPercent:  cart.Tip.Percent,
		TipCustom:   cart.Tip.CustomCents,
		Address:     encodeAddress(cart.DeliveryAddress),
		CreatedAt:   normalizeTime(cart.CreatedAt),
		UpdatedAt:   normalizeTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ID:        item.ID,
			SKU:       item.SKU,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Unit:      string(item.Unit),
			Quantity:  item.Quantity,
			Modifiers: encodeModifiers(item.Modifiers),
			Note:      item.Note,
			AddedAt:   normalizeTime(item.AddedAt),
			UpdatedAt: normalizeTime(item.UpdatedAt),
		})
	}
	if cart.Promotion != nil {
		doc.Promotion = &cartPromotionDocument{
			PromotionID:   cart.Promotion.PromotionID,
			Code:          cart.Promotion.Code,
			DiscountCents: cart.Promotion.DiscountCents,
		}
	}
	if cart.DeliveryQuote != nil {
		doc.DeliveryQuote = &deliveryQuoteDocument{
			ID:         cart.DeliveryQuote.ID,
			Provider:   cart.DeliveryQuote.Provider,
			FeeCents:   cart.DeliveryQuote.FeeCents,
			Currency:   cart.DeliveryQuote.Currency,
			DistanceKm: cart.DeliveryQuote.DistanceKm,
			ExpiresAt:  normalizeTime(cart.DeliveryQuote.ExpiresAt),
		}
	}
	if cart.Estimate != nil {
		estimate := encodeBreakdown(*cart.Estimate)
		doc.Estimate = &estimate
	}
	return doc
}

func decodeCart(tenantID string, doc pfirestore.Document[cartDocument]) domain.Cart {
	cart := domain.Cart{
		ID:          doc.ID,
		TenantID:    tenantID,
		UserID:      doc.ID,
		Currency:    strings.ToUpper(strings.TrimSpace(doc.Data.Currency)),
		Fulfillment: domain.NormalizeFulfillmentType(doc.Data.Fulfillment),
		Tip: domain.TipSelection{
			Percent:     doc.Data.TipPercent,
			CustomCents: doc.Data.TipCustom,
		},
		DeliveryAddress: decodeAddress(doc.Data.Address),
		CreatedAt:       doc.Data.CreatedAt,
		UpdatedAt:       doc.UpdateTime,
	}
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.Data.UpdatedAt
	}
	for _, item := range doc.Data.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:        item.ID,
			SKU:       item.SKU,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Unit:      domain.NormalizePriceUnit(item.Unit),
			Quantity:  item.Quantity,
			Modifiers: decodeModifiers(item.Modifiers),
			Note:      item.Note,
			AddedAt:   item.AddedAt,
			UpdatedAt: item.UpdatedAt,
		})
	}
	if doc.Data.Promotion != nil {
		cart.Promotion = &domain.CartPromotion{
			PromotionID:   doc.Data.Promotion.PromotionID,
			Code:          doc.Data.Promotion.Code,
			DiscountCents: doc.Data.Promotion.DiscountCents,
		}
	}
	if doc.Data.DeliveryQuote != nil {
		cart.DeliveryQuote = &domain.DeliveryQuote{
			ID:         doc.Data.DeliveryQuote.ID,
			Provider:   doc.Data.DeliveryQuote.Provider,
			FeeCents:   doc.Data.DeliveryQuote.FeeCents,
			Currency:   doc.Data.DeliveryQuote.Currency,
			DistanceKm: doc.Data.DeliveryQuote.DistanceKm,
			ExpiresAt:  doc.Data.DeliveryQuote.ExpiresAt,
		}
	}
	if doc.Data.Estimate != nil {
		estimate := decodeBreakdown(*doc.Data.Estimate)
		cart.Estimate = &estimate
	}
	return cart
}

var _ repositories.CartRepository = (*CartRepository)(nil)
