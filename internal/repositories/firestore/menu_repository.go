package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/forkline/api/internal/domain"
	pfirestore "github.com/forkline/api/internal/platform/firestore"
	"github.com/forkline/api/internal/repositories"
)

// MenuRepository persists menu items under
// restaurants/{tenantID}/menuItems/{sku}.
type MenuRepository struct {
	provider *pfirestore.Provider
}

// NewMenuRepository constructs a Firestore-backed menu repository.
func NewMenuRepository(provider *pfirestore.Provider) (*MenuRepository, error) {
	if provider == nil {
		return nil, errors.New("menu repository requires firestore provider")
	}
	return &MenuRepository{provider: provider}, nil
}

func (r *MenuRepository) base(tenantID string) *pfirestore.BaseRepository[menuItemDocument] {
	return pfirestore.NewBaseRepository[menuItemDocument](r.provider, tenantScopedCollection(tenantID, menuSubcollection))
}

func (r *MenuRepository) GetItem(ctx context.Context, tenantID, sku string) (domain.MenuItem, error) {
	if r == nil || r.provider == nil {
		return domain.MenuItem{}, errors.New("menu repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	key := strings.TrimSpace(sku)
	if tid == "" || key == "" {
		return domain.MenuItem{}, errors.New("menu repository: tenant id and sku are required")
	}

	doc, err := r.base(tid).Get(ctx, key)
	if err != nil {
		return domain.MenuItem{}, err
	}
	return decodeMenuItem(tid, doc), nil
}

func (r *MenuRepository) ListItems(ctx context.Context, tenantID string, availableOnly bool) ([]domain.MenuItem, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("menu repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	if tid == "" {
		return nil, errors.New("menu repository: tenant id is required")
	}

	docs, err := r.base(tid).Query(ctx, func(query firestore.Query) firestore.Query {
		if availableOnly {
			query = query.Where("available", "==", true)
		}
		return query
	})
	if err != nil {
		return nil, err
	}

	items := make([]domain.MenuItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeMenuItem(tid, doc))
	}
	return items, nil
}

func (r *MenuRepository) UpsertItem(ctx context.Context, item domain.MenuItem) (domain.MenuItem, error) {
	if r == nil || r.provider == nil {
		return domain.MenuItem{}, errors.New("menu repository not initialised")
	}
	tid := strings.TrimSpace(item.TenantID)
	key := strings.TrimSpace(item.SKU)
	if tid == "" || key == "" {
		return domain.MenuItem{}, errors.New("menu repository: tenant id and sku are required")
	}

	if _, err := r.base(tid).Set(ctx, key, encodeMenuItem(item)); err != nil {
		return domain.MenuItem{}, err
	}
	return item, nil
}

func (r *MenuRepository) DeleteItem(ctx context.Context, tenantID, sku string) error {
	if r == nil || r.provider == nil {
		return errors.New("menu repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	key := strings.TrimSpace(sku)
	if tid == "" || key == "" {
		return errors.New("menu repository: tenant id and sku are required")
	}

	ref, err := r.base(tid).DocumentRef(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("menuItems.delete", err)
	}
	return nil
}

type menuItemDocument struct {
	Name           string                  `firestore:"name"`
	Description    string                  `firestore:"description,omitempty"`
	PriceCents     int64                   `firestore:"priceCents"`
	Unit           string                  `firestore:"unit"`
	Category       string                  `firestore:"category,omitempty"`
	ModifierGroups []modifierGroupDocument `firestore:"modifierGroups,omitempty"`
	Available      bool                    `firestore:"available"`
	ImagePath      string                  `firestore:"imagePath,omitempty"`
	CreatedAt      time.Time               `firestore:"createdAt"`
	UpdatedAt      time.Time               `firestore:"updatedAt"`
}

type modifierGroupDocument struct {
	ID      string             `firestore:"id"`
	Name    string             `firestore:"name"`
	MinPick int                `firestore:"minPick"`
	MaxPick int                `firestore:"maxPick"`
	Options []modifierDocument `firestore:"options,omitempty"`
}

func encodeMenuItem(item domain.MenuItem) menuItemDocument {
	doc := menuItemDocument{
		Name:        item.Name,
		Description: item.Description,
		PriceCents:  item.PriceCents,
		Unit:        string(item.Unit),
		Category:    item.Category,
		Available:   item.Available,
		ImagePath:   item.ImagePath,
		CreatedAt:   normalizeTime(item.CreatedAt),
		UpdatedAt:   normalizeTime(item.UpdatedAt),
	}
	for _, group := range item.ModifierGroups {
		doc.ModifierGroups = append(doc.ModifierGroups, modifierGroupDocument{
			ID:      group.ID,
			Name:    group.Name,
			MinPick: group.MinPick,
			MaxPick: group.MaxPick,
			Options: encodeModifiers(group.Options),
		})
	}
	return doc
}

func decodeMenuItem(tenantID string, doc pfirestore.Document[menuItemDocument]) domain.MenuItem {
	item := domain.MenuItem{
		SKU:         doc.ID,
		TenantID:    tenantID,
		Name:        doc.Data.Name,
		Description: doc.Data.Description,
		PriceCents:  doc.Data.PriceCents,
		Unit:        domain.NormalizePriceUnit(doc.Data.Unit),
		Category:    doc.Data.Category,
		Available:   doc.Data.Available,
		ImagePath:   doc.Data.ImagePath,
		CreatedAt:   doc.Data.CreatedAt,
		UpdatedAt:   doc.Data.UpdatedAt,
	}
	for _, group := range doc.Data.ModifierGroups {
		item.ModifierGroups = append(item.ModifierGroups, domain.ModifierGroup{
			ID:      group.ID,
			Name:    group.Name,
			MinPick: group.MinPick,
			MaxPick: group.MaxPick,
			Options: decodeModifiers(group.Options),
		})
	}
	return item
}

var _ repositories.MenuRepository = (*MenuRepository)(nil)
