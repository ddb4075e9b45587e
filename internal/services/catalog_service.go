package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/repositories"
)

const maxMenuImageBytes = 5 << 20

var (
	// ErrCatalogInvalidInput signals a malformed menu item payload.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogItemNotFound indicates the SKU does not exist for the tenant.
	ErrCatalogItemNotFound = errors.New("catalog: menu item not found")
	// ErrCatalogImageTooLarge indicates the upload exceeds the size cap.
	ErrCatalogImageTooLarge = errors.New("catalog: image exceeds size limit")
	// ErrCatalogImageUnsupported indicates a content type outside the allowed set.
	ErrCatalogImageUnsupported = errors.New("catalog: unsupported image type")
)

// ImageStore persists menu images and returns the stored object path.
type ImageStore interface {
	SaveMenuImage(ctx context.Context, tenantID, sku string, upload ImageUpload) (string, error)
}

// CatalogServiceDeps bundles collaborators for the catalog service.
type CatalogServiceDeps struct {
	Menu     repositories.MenuRepository
	Images   ImageStore
	Sanitize func(string) string
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	menu     repositories.MenuRepository
	images   ImageStore
	sanitize func(string) string
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Menu == nil {
		return nil, errors.New("catalog service: menu repository is required")
	}

	sanitize := deps.Sanitize
	if sanitize == nil {
		sanitize = strings.TrimSpace
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		menu:     deps.Menu,
		images:   deps.Images,
		sanitize: sanitize,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *catalogService) ListMenu(ctx context.Context, tenantID string, includeUnavailable bool) ([]MenuItem, error) {
	tid := strings.TrimSpace(tenantID)
	if tid == "" {
		return nil, fmt.Errorf("%w: tenant id is required", ErrCatalogInvalidInput)
	}
	items, err := s.menu.ListItems(ctx, tid, !includeUnavailable)
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Category != items[j].Category {
			return items[i].Category < items[j].Category
		}
		return items[i].Name < items[j].Name
	})
	return items, nil
}

func (s *catalogService) GetItem(ctx context.Context, tenantID, sku string) (MenuItem, error) {
	tid := strings.TrimSpace(tenantID)
	key := strings.TrimSpace(sku)
	if tid == "" || key == "" {
		return MenuItem{}, fmt.Errorf("%w: tenant id and sku are required", ErrCatalogInvalidInput)
	}
	item, err := s.menu.GetItem(ctx, tid, key)
	if err != nil {
		if isRepoNotFound(err) {
			return MenuItem{}, fmt.Errorf("%w: %s", ErrCatalogItemNotFound, key)
		}
		return MenuItem{}, err
	}
	return item, nil
}

func (s *catalogService) UpsertItem(ctx context.Context, item MenuItem) (MenuItem, error) {
	normalized, err := s.normalizeItem(item)
	if err != nil {
		return MenuItem{}, err
	}

	now := s.clock()
	existing, err := s.menu.GetItem(ctx, normalized.TenantID, normalized.SKU)
	switch {
	case err == nil:
		normalized.CreatedAt = existing.CreatedAt
		if normalized.ImagePath == "" {
			normalized.ImagePath = existing.ImagePath
		}
	case isRepoNotFound(err):
		normalized.CreatedAt = now
	default:
		return MenuItem{}, err
	}
	normalized.UpdatedAt = now

	saved, err := s.menu.UpsertItem(ctx, normalized)
	if err != nil {
		return MenuItem{}, err
	}
	s.logger(ctx, "catalog.item.upserted", map[string]any{
		"tenantId": saved.TenantID,
		"sku":      saved.SKU,
	})
	return saved, nil
}

func (s *catalogService) DeleteItem(ctx context.Context, tenantID, sku string) error {
	tid := strings.TrimSpace(tenantID)
	key := strings.TrimSpace(sku)
	if tid == "" || key == "" {
		return fmt.Errorf("%w: tenant id and sku are required", ErrCatalogInvalidInput)
	}
	if err := s.menu.DeleteItem(ctx, tid, key); err != nil {
		if isRepoNotFound(err) {
			return fmt.Errorf("%w: %s", ErrCatalogItemNotFound, key)
		}
		return err
	}
	s.logger(ctx, "catalog.item.deleted", map[string]any{
		"tenantId": tid,
		"sku":      key,
	})
	return nil
}

func (s *catalogService) AttachImage(ctx context.Context, tenantID, sku string, upload ImageUpload) (MenuItem, error) {
	item, err := s.GetItem(ctx, tenantID, sku)
	if err != nil {
		return MenuItem{}, err
	}
	if s.images == nil {
		return MenuItem{}, errors.New("catalog: image storage is not configured")
	}
	if upload.Body == nil {
		return MenuItem{}, fmt.Errorf("%w: image body is required", ErrCatalogInvalidInput)
	}
	if upload.Size > maxMenuImageBytes {
		return MenuItem{}, fmt.Errorf("%w: %d bytes", ErrCatalogImageTooLarge, upload.Size)
	}
	if !isAllowedImageType(upload.ContentType) {
		return MenuItem{}, fmt.Errorf("%w: %s", ErrCatalogImageUnsupported, upload.ContentType)
	}

	path, err := s.images.SaveMenuImage(ctx, item.TenantID, item.SKU, upload)
	if err != nil {
		return MenuItem{}, fmt.Errorf("catalog: store image: %w", err)
	}

	item.ImagePath = path
	item.UpdatedAt = s.clock()
	saved, err := s.menu.UpsertItem(ctx, item)
	if err != nil {
		return MenuItem{}, err
	}
	s.logger(ctx, "catalog.item.image.attached", map[string]any{
		"tenantId": saved.TenantID,
		"sku":      saved.SKU,
		"path":     path,
	})
	return saved, nil
}

// normalizeItem trims and sanitises free-text fields, validates pricing and
// modifier groups, and normalises the price unit.
func (s *catalogService) normalizeItem(item MenuItem) (MenuItem, error) {
	item.TenantID = strings.TrimSpace(item.TenantID)
	item.SKU = strings.TrimSpace(item.SKU)
	item.Name = s.sanitize(item.Name)
	item.Description = s.sanitize(item.Description)
	item.Category = s.sanitize(item.Category)
	item.Unit = domain.NormalizePriceUnit(string(item.Unit))

	if item.TenantID == "" {
		return MenuItem{}, fmt.Errorf("%w: tenant id is required", ErrCatalogInvalidInput)
	}
	if item.SKU == "" {
		return MenuItem{}, fmt.Errorf("%w: sku is required", ErrCatalogInvalidInput)
	}
	if item.Name == "" {
		return MenuItem{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if item.PriceCents < 0 {
		return MenuItem{}, fmt.Errorf("%w: price must not be negative", ErrCatalogInvalidInput)
	}

	for gi := range item.ModifierGroups {
		group := &item.ModifierGroups[gi]
		group.ID = strings.TrimSpace(group.ID)
		group.Name = s.sanitize(group.Name)
		if group.ID == "" {
			return MenuItem{}, fmt.Errorf("%w: modifier group id is required", ErrCatalogInvalidInput)
		}
		if group.MinPick < 0 || (group.MaxPick > 0 && group.MaxPick < group.MinPick) {
			return MenuItem{}, fmt.Errorf("%w: modifier group %s has invalid pick bounds", ErrCatalogInvalidInput, group.ID)
		}
		for oi := range group.Options {
			option := &group.Options[oi]
			option.ID = strings.TrimSpace(option.ID)
			option.Name = s.sanitize(option.Name)
			if option.ID == "" {
				return MenuItem{}, fmt.Errorf("%w: modifier option id is required in group %s", ErrCatalogInvalidInput, group.ID)
			}
		}
	}
	return item, nil
}

func isAllowedImageType(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/png", "image/webp":
		return true
	default:
		return false
	}
}

var _ CatalogService = (*catalogService)(nil)
