package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/platform/httpx"
	"github.com/forkline/api/internal/services"
)

// MenuHandlers serves the public, unauthenticated menu surface.
type MenuHandlers struct {
	catalog services.CatalogService
}

// NewMenuHandlers constructs the public menu handlers.
func NewMenuHandlers(catalog services.CatalogService) *MenuHandlers {
	return &MenuHandlers{catalog: catalog}
}

// Routes wires the menu endpoints onto the provided router.
func (h *MenuHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listMenu)
	r.Get("/{sku}", h.getItem)
}

func (h *MenuHandlers) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.catalog.ListMenu(ctx, tenantIDFromRequest(r), false)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]menuItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, buildMenuItemPayload(item))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": payload})
}

func (h *MenuHandlers) getItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sku := strings.TrimSpace(chi.URLParam(r, "sku"))
	item, err := h.catalog.GetItem(ctx, tenantIDFromRequest(r), sku)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	if !item.Available {
		httpx.WriteError(ctx, w, httpx.NewError("menu_item_not_found", "menu item not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildMenuItemPayload(item)})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("menu_item_not_found", "menu item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogImageTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("image_too_large", "image exceeds the allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, services.ErrCatalogImageUnsupported):
		httpx.WriteError(ctx, w, httpx.NewError("image_unsupported", "unsupported image content type", http.StatusUnsupportedMediaType))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "catalog operation failed", http.StatusInternalServerError))
	}
}

type menuItemPayload struct {
	SKU            string                 `json:"sku"`
	Name           string                 `json:"name"`
	Description    string                 `json:"description,omitempty"`
	PriceCents     int64                  `json:"price_cents"`
	Unit           string                 `json:"unit"`
	Category       string                 `json:"category,omitempty"`
	ModifierGroups []modifierGroupPayload `json:"modifier_groups,omitempty"`
	Available      bool                   `json:"available"`
	ImagePath      string                 `json:"image_path,omitempty"`
	CreatedAt      string                 `json:"created_at,omitempty"`
	UpdatedAt      string                 `json:"updated_at,omitempty"`
}

type modifierGroupPayload struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	MinPick int               `json:"min_pick"`
	MaxPick int               `json:"max_pick"`
	Options []modifierPayload `json:"options"`
}

func buildMenuItemPayload(item domain.MenuItem) menuItemPayload {
	payload := menuItemPayload{
		SKU:         item.SKU,
		Name:        item.Name,
		Description: item.Description,
		PriceCents:  item.PriceCents,
		Unit:        string(item.Unit),
		Category:    item.Category,
		Available:   item.Available,
		ImagePath:   item.ImagePath,
		CreatedAt:   formatTime(item.CreatedAt),
		UpdatedAt:   formatTime(item.UpdatedAt),
	}
	for _, group := range item.ModifierGroups {
		options := buildModifierPayloads(group.Options)
		if options == nil {
			options = []modifierPayload{}
		}
		payload.ModifierGroups = append(payload.ModifierGroups, modifierGroupPayload{
			ID:      group.ID,
			Name:    group.Name,
			MinPick: group.MinPick,
			MaxPick: group.MaxPick,
			Options: options,
		})
	}
	return payload
}
