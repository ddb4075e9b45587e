package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/platform/auth"
	"github.com/forkline/api/internal/platform/httpx"
	"github.com/forkline/api/internal/repositories"
	"github.com/forkline/api/internal/services"
)

const maxMenuImageBody = 5 << 20

// AdminHandlers exposes the staff surface: menu CRUD, promotion CRUD, and
// manual order status updates.
type AdminHandlers struct {
	authn      *auth.Authenticator
	catalog    services.CatalogService
	promotions services.PromotionService
	orders     services.OrderService
	tenants    repositories.TenantRepository
}

// NewAdminHandlers constructs admin handlers restricted to staff and admin roles.
func NewAdminHandlers(authn *auth.Authenticator, catalog services.CatalogService, promotions services.PromotionService, orders services.OrderService, tenants repositories.TenantRepository) *AdminHandlers {
	return &AdminHandlers{
		authn:      authn,
		catalog:    catalog,
		promotions: promotions,
		orders:     orders,
		tenants:    tenants,
	}
}

// Routes registers the admin endpoints under the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}

	r.Get("/menu", h.listMenu)
	r.Get("/menu/{sku}", h.getMenuItem)
	r.Put("/menu/{sku}", h.upsertMenuItem)
	r.Delete("/menu/{sku}", h.deleteMenuItem)
	r.Post("/menu/{sku}/image", h.attachMenuImage)

	r.Get("/promotions", h.listPromotions)
	r.Post("/promotions", h.createPromotion)
	r.Put("/promotions/{promotionID}", h.updatePromotion)
	r.Delete("/promotions/{promotionID}", h.deletePromotion)

	r.Get("/fees", h.getFees)

	r.Post("/orders/{orderID}/status", h.updateOrderStatus)
}

func (h *AdminHandlers) listMenu(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	items, err := h.catalog.ListMenu(ctx, tenantIDFromRequest(r), true)
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

func (h *AdminHandlers) getMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	item, err := h.catalog.GetItem(ctx, tenantIDFromRequest(r), strings.TrimSpace(chi.URLParam(r, "sku")))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildMenuItemPayload(item)})
}

type upsertMenuItemRequest struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	PriceCents     int64                  `json:"price_cents"`
	Unit           string                 `json:"unit"`
	Category       string                 `json:"category"`
	ModifierGroups []modifierGroupPayload `json:"modifier_groups"`
	Available      bool                   `json:"available"`
}

func (h *AdminHandlers) upsertMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req upsertMenuItemRequest
	if err := decodeJSONBody(r, defaultMaxBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	item := domain.MenuItem{
		SKU:         strings.TrimSpace(chi.URLParam(r, "sku")),
		TenantID:    tenantIDFromRequest(r),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		PriceCents:  req.PriceCents,
		Unit:        domain.PriceUnit(strings.TrimSpace(req.Unit)),
		Category:    strings.TrimSpace(req.Category),
		Available:   req.Available,
	}
	for _, group := range req.ModifierGroups {
		options := make([]domain.Modifier, 0, len(group.Options))
		for _, opt := range group.Options {
			options = append(options, domain.Modifier{ID: opt.ID, Name: opt.Name, Price: opt.Price})
		}
		item.ModifierGroups = append(item.ModifierGroups, domain.ModifierGroup{
			ID:      group.ID,
			Name:    group.Name,
			MinPick: group.MinPick,
			MaxPick: group.MaxPick,
			Options: options,
		})
	}

	saved, err := h.catalog.UpsertItem(ctx, item)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildMenuItemPayload(saved)})
}

func (h *AdminHandlers) deleteMenuItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.catalog.DeleteItem(ctx, tenantIDFromRequest(r), strings.TrimSpace(chi.URLParam(r, "sku"))); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) attachMenuImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	contentType := strings.TrimSpace(r.Header.Get("Content-Type"))
	if contentType == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "Content-Type header is required", http.StatusBadRequest))
		return
	}
	if r.Body == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "image body is required", http.StatusBadRequest))
		return
	}

	item, err := h.catalog.AttachImage(ctx, tenantIDFromRequest(r), strings.TrimSpace(chi.URLParam(r, "sku")), services.ImageUpload{
		ContentType: contentType,
		Size:        r.ContentLength,
		Body:        http.MaxBytesReader(w, r.Body, maxMenuImageBody),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildMenuItemPayload(item)})
}

func (h *AdminHandlers) listPromotions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	promos, err := h.promotions.ListPromotions(ctx, tenantIDFromRequest(r))
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	payload := make([]promotionPayload, 0, len(promos))
	for _, promo := range promos {
		payload = append(payload, buildPromotionPayload(promo))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"promotions": payload})
}

type promotionRequest struct {
	Code             string `json:"code"`
	Type             string `json:"type"`
	Value            int64  `json:"value"`
	MaxDiscountCents int64  `json:"max_discount_cents"`
	MinSubtotalCents int64  `json:"min_subtotal_cents"`
	StartsAt         string `json:"starts_at"`
	EndsAt           string `json:"ends_at"`
	Enabled          bool   `json:"enabled"`
}

func (h *AdminHandlers) createPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	promo, err := h.decodePromotion(r, "")
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	created, err := h.promotions.CreatePromotion(ctx, promo)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"promotion": buildPromotionPayload(created)})
}

func (h *AdminHandlers) updatePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	promo, err := h.decodePromotion(r, strings.TrimSpace(chi.URLParam(r, "promotionID")))
	if err != nil {
		writeBodyError(w, r, err)
		return
	}

	updated, err := h.promotions.UpdatePromotion(ctx, promo)
	if err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"promotion": buildPromotionPayload(updated)})
}

func (h *AdminHandlers) deletePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.promotions.DeletePromotion(ctx, tenantIDFromRequest(r), strings.TrimSpace(chi.URLParam(r, "promotionID"))); err != nil {
		writePromotionError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) decodePromotion(r *http.Request, promotionID string) (domain.Promotion, error) {
	var req promotionRequest
	if err := decodeJSONBody(r, defaultMaxBodySize, &req); err != nil {
		return domain.Promotion{}, err
	}

	promo := domain.Promotion{
		ID:               promotionID,
		TenantID:         tenantIDFromRequest(r),
		Code:             strings.TrimSpace(req.Code),
		Type:             domain.PromotionType(strings.TrimSpace(req.Type)),
		Value:            req.Value,
		MaxDiscountCents: req.MaxDiscountCents,
		MinSubtotalCents: req.MinSubtotalCents,
		Enabled:          req.Enabled,
	}

	var err error
	if promo.StartsAt, err = parseOptionalTime(req.StartsAt); err != nil {
		return domain.Promotion{}, errors.New("starts_at must be RFC 3339")
	}
	if promo.EndsAt, err = parseOptionalTime(req.EndsAt); err != nil {
		return domain.Promotion{}, errors.New("ends_at must be RFC 3339")
	}
	return promo, nil
}

func parseOptionalTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

type feeConfigPayload struct {
	TaxRate             float64               `json:"tax_rate"`
	PlatformFeeRate     float64               `json:"platform_fee_rate"`
	ProcessorPercent    float64               `json:"processor_percent"`
	ProcessorFixedCents int64                 `json:"processor_fixed_cents"`
	CourierTipCapCents  int64                 `json:"courier_tip_cap_cents"`
	DeliveryZones       []deliveryZonePayload `json:"delivery_zones,omitempty"`
}

type deliveryZonePayload struct {
	MaxDistanceKm float64 `json:"max_distance_km"`
	FeeCents      int64   `json:"fee_cents"`
}

func (h *AdminHandlers) getFees(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.tenants == nil {
		httpx.WriteError(ctx, w, httpx.NewError("fees_unavailable", "fee configuration is not available", http.StatusServiceUnavailable))
		return
	}

	tenant, err := h.tenants.GetTenant(ctx, tenantIDFromRequest(r))
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			httpx.WriteError(ctx, w, httpx.NewError("tenant_not_found", "restaurant not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("fees_error", "failed to load fee configuration", http.StatusInternalServerError))
		return
	}

	fees := tenant.Fees.WithDefaults()
	payload := feeConfigPayload{
		TaxRate:             fees.TaxRate,
		PlatformFeeRate:     fees.PlatformFeeRate,
		ProcessorPercent:    fees.ProcessorPercent,
		ProcessorFixedCents: fees.ProcessorFixedCents,
		CourierTipCapCents:  fees.CourierTipCapCents,
	}
	for _, zone := range fees.DeliveryZones {
		payload.DeliveryZones = append(payload.DeliveryZones, deliveryZonePayload{
			MaxDistanceKm: zone.MaxDistanceKm,
			FeeCents:      zone.FeeCents,
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"fees": payload, "currency": tenant.Currency})
}

type statusUpdateRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *AdminHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req statusUpdateRequest
	if err := decodeJSONBody(r, defaultMaxBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.orders.ApplyStatusUpdate(ctx, services.StatusUpdateCommand{
		TenantID:  tenantIDFromRequest(r),
		OrderID:   strings.TrimSpace(chi.URLParam(r, "orderID")),
		RawStatus: strings.TrimSpace(req.Status),
		Source:    "admin",
		Note:      strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func writePromotionError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrPromotionInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_found", "promotion not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_promotion_code", err.Error(), http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("promotion_error", "promotion operation failed", http.StatusInternalServerError))
	}
}

type promotionPayload struct {
	ID               string `json:"id"`
	Code             string `json:"code"`
	Type             string `json:"type"`
	Value            int64  `json:"value"`
	MaxDiscountCents int64  `json:"max_discount_cents,omitempty"`
	MinSubtotalCents int64  `json:"min_subtotal_cents,omitempty"`
	StartsAt         string `json:"starts_at,omitempty"`
	EndsAt           string `json:"ends_at,omitempty"`
	Enabled          bool   `json:"enabled"`
	CreatedAt        string `json:"created_at,omitempty"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

func buildPromotionPayload(promo domain.Promotion) promotionPayload {
	return promotionPayload{
		ID:               promo.ID,
		Code:             promo.Code,
		Type:             string(promo.Type),
		Value:            promo.Value,
		MaxDiscountCents: promo.MaxDiscountCents,
		MinSubtotalCents: promo.MinSubtotalCents,
		StartsAt:         formatTime(promo.StartsAt),
		EndsAt:           formatTime(promo.EndsAt),
		Enabled:          promo.Enabled,
		CreatedAt:        formatTime(promo.CreatedAt),
		UpdatedAt:        formatTime(promo.UpdatedAt),
	}
}
