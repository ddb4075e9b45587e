package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/platform/auth"
	"github.com/forkline/api/internal/platform/httpx"
	"github.com/forkline/api/internal/services"
)

const maxCartBodySize = 16 * 1024

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{itemID}", h.updateItemQuantity)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Put("/fulfillment", h.setFulfillment)
	r.Put("/tip", h.setTip)
	r.Post("/promotion", h.applyPromotion)
	r.Delete("/promotion", h.removePromotion)
	r.Put("/delivery-address", h.setDeliveryAddress)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.GetCart(ctx, tenantIDFromRequest(r), identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, tenantIDFromRequest(r), identity.UID); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addItemRequest struct {
	SKU       string   `json:"sku"`
	Quantity  float64  `json:"quantity"`
	Modifiers []string `json:"modifiers"`
	Note      string   `json:"note"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		TenantID:  tenantIDFromRequest(r),
		UserID:    identity.UID,
		SKU:       req.SKU,
		Quantity:  req.Quantity,
		Modifiers: req.Modifiers,
		Note:      req.Note,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type updateItemRequest struct {
	Quantity float64 `json:"quantity"`
}

func (h *CartHandlers) updateItemQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateItemRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	cart, err := h.carts.UpdateItemQuantity(ctx, tenantIDFromRequest(r), identity.UID, itemID, req.Quantity)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	cart, err := h.carts.RemoveItem(ctx, tenantIDFromRequest(r), identity.UID, itemID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type setFulfillmentRequest struct {
	Fulfillment string `json:"fulfillment"`
}

func (h *CartHandlers) setFulfillment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req setFulfillmentRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	fulfillment := domain.NormalizeFulfillmentType(req.Fulfillment)
	cart, err := h.carts.SetFulfillment(ctx, tenantIDFromRequest(r), identity.UID, fulfillment)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type setTipRequest struct {
	Percent     float64 `json:"percent"`
	CustomCents int64   `json:"custom_cents"`
}

func (h *CartHandlers) setTip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req setTipRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cart, err := h.carts.SetTip(ctx, tenantIDFromRequest(r), identity.UID, domain.TipSelection{
		Percent:     req.Percent,
		CustomCents: req.CustomCents,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

type applyPromotionRequest struct {
	Code string `json:"code"`
}

func (h *CartHandlers) applyPromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req applyPromotionRequest
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cart, err := h.carts.ApplyPromotion(ctx, tenantIDFromRequest(r), identity.UID, req.Code)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removePromotion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	cart, err := h.carts.RemovePromotion(ctx, tenantIDFromRequest(r), identity.UID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) setDeliveryAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addressPayload
	if err := decodeJSONBody(r, maxCartBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	cart, err := h.carts.SetDeliveryAddress(ctx, tenantIDFromRequest(r), identity.UID, req.toDomain())
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartMenuItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("menu_item_unavailable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrPromotionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_found", "promotion code not found", http.StatusNotFound))
	case errors.Is(err, services.ErrPromotionInactive),
		errors.Is(err, services.ErrPromotionMinSubtotal),
		errors.Is(err, services.ErrPromotionInvalidCode):
		httpx.WriteError(ctx, w, httpx.NewError("promotion_not_applicable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDeliveryOutOfRange):
		httpx.WriteError(ctx, w, httpx.NewError("delivery_out_of_range", "address is outside the delivery area", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrDeliveryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrDeliveryUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("delivery_unavailable", "courier quotes are currently unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID              string                `json:"id"`
	TenantID        string                `json:"restaurant_id"`
	UserID          string                `json:"user_id"`
	Currency        string                `json:"currency"`
	Fulfillment     string                `json:"fulfillment"`
	ItemsCount      int                   `json:"items_count"`
	Items           []cartItemPayload     `json:"items"`
	Tip             tipPayload            `json:"tip"`
	Promotion       *cartPromotionPayload `json:"promotion,omitempty"`
	DeliveryAddress *addressPayload       `json:"delivery_address,omitempty"`
	DeliveryQuote   *quotePayload         `json:"delivery_quote,omitempty"`
	Estimate        *breakdownPayload     `json:"estimate,omitempty"`
	UpdatedAt       string                `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ID        string            `json:"id"`
	SKU       string            `json:"sku"`
	Name      string            `json:"name"`
	UnitPrice int64             `json:"unit_price"`
	Unit      string            `json:"unit"`
	Quantity  float64           `json:"quantity"`
	Modifiers []modifierPayload `json:"modifiers,omitempty"`
	Note      string            `json:"note,omitempty"`
	AddedAt   string            `json:"added_at,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

type tipPayload struct {
	Percent     float64 `json:"percent"`
	CustomCents int64   `json:"custom_cents"`
}

type cartPromotionPayload struct {
	PromotionID   string `json:"promotion_id"`
	Code          string `json:"code"`
	DiscountCents int64  `json:"discount_cents"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:          strings.TrimSpace(cart.ID),
		TenantID:    strings.TrimSpace(cart.TenantID),
		UserID:      strings.TrimSpace(cart.UserID),
		Currency:    strings.ToUpper(strings.TrimSpace(cart.Currency)),
		Fulfillment: string(cart.Fulfillment),
		ItemsCount:  len(cart.Items),
		Items:       buildCartItems(cart.Items),
		Tip: tipPayload{
			Percent:     cart.Tip.Percent,
			CustomCents: cart.Tip.CustomCents,
		},
	}

	if cart.Promotion != nil {
		payload.Promotion = &cartPromotionPayload{
			PromotionID:   cart.Promotion.PromotionID,
			Code:          cart.Promotion.Code,
			DiscountCents: cart.Promotion.DiscountCents,
		}
	}
	if cart.DeliveryAddress != nil {
		addr := buildAddressPayload(*cart.DeliveryAddress)
		payload.DeliveryAddress = &addr
	}
	if cart.DeliveryQuote != nil {
		quote := buildQuotePayload(*cart.DeliveryQuote)
		payload.DeliveryQuote = &quote
	}
	if cart.Estimate != nil {
		estimate := buildBreakdownPayload(*cart.Estimate)
		payload.Estimate = &estimate
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}
	return payload
}

func buildCartItems(items []services.CartItem) []cartItemPayload {
	if len(items) == 0 {
		return []cartItemPayload{}
	}
	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		entry := cartItemPayload{
			ID:        strings.TrimSpace(item.ID),
			SKU:       strings.TrimSpace(item.SKU),
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Unit:      string(item.Unit),
			Quantity:  item.Quantity,
			Modifiers: buildModifierPayloads(item.Modifiers),
			Note:      item.Note,
		}
		if !item.AddedAt.IsZero() {
			entry.AddedAt = formatTime(item.AddedAt)
		}
		if !item.UpdatedAt.IsZero() {
			entry.UpdatedAt = formatTime(item.UpdatedAt)
		}
		payload = append(payload, entry)
	}
	return payload
}
