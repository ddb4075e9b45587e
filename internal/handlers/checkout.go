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

const idempotencyKeyHeader = "Idempotency-Key"

// CheckoutHandlers turns the authenticated user's cart into a placed order.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers the checkout endpoint under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrder)
}

type checkoutRequest struct {
	Contact       contactPayload `json:"contact"`
	PaymentMethod string         `json:"payment_method"`
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSONBody(r, defaultMaxBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	order, err := h.checkout.PlaceOrder(ctx, services.PlaceOrderCommand{
		TenantID: tenantIDFromRequest(r),
		UserID:   identity.UID,
		Contact: domain.CustomerContact{
			Name:  strings.TrimSpace(req.Contact.Name),
			Phone: strings.TrimSpace(req.Contact.Phone),
			Email: strings.TrimSpace(req.Contact.Email),
		},
		PaymentMethod:  strings.TrimSpace(req.PaymentMethod),
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"order": buildOrderPayload(order)})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutCartEmpty):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutStaleQuote):
		httpx.WriteError(ctx, w, httpx.NewError("delivery_quote_expired", "delivery quote expired; refresh the cart and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "payment could not be completed", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrCartMenuItemUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("menu_item_unavailable", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has changed; refresh and retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to place order", http.StatusInternalServerError))
	}
}
