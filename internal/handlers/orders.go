package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forkline/api/internal/platform/auth"
	"github.com/forkline/api/internal/platform/httpx"
	"github.com/forkline/api/internal/platform/pagination"
	platformstorage "github.com/forkline/api/internal/platform/storage"
	"github.com/forkline/api/internal/services"
)

// ReceiptSigner issues a signed download URL for an order's receipt PDF.
type ReceiptSigner interface {
	DownloadURL(ctx context.Context, tenantID, orderID, invoiceNumber, ownerID string, identity *auth.Identity) (platformstorage.SignedURLResult, error)
}

// OrderHandlers exposes the customer-facing order endpoints.
type OrderHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	receipts ReceiptSigner
}

// NewOrderHandlers constructs order handlers guarded by Firebase
// authentication. The receipt signer may be nil when receipt storage is not
// configured.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, receipts ReceiptSigner) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		orders:   orders,
		receipts: receipts,
	}
}

// Routes registers order endpoints under the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Get("/{orderID}/receipt", h.getReceipt)
	r.Post("/{orderID}/cancel", h.cancelOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: pagination.DefaultPageSize,
		MaxPageSize:     pagination.DefaultMaxPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.List(ctx, tenantIDFromRequest(r), identity.UID, services.Pagination{
		PageSize:  params.PageSize,
		PageToken: params.PageToken,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		payload = append(payload, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"orders":          payload,
		"next_page_token": page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Get(ctx, tenantIDFromRequest(r), orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	// Customers may only read their own orders; staff go through /admin.
	if order.UserID != identity.UID && !identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) getReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.receipts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("receipts_unavailable", "receipt downloads are not configured", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Get(ctx, tenantIDFromRequest(r), orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	result, err := h.receipts.DownloadURL(ctx, order.TenantID, order.ID, order.Number, order.UserID, identity)
	if err != nil {
		if errors.Is(err, platformstorage.ErrPermissionDenied) {
			httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("receipt_error", "failed to sign receipt url", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"url":        result.URL,
		"expires_at": formatTime(result.ExpiresAt),
	})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := decodeOptionalJSONBody(r, defaultMaxBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	order, err := h.orders.Cancel(ctx, tenantIDFromRequest(r), orderID, identity.UID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderCancelWindowClosed):
		httpx.WriteError(ctx, w, httpx.NewError("cancel_window_closed", "order can no longer be cancelled", http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_status_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}
