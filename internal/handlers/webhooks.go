package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/forkline/api/internal/platform/httpx"
	"github.com/forkline/api/internal/services"
)

// WebhookHandlers ingests status events from the courier and POS feeds. Each
// feed carries its own guard: couriers sign requests with HMAC, the POS
// bridge presents Google-signed OIDC tokens.
type WebhookHandlers struct {
	orders       services.OrderService
	courierGuard func(http.Handler) http.Handler
	posGuard     func(http.Handler) http.Handler
}

// WebhookOption customises the webhook handlers.
type WebhookOption func(*WebhookHandlers)

// WithCourierGuard installs the middleware protecting the courier feed.
func WithCourierGuard(mw func(http.Handler) http.Handler) WebhookOption {
	return func(h *WebhookHandlers) {
		h.courierGuard = mw
	}
}

// WithPOSGuard installs the middleware protecting the POS feed.
func WithPOSGuard(mw func(http.Handler) http.Handler) WebhookOption {
	return func(h *WebhookHandlers) {
		h.posGuard = mw
	}
}

// NewWebhookHandlers constructs the webhook handlers.
func NewWebhookHandlers(orders services.OrderService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.courierGuard != nil {
		r.With(h.courierGuard).Post("/courier", h.courierEvent)
	} else {
		r.Post("/courier", h.courierEvent)
	}
	if h.posGuard != nil {
		r.With(h.posGuard).Post("/pos", h.posEvent)
	} else {
		r.Post("/pos", h.posEvent)
	}
}

type webhookEventRequest struct {
	OrderID    string `json:"order_id"`
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status"`
	Note       string `json:"note"`
}

func (h *WebhookHandlers) courierEvent(w http.ResponseWriter, r *http.Request) {
	h.applyEvent(w, r, "courier")
}

func (h *WebhookHandlers) posEvent(w http.ResponseWriter, r *http.Request) {
	h.applyEvent(w, r, "pos")
}

func (h *WebhookHandlers) applyEvent(w http.ResponseWriter, r *http.Request, source string) {
	ctx := r.Context()

	var req webhookEventRequest
	if err := decodeJSONBody(r, defaultMaxBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_id is required", http.StatusBadRequest))
		return
	}

	note := strings.TrimSpace(req.Note)
	if deliveryID := strings.TrimSpace(req.DeliveryID); deliveryID != "" && note == "" {
		note = "delivery " + deliveryID
	}

	order, err := h.orders.ApplyStatusUpdate(ctx, services.StatusUpdateCommand{
		TenantID:  tenantIDFromRequest(r),
		OrderID:   orderID,
		RawStatus: strings.TrimSpace(req.Status),
		Source:    source,
		Note:      note,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"order_id": order.ID,
		"status":   string(order.Status),
	})
}
