package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/platform/auth"
	"github.com/forkline/api/internal/platform/httpx"
	"github.com/forkline/api/internal/services"
)

const defaultMaxBodySize = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeOptionalJSONBody decodes the body when present; an empty body is not
// an error.
func decodeOptionalJSONBody(r *http.Request, limit int64, out any) error {
	err := decodeJSONBody(r, limit, out)
	if errors.Is(err, errEmptyBody) {
		return nil
	}
	return err
}

func decodeJSONBody(r *http.Request, limit int64, out any) error {
	data, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// tenantIDFromRequest extracts the restaurant identifier from the route.
func tenantIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "tenantID"))
}

// requireIdentity resolves the authenticated principal or writes a 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

type addressPayload struct {
	Line1      string  `json:"line1,omitempty"`
	Line2      string  `json:"line2,omitempty"`
	City       string  `json:"city,omitempty"`
	Region     string  `json:"region,omitempty"`
	PostalCode string  `json:"postal_code,omitempty"`
	Lat        float64 `json:"lat,omitempty"`
	Lng        float64 `json:"lng,omitempty"`
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		Region:     strings.TrimSpace(addr.Region),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Lat:        addr.Lat,
		Lng:        addr.Lng,
	}
}

func (p addressPayload) toDomain() domain.Address {
	return domain.Address{
		Line1:      strings.TrimSpace(p.Line1),
		Line2:      strings.TrimSpace(p.Line2),
		City:       strings.TrimSpace(p.City),
		Region:     strings.TrimSpace(p.Region),
		PostalCode: strings.TrimSpace(p.PostalCode),
		Lat:        p.Lat,
		Lng:        p.Lng,
	}
}

type breakdownPayload struct {
	Subtotal             int64 `json:"subtotal"`
	Discount             int64 `json:"discount"`
	Tax                  int64 `json:"tax"`
	PlatformFee          int64 `json:"platform_fee"`
	DeliveryFee          int64 `json:"delivery_fee"`
	Tip                  int64 `json:"tip"`
	Total                int64 `json:"total"`
	ProcessorFeeEstimate int64 `json:"processor_fee_estimate,omitempty"`
	NetPayoutEstimate    int64 `json:"net_payout_estimate,omitempty"`
}

func buildBreakdownPayload(b domain.FeeBreakdown) breakdownPayload {
	return breakdownPayload{
		Subtotal:             b.Subtotal,
		Discount:             b.Discount,
		Tax:                  b.Tax,
		PlatformFee:          b.PlatformFee,
		DeliveryFee:          b.DeliveryFee,
		Tip:                  b.Tip,
		Total:                b.Total,
		ProcessorFeeEstimate: b.ProcessorFeeEstimate,
		NetPayoutEstimate:    b.NetPayoutEstimate,
	}
}

type modifierPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Price int64  `json:"price"`
}

func buildModifierPayloads(mods []domain.Modifier) []modifierPayload {
	if len(mods) == 0 {
		return nil
	}
	out := make([]modifierPayload, 0, len(mods))
	for _, m := range mods {
		out = append(out, modifierPayload{ID: m.ID, Name: m.Name, Price: m.Price})
	}
	return out
}

type quotePayload struct {
	ID         string  `json:"id"`
	Provider   string  `json:"provider"`
	FeeCents   int64   `json:"fee_cents"`
	Currency   string  `json:"currency"`
	DistanceKm float64 `json:"distance_km,omitempty"`
	ExpiresAt  string  `json:"expires_at,omitempty"`
}

func buildQuotePayload(q domain.DeliveryQuote) quotePayload {
	return quotePayload{
		ID:         q.ID,
		Provider:   q.Provider,
		FeeCents:   q.FeeCents,
		Currency:   q.Currency,
		DistanceKm: q.DistanceKm,
		ExpiresAt:  formatTime(q.ExpiresAt),
	}
}

type orderItemPayload struct {
	SKU             string            `json:"sku"`
	Name            string            `json:"name"`
	UnitPrice       int64             `json:"unit_price"`
	Quantity        float64           `json:"quantity"`
	DisplayQuantity string            `json:"display_quantity,omitempty"`
	Unit            string            `json:"unit"`
	Modifiers       []modifierPayload `json:"modifiers,omitempty"`
	Note            string            `json:"note,omitempty"`
	LineTotal       int64             `json:"line_total"`
}

type orderPayload struct {
	ID              string               `json:"id"`
	Number          string               `json:"number"`
	TenantID        string               `json:"restaurant_id"`
	UserID          string               `json:"user_id"`
	Fulfillment     string               `json:"fulfillment"`
	Status          string               `json:"status"`
	Items           []orderItemPayload   `json:"items"`
	Contact         contactPayload       `json:"contact"`
	DeliveryAddress *addressPayload      `json:"delivery_address,omitempty"`
	Breakdown       breakdownPayload     `json:"breakdown"`
	Currency        string               `json:"currency"`
	PromotionCode   string               `json:"promotion_code,omitempty"`
	History         []statusEntryPayload `json:"history,omitempty"`
	StatusTimes     map[string]string    `json:"status_times,omitempty"`
	CreatedAt       string               `json:"created_at,omitempty"`
	UpdatedAt       string               `json:"updated_at,omitempty"`
	CompletedAt     string               `json:"completed_at,omitempty"`
}

type contactPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type statusEntryPayload struct {
	Status string `json:"status"`
	Source string `json:"source,omitempty"`
	Note   string `json:"note,omitempty"`
	At     string `json:"at,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		Number:      order.Number,
		TenantID:    order.TenantID,
		UserID:      order.UserID,
		Fulfillment: string(order.Fulfillment),
		Status:      string(order.Status),
		Items:       make([]orderItemPayload, 0, len(order.Items)),
		Contact: contactPayload{
			Name:  order.Contact.Name,
			Phone: order.Contact.Phone,
			Email: order.Contact.Email,
		},
		Breakdown:     buildBreakdownPayload(order.Breakdown),
		Currency:      order.Currency,
		PromotionCode: order.PromotionCode,
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			SKU:             item.SKU,
			Name:            item.Name,
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			DisplayQuantity: item.DisplayQuantity,
			Unit:            string(item.Unit),
			Modifiers:       buildModifierPayloads(item.Modifiers),
			Note:            item.Note,
			LineTotal:       item.LineTotal,
		})
	}
	if order.DeliveryAddress != nil {
		addr := buildAddressPayload(*order.DeliveryAddress)
		payload.DeliveryAddress = &addr
	}
	if len(order.History) > 0 {
		payload.History = make([]statusEntryPayload, 0, len(order.History))
		for _, entry := range order.History {
			payload.History = append(payload.History, statusEntryPayload{
				Status: string(entry.Status),
				Source: entry.Source,
				Note:   entry.Note,
				At:     formatTime(entry.At),
			})
		}
	}
	if len(order.StatusTimes) > 0 {
		payload.StatusTimes = make(map[string]string, len(order.StatusTimes))
		for status, at := range order.StatusTimes {
			payload.StatusTimes[string(status)] = formatTime(at)
		}
	}
	if order.CompletedAt != nil {
		payload.CompletedAt = formatTime(*order.CompletedAt)
	}
	return payload
}
