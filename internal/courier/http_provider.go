package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/forkline/api/internal/domain"
)

const defaultHTTPTimeout = 10 * time.Second

// HTTPProvider talks to an external courier dispatch API over REST. The
// API's fee is authoritative; no local recomputation happens.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPProviderConfig configures the adapter.
type HTTPProviderConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPProvider constructs the REST adapter.
func NewHTTPProvider(cfg HTTPProviderConfig) (*HTTPProvider, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("courier: base url is required")
	}
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "courier"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &HTTPProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		client:  client,
	}, nil
}

// Name identifies the provider in quotes and logs.
func (p *HTTPProvider) Name() string {
	return p.name
}

type quotePayload struct {
	TenantID string         `json:"tenantId"`
	Pickup   addressPayload `json:"pickup"`
	Dropoff  addressPayload `json:"dropoff"`
}

type addressPayload struct {
	Line1      string  `json:"line1,omitempty"`
	Line2      string  `json:"line2,omitempty"`
	City       string  `json:"city,omitempty"`
	Region     string  `json:"region,omitempty"`
	PostalCode string  `json:"postalCode,omitempty"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

func toAddressPayload(addr domain.Address) addressPayload {
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

type quoteResponse struct {
	ID         string    `json:"id"`
	FeeCents   int64     `json:"feeCents"`
	Currency   string    `json:"currency"`
	DistanceKm float64   `json:"distanceKm"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Quote requests a delivery fee quote from the courier API.
func (p *HTTPProvider) Quote(ctx context.Context, req QuoteRequest) (domain.DeliveryQuote, error) {
	payload := quotePayload{
		TenantID: req.TenantID,
		Pickup:   toAddressPayload(req.Pickup),
		Dropoff:  toAddressPayload(req.Dropoff),
	}

	var resp quoteResponse
	if err := p.post(ctx, "/v1/quotes", payload, &resp); err != nil {
		return domain.DeliveryQuote{}, err
	}
	return domain.DeliveryQuote{
		ID:         resp.ID,
		Provider:   p.name,
		FeeCents:   resp.FeeCents,
		Currency:   strings.ToUpper(strings.TrimSpace(resp.Currency)),
		DistanceKm: resp.DistanceKm,
		ExpiresAt:  resp.ExpiresAt,
	}, nil
}

type dispatchPayload struct {
	OrderID     string         `json:"orderId"`
	OrderNumber string         `json:"orderNumber"`
	TenantID    string         `json:"tenantId"`
	Pickup      addressPayload `json:"pickup"`
	Dropoff     addressPayload `json:"dropoff"`
	Contact     contactPayload `json:"contact"`
	TipCents    int64          `json:"tipCents"`
}

type contactPayload struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type dispatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateDelivery dispatches a courier for a placed order.
func (p *HTTPProvider) CreateDelivery(ctx context.Context, req DispatchRequest) (Delivery, error) {
	payload := dispatchPayload{
		OrderID:     req.OrderID,
		OrderNumber: req.OrderNumber,
		TenantID:    req.TenantID,
		Pickup:      toAddressPayload(req.Pickup),
		Dropoff:     toAddressPayload(req.Dropoff),
		Contact: contactPayload{
			Name:  req.Contact.Name,
			Phone: req.Contact.Phone,
			Email: req.Contact.Email,
		},
		TipCents: req.TipCents,
	}

	var resp dispatchResponse
	if err := p.post(ctx, "/v1/deliveries", payload, &resp); err != nil {
		return Delivery{}, err
	}
	return Delivery{ID: resp.ID, Provider: p.name, Status: resp.Status}, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("courier: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("courier: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return ErrOutOfRange
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrInvalidRequest, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("courier: decode response: %w", err)
	}
	return nil
}

var _ Provider = (*HTTPProvider)(nil)
