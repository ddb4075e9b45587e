package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/forkline/api/internal/domain"
	"github.com/forkline/api/internal/platform/auth"
	"github.com/forkline/api/internal/platform/pagination"
	platformstorage "github.com/forkline/api/internal/platform/storage"
	"github.com/forkline/api/internal/services"
)

type stubOrderService struct {
	createFunc func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
	getFunc    func(ctx context.Context, tenantID, orderID string) (services.Order, error)
	listFunc   func(ctx context.Context, tenantID, userID string, pager services.Pagination) (domain.CursorPage[services.Order], error)
	applyFunc  func(ctx context.Context, cmd services.StatusUpdateCommand) (services.Order, error)
	cancelFunc func(ctx context.Context, tenantID, orderID, userID, reason string) (services.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	return s.createFunc(ctx, cmd)
}

func (s *stubOrderService) Get(ctx context.Context, tenantID, orderID string) (services.Order, error) {
	return s.getFunc(ctx, tenantID, orderID)
}

func (s *stubOrderService) List(ctx context.Context, tenantID, userID string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	return s.listFunc(ctx, tenantID, userID, pager)
}

func (s *stubOrderService) ApplyStatusUpdate(ctx context.Context, cmd services.StatusUpdateCommand) (services.Order, error) {
	return s.applyFunc(ctx, cmd)
}

func (s *stubOrderService) Cancel(ctx context.Context, tenantID, orderID, userID, reason string) (services.Order, error) {
	return s.cancelFunc(ctx, tenantID, orderID, userID, reason)
}

type stubReceiptSigner struct {
	downloadFunc func(ctx context.Context, tenantID, orderID, invoiceNumber, ownerID string, identity *auth.Identity) (platformstorage.SignedURLResult, error)
}

func (s *stubReceiptSigner) DownloadURL(ctx context.Context, tenantID, orderID, invoiceNumber, ownerID string, identity *auth.Identity) (platformstorage.SignedURLResult, error) {
	return s.downloadFunc(ctx, tenantID, orderID, invoiceNumber, ownerID, identity)
}

func newOrderTestRouter(service services.OrderService) chi.Router {
	return newOrderTestRouterWithReceipts(service, nil)
}

func newOrderTestRouterWithReceipts(service services.OrderService, receipts ReceiptSigner) chi.Router {
	handler := NewOrderHandlers(nil, service, receipts)
	router := chi.NewRouter()
	router.Route("/restaurants/{tenantID}/orders", handler.Routes)
	return router
}

func TestOrderHandlersListOrders(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	// Page tokens travel as base64 cursors end to end.
	pageToken, err := pagination.EncodeToken(pagination.Cursor{StartAfter: []any{"ord_0"}})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}

	service := &stubOrderService{
		listFunc: func(ctx context.Context, tenantID, userID string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
			if tenantID != "rest-1" || userID != "user-7" {
				t.Fatalf("unexpected scope %q/%q", tenantID, userID)
			}
			if pager.PageSize != 10 || pager.PageToken != pageToken {
				t.Fatalf("unexpected pagination: %#v", pager)
			}
			return domain.CursorPage[services.Order]{
				Items: []services.Order{
					{
						ID:        "ord_1",
						Number:    "FK-2025-000041",
						TenantID:  tenantID,
						UserID:    userID,
						Status:    domain.OrderStatusReady,
						CreatedAt: now,
					},
				},
				NextPageToken: "tok-2",
			}, nil
		},
	}

	router := newOrderTestRouter(service)
	req := authedRequest(http.MethodGet, "/restaurants/rest-1/orders?pageSize=10&pageToken="+pageToken, "", "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Orders        []orderPayload `json:"orders"`
		NextPageToken string         `json:"next_page_token"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Orders) != 1 || resp.Orders[0].Number != "FK-2025-000041" {
		t.Fatalf("unexpected orders payload: %#v", resp.Orders)
	}
	if resp.NextPageToken != "tok-2" {
		t.Fatalf("expected next page token tok-2, got %q", resp.NextPageToken)
	}
}

func TestOrderHandlersGetOrderOwnedByCaller(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, tenantID, orderID string) (services.Order, error) {
			if orderID != "ord_1" {
				t.Fatalf("unexpected order id %q", orderID)
			}
			return services.Order{ID: "ord_1", TenantID: tenantID, UserID: "user-7", Status: domain.OrderStatusAccepted}, nil
		},
	}

	router := newOrderTestRouter(service)
	req := authedRequest(http.MethodGet, "/restaurants/rest-1/orders/ord_1", "", "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderHidesOtherUsers(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, tenantID, orderID string) (services.Order, error) {
			return services.Order{ID: "ord_1", TenantID: tenantID, UserID: "someone-else"}, nil
		},
	}

	router := newOrderTestRouter(service)
	req := authedRequest(http.MethodGet, "/restaurants/rest-1/orders/ord_1", "", "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersGetOrderStaffCanRead(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, tenantID, orderID string) (services.Order, error) {
			return services.Order{ID: "ord_1", TenantID: tenantID, UserID: "someone-else"}, nil
		},
	}

	router := newOrderTestRouter(service)
	req := authedRequest(http.MethodGet, "/restaurants/rest-1/orders/ord_1", "", "staff-1", auth.RoleStaff)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, tenantID, orderID, userID, reason string) (services.Order, error) {
			if orderID != "ord_1" || userID != "user-7" {
				t.Fatalf("unexpected cancel scope %q/%q", orderID, userID)
			}
			if reason != "ordered by mistake" {
				t.Fatalf("unexpected reason %q", reason)
			}
			return services.Order{ID: orderID, Status: domain.OrderStatusCanceled}, nil
		},
	}

	router := newOrderTestRouter(service)
	req := authedRequest(http.MethodPost, "/restaurants/rest-1/orders/ord_1/cancel", `{"reason":"ordered by mistake"}`, "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Order orderPayload `json:"order"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Order.Status != "canceled" {
		t.Fatalf("expected canceled status, got %q", resp.Order.Status)
	}
}

func TestOrderHandlersCancelOrderAllowsEmptyBody(t *testing.T) {
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, tenantID, orderID, userID, reason string) (services.Order, error) {
			if reason != "" {
				t.Fatalf("expected empty reason, got %q", reason)
			}
			return services.Order{ID: orderID, Status: domain.OrderStatusCanceled}, nil
		},
	}

	router := newOrderTestRouter(service)
	req := authedRequest(http.MethodPost, "/restaurants/rest-1/orders/ord_1/cancel", "", "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestOrderHandlersCancelWindowClosed(t *testing.T) {
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, tenantID, orderID, userID, reason string) (services.Order, error) {
			return services.Order{}, services.ErrOrderCancelWindowClosed
		},
	}

	router := newOrderTestRouter(service)
	req := authedRequest(http.MethodPost, "/restaurants/rest-1/orders/ord_1/cancel", "", "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "cancel_window_closed") {
		t.Fatalf("expected cancel_window_closed code, got %s", rr.Body.String())
	}
}

func TestOrderHandlersGetReceipt(t *testing.T) {
	expires := time.Date(2025, 3, 10, 12, 10, 0, 0, time.UTC)
	service := &stubOrderService{
		getFunc: func(ctx context.Context, tenantID, orderID string) (services.Order, error) {
			return services.Order{ID: orderID, TenantID: tenantID, Number: "FK-2025-000042", UserID: "user-7"}, nil
		},
	}
	receipts := &stubReceiptSigner{
		downloadFunc: func(ctx context.Context, tenantID, orderID, invoiceNumber, ownerID string, identity *auth.Identity) (platformstorage.SignedURLResult, error) {
			if tenantID != "rest-1" || orderID != "ord_1" {
				t.Fatalf("unexpected receipt scope %q/%q", tenantID, orderID)
			}
			if invoiceNumber != "FK-2025-000042" || ownerID != "user-7" {
				t.Fatalf("unexpected receipt request %q/%q", invoiceNumber, ownerID)
			}
			return platformstorage.SignedURLResult{
				URL:       "https://storage.example.com/receipts/rest-1/orders/ord_1/FK-2025-000042.pdf?sig=abc",
				Method:    http.MethodGet,
				ExpiresAt: expires,
			}, nil
		},
	}

	router := newOrderTestRouterWithReceipts(service, receipts)
	req := authedRequest(http.MethodGet, "/restaurants/rest-1/orders/ord_1/receipt", "", "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		URL       string `json:"url"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !strings.Contains(resp.URL, "FK-2025-000042.pdf") {
		t.Fatalf("unexpected url %q", resp.URL)
	}
	if resp.ExpiresAt == "" {
		t.Fatalf("expected expires_at to be set")
	}
}

func TestOrderHandlersGetReceiptDeniedForOtherUser(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, tenantID, orderID string) (services.Order, error) {
			return services.Order{ID: orderID, TenantID: tenantID, Number: "FK-2025-000042", UserID: "someone-else"}, nil
		},
	}
	receipts := &stubReceiptSigner{
		downloadFunc: func(ctx context.Context, tenantID, orderID, invoiceNumber, ownerID string, identity *auth.Identity) (platformstorage.SignedURLResult, error) {
			return platformstorage.SignedURLResult{}, platformstorage.ErrPermissionDenied
		},
	}

	router := newOrderTestRouterWithReceipts(service, receipts)
	req := authedRequest(http.MethodGet, "/restaurants/rest-1/orders/ord_1/receipt", "", "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestOrderHandlersGetReceiptUnconfigured(t *testing.T) {
	service := &stubOrderService{
		getFunc: func(ctx context.Context, tenantID, orderID string) (services.Order, error) {
			return services.Order{ID: orderID, TenantID: tenantID, UserID: "user-7"}, nil
		},
	}

	router := newOrderTestRouter(service)
	req := authedRequest(http.MethodGet, "/restaurants/rest-1/orders/ord_1/receipt", "", "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestOrderHandlersListInvalidPageSize(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{})
	req := authedRequest(http.MethodGet, "/restaurants/rest-1/orders?pageSize=abc", "", "user-7")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}
