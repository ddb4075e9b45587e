package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/forkline/api/internal/domain"
	pfirestore "github.com/forkline/api/internal/platform/firestore"
	"github.com/forkline/api/internal/platform/pagination"
	"github.com/forkline/api/internal/repositories"
)

const defaultOrderPageSize = 20

// OrderRepository persists orders under restaurants/{tenantID}/orders/{orderID}.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

func (r *OrderRepository) base(tenantID string) *pfirestore.BaseRepository[orderDocument] {
	return pfirestore.NewBaseRepository[orderDocument](r.provider, tenantScopedCollection(tenantID, orderSubcollection))
}

// CreateOrder writes a new order document. Writing an existing ID is a conflict.
func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	tid := strings.TrimSpace(order.TenantID)
	oid := strings.TrimSpace(order.ID)
	if tid == "" || oid == "" {
		return domain.Order{}, errors.New("order repository: tenant and order ids are required")
	}

	ref, err := r.base(tid).DocumentRef(ctx, oid)
	if err != nil {
		return domain.Order{}, err
	}
	if _, err := ref.Create(ctx, encodeOrder(order)); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.create", err)
	}
	return order, nil
}

// GetOrder loads one order by ID.
func (r *OrderRepository) GetOrder(ctx context.Context, tenantID, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	tid := strings.TrimSpace(tenantID)
	oid := strings.TrimSpace(orderID)
	if tid == "" || oid == "" {
		return domain.Order{}, errors.New("order repository: tenant and order ids are required")
	}

	doc, err := r.base(tid).Get(ctx, oid)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(tid, doc), nil
}

// UpdateOrderStatus replaces the order document under a last-update
// precondition so concurrent status feeds cannot clobber each other.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, order domain.Order, expectedUpdate time.Time) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	tid := strings.TrimSpace(order.TenantID)
	oid := strings.TrimSpace(order.ID)
	if tid == "" || oid == "" {
		return domain.Order{}, errors.New("order repository: tenant and order ids are required")
	}

	ref, err := r.base(tid).DocumentRef(ctx, oid)
	if err != nil {
		return domain.Order{}, err
	}

	doc := encodeOrder(order)
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snapshot.DataTo(&stored); err != nil {
			return err
		}
		if !expectedUpdate.IsZero() && !stored.UpdatedAt.Equal(expectedUpdate.UTC()) {
			return status.Error(codes.FailedPrecondition, "order was modified concurrently")
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.update", err)
	}
	return order, nil
}

// ListOrders returns a page of the tenant's orders, newest first, optionally
// narrowed to one user. The page token is an opaque cursor.
func (r *OrderRepository) ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}
	tid := strings.TrimSpace(filter.TenantID)
	if tid == "" {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository: tenant id is required")
	}

	pageSize := filter.Pagination.PageSize
	if pageSize <= 0 {
		pageSize = defaultOrderPageSize
	}

	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	docs, err := r.base(tid).Query(ctx, func(query firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			query = query.Where("userId", "==", uid)
		}
		query = query.OrderBy("createdAt", firestore.Desc)
		if len(cursor.StartAfter) > 0 {
			query = query.StartAfter(cursor.StartAfter...)
		}
		// One extra row decides whether another page exists.
		return query.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{}
	hasMore := len(docs) > pageSize
	if hasMore {
		docs = docs[:pageSize]
	}
	for _, doc := range docs {
		page.Items = append(page.Items, decodeOrder(tid, doc))
	}
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt},
		})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

type orderDocument struct {
	Number          string                 `firestore:"number"`
	UserID          string                 `firestore:"userId"`
	Fulfillment     string                 `firestore:"fulfillment"`
	Status          string                 `firestore:"status"`
	Items           []orderItemDocument    `firestore:"items"`
	Contact         contactDocument        `firestore:"contact"`
	DeliveryAddress *addressDocument       `firestore:"deliveryAddress,omitempty"`
	DeliveryQuoteID string                 `firestore:"deliveryQuoteId,omitempty"`
	Breakdown       breakdownDocument      `firestore:"breakdown"`
	Currency        string                 `firestore:"currency"`
	PaymentIntentID string                 `firestore:"paymentIntentId,omitempty"`
	PromotionID     string                 `firestore:"promotionId,omitempty"`
	PromotionCode   string                 `firestore:"promotionCode,omitempty"`
	History         []historyEntryDocument `firestore:"history"`
	StatusTimes     map[string]time.Time   `firestore:"statusTimes,omitempty"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
	CompletedAt     *time.Time             `firestore:"completedAt,omitempty"`
}

type orderItemDocument struct {
	SKU             string             `firestore:"sku"`
	Name            string             `firestore:"name"`
	UnitPrice       int64              `firestore:"unitPrice"`
	Quantity        float64            `firestore:"quantity"`
	DisplayQuantity string             `firestore:"displayQuantity"`
	Unit            string             `firestore:"unit"`
	Modifiers       []modifierDocument `firestore:"modifiers,omitempty"`
	Note            string             `firestore:"note,omitempty"`
	LineTotal       int64              `firestore:"lineTotal"`
}

type contactDocument struct {
	Name  string `firestore:"name"`
	Phone string `firestore:"phone,omitempty"`
	Email string `firestore:"email,omitempty"`
}

type historyEntryDocument struct {
	Status string    `firestore:"status"`
	Source string    `firestore:"source,omitempty"`
	Note   string    `firestore:"note,omitempty"`
	At     time.Time `firestore:"at"`
}

func encodeOrder(order domain.Order) orderDocument {
	doc := orderDocument{
		Number:          order.Number,
		UserID:          order.UserID,
		Fulfillment:     string(order.Fulfillment),
		Status:          string(order.Status),
		Contact:         contactDocument{Name: order.Contact.Name, Phone: order.Contact.Phone, Email: order.Contact.Email},
		DeliveryAddress: encodeAddress(order.DeliveryAddress),
		DeliveryQuoteID: order.DeliveryQuoteID,
		Breakdown:       encodeBreakdown(order.Breakdown),
		Currency:        strings.ToUpper(strings.TrimSpace(order.Currency)),
		PaymentIntentID: order.PaymentIntentID,
		PromotionID:     order.PromotionID,
		PromotionCode:   order.PromotionCode,
		CreatedAt:       normalizeTime(order.CreatedAt),
		UpdatedAt:       normalizeTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			SKU:             item.SKU,
			Name:            item.Name,
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			DisplayQuantity: item.DisplayQuantity,
			Unit:            string(item.Unit),
			Modifiers:       encodeModifiers(item.Modifiers),
			Note:            item.Note,
			LineTotal:       item.LineTotal,
		})
	}
	for _, entry := range order.History {
		doc.History = append(doc.History, historyEntryDocument{
			Status: string(entry.Status),
			Source: entry.Source,
			Note:   entry.Note,
			At:     normalizeTime(entry.At),
		})
	}
	if len(order.StatusTimes) > 0 {
		doc.StatusTimes = make(map[string]time.Time, len(order.StatusTimes))
		for statusKey, at := range order.StatusTimes {
			doc.StatusTimes[string(statusKey)] = normalizeTime(at)
		}
	}
	if order.CompletedAt != nil {
		at := normalizeTime(*order.CompletedAt)
		doc.CompletedAt = &at
	}
	return doc
}

func decodeOrder(tenantID string, doc pfirestore.Document[orderDocument]) domain.Order {
	order := domain.Order{
		ID:              doc.ID,
		TenantID:        tenantID,
		Number:          doc.Data.Number,
		UserID:          doc.Data.UserID,
		Fulfillment:     domain.NormalizeFulfillmentType(doc.Data.Fulfillment),
		Status:          domain.OrderStatus(doc.Data.Status),
		Contact:         domain.CustomerContact{Name: doc.Data.Contact.Name, Phone: doc.Data.Contact.Phone, Email: doc.Data.Contact.Email},
		DeliveryAddress: decodeAddress(doc.Data.DeliveryAddress),
		DeliveryQuoteID: doc.Data.DeliveryQuoteID,
		Breakdown:       decodeBreakdown(doc.Data.Breakdown),
		Currency:        doc.Data.Currency,
		PaymentIntentID: doc.Data.PaymentIntentID,
		PromotionID:     doc.Data.PromotionID,
		PromotionCode:   doc.Data.PromotionCode,
		CreatedAt:       doc.Data.CreatedAt,
		UpdatedAt:       doc.Data.UpdatedAt,
		CompletedAt:     doc.Data.CompletedAt,
	}
	for _, item := range doc.Data.Items {
		order.Items = append(order.Items, domain.OrderItem{
			SKU:             item.SKU,
			Name:            item.Name,
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			DisplayQuantity: item.DisplayQuantity,
			Unit:            domain.NormalizePriceUnit(item.Unit),
			Modifiers:       decodeModifiers(item.Modifiers),
			Note:            item.Note,
			LineTotal:       item.LineTotal,
		})
	}
	for _, entry := range doc.Data.History {
		order.History = append(order.History, domain.StatusHistoryEntry{
			Status: domain.OrderStatus(entry.Status),
			Source: entry.Source,
			Note:   entry.Note,
			At:     entry.At,
		})
	}
	if len(doc.Data.StatusTimes) > 0 {
		order.StatusTimes = make(map[domain.OrderStatus]time.Time, len(doc.Data.StatusTimes))
		for statusKey, at := range doc.Data.StatusTimes {
			order.StatusTimes[domain.OrderStatus(statusKey)] = at
		}
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
