package firestore

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/forkline/api/internal/domain"
)

// Tenant data lives under restaurants/{tenantID}; per-tenant collections hang
// off that document so every query is scoped by construction.
const (
	tenantCollection = "restaurants"

	cartSubcollection      = "carts"
	orderSubcollection     = "orders"
	menuSubcollection      = "menuItems"
	promotionSubcollection = "promotions"
	counterSubcollection   = "counters"
)

func tenantScopedCollection(tenantID, sub string) string {
	return fmt.Sprintf("%s/%s/%s", tenantCollection, strings.TrimSpace(tenantID), sub)
}

type addressDocument struct {
	Line1      string  `firestore:"line1"`
	Line2      string  `firestore:"line2,omitempty"`
	City       string  `firestore:"city,omitempty"`
	Region     string  `firestore:"region,omitempty"`
	PostalCode string  `firestore:"postalCode,omitempty"`
	Lat        float64 `firestore:"lat,omitempty"`
	Lng        float64 `firestore:"lng,omitempty"`
}

func encodeAddress(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		Region:     strings.TrimSpace(addr.Region),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Lat:        addr.Lat,
		Lng:        addr.Lng,
	}
}

func decodeAddress(doc *addressDocument) *domain.Address {
	if doc == nil {
		return nil
	}
	return &domain.Address{
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		Region:     doc.Region,
		PostalCode: doc.PostalCode,
		Lat:        doc.Lat,
		Lng:        doc.Lng,
	}
}

type modifierDocument struct {
	ID    string `firestore:"id"`
	Name  string `firestore:"name"`
	Price int64  `firestore:"price"`
}

func encodeModifiers(modifiers []domain.Modifier) []modifierDocument {
	if len(modifiers) == 0 {
		return nil
	}
	docs := make([]modifierDocument, len(modifiers))
	for i, m := range modifiers {
		docs[i] = modifierDocument{ID: m.ID, Name: m.Name, Price: m.Price}
	}
	return docs
}

func decodeModifiers(docs []modifierDocument) []domain.Modifier {
	if len(docs) == 0 {
		return nil
	}
	modifiers := make([]domain.Modifier, len(docs))
	for i, doc := range docs {
		modifiers[i] = domain.Modifier{ID: doc.ID, Name: doc.Name, Price: doc.Price}
	}
	return modifiers
}

type breakdownDocument struct {
	Subtotal             int64 `firestore:"subtotal"`
	Discount             int64 `firestore:"discount"`
	Tax                  int64 `firestore:"tax"`
	PlatformFee          int64 `firestore:"platformFee"`
	DeliveryFee          int64 `firestore:"deliveryFee"`
	Tip                  int64 `firestore:"tip"`
	Total                int64 `firestore:"total"`
	ProcessorFeeEstimate int64 `firestore:"processorFeeEstimate"`
	NetPayoutEstimate    int64 `firestore:"netPayoutEstimate"`
}

func encodeBreakdown(b domain.FeeBreakdown) breakdownDocument {
	return breakdownDocument{
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

func decodeBreakdown(doc breakdownDocument) domain.FeeBreakdown {
	return domain.FeeBreakdown{
		Subtotal:             doc.Subtotal,
		Discount:             doc.Discount,
		Tax:                  doc.Tax,
		PlatformFee:          doc.PlatformFee,
		DeliveryFee:          doc.DeliveryFee,
		Tip:                  doc.Tip,
		Total:                doc.Total,
		ProcessorFeeEstimate: doc.ProcessorFeeEstimate,
		NetPayoutEstimate:    doc.NetPayoutEstimate,
	}
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
