package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/forkline/api/internal/platform/auth"
)

const receiptURLExpiry = 10 * time.Minute

// ReceiptStore issues short-lived download URLs for stored order receipts.
// Receipt PDFs are written by the invoicing pipeline; this store only signs
// read access.
type ReceiptStore struct {
	client *Client
	bucket string
}

// NewReceiptStore constructs a receipt store over the signed URL client.
func NewReceiptStore(client *Client, bucket string) (*ReceiptStore, error) {
	if client == nil {
		return nil, errors.New("storage: receipt store requires signed url client")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	return &ReceiptStore{client: client, bucket: bucket}, nil
}

// DownloadURL signs a download link for the order's receipt. Access is
// restricted to the order owner plus staff and admin roles.
func (s *ReceiptStore) DownloadURL(ctx context.Context, tenantID, orderID, invoiceNumber, ownerID string, identity *auth.Identity) (SignedURLResult, error) {
	object, err := BuildObjectPath(PurposeReceipt, PathParams{
		TenantID:      tenantID,
		OrderID:       orderID,
		InvoiceNumber: invoiceNumber,
	})
	if err != nil {
		return SignedURLResult{}, err
	}

	return s.client.SignedDownloadURL(ctx, s.bucket, object, DownloadOptions{
		ExpiresIn:    receiptURLExpiry,
		Disposition:  "attachment",
		ResponseType: "application/pdf",
		OwnerID:      ownerID,
		Identity:     identity,
	})
}
