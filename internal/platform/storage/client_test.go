package storage

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/forkline/api/internal/platform/auth"
)

type fakeSigner struct {
	email    string
	payloads [][]byte
	err      error
}

func (f *fakeSigner) Email() string {
	return f.email
}

func (f *fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, append([]byte(nil), payload...))
	return []byte("signed"), nil
}

func newTestClient(t *testing.T, signer *fakeSigner, now time.Time) *Client {
	t.Helper()
	client, err := NewClient(signer, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("unexpected error creating client: %v", err)
	}
	return client
}

func TestSignedDownloadURLForReceiptOwner(t *testing.T) {
	signer := &fakeSigner{email: "receipts@forkline-prod.iam.gserviceaccount.com"}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, signer, now)

	res, err := client.SignedDownloadURL(context.Background(), "forkline-receipts", "tenants/rest-1/orders/ord-42/receipt-INV-0042.pdf", DownloadOptions{
		ExpiresIn:    10 * time.Minute,
		Disposition:  "attachment",
		ResponseType: "application/pdf",
		OwnerID:      "diner-1",
		Identity:     &auth.Identity{UID: "diner-1", Roles: []string{auth.RoleUser}},
	})
	if err != nil {
		t.Fatalf("SignedDownloadURL returned error: %v", err)
	}

	if res.Method != "GET" {
		t.Fatalf("expected GET method, got %s", res.Method)
	}
	if !res.ExpiresAt.Equal(now.Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", res.ExpiresAt)
	}

	parsed, err := url.Parse(res.URL)
	if err != nil {
		t.Fatalf("failed to parse signed URL: %v", err)
	}
	query := parsed.Query()
	if query.Get("X-Goog-Signature") == "" {
		t.Fatalf("expected signature in query: %s", parsed.RawQuery)
	}
	if query.Get("response-content-disposition") != "attachment" {
		t.Fatalf("expected attachment disposition, got %q", query.Get("response-content-disposition"))
	}
	if query.Get("response-content-type") != "application/pdf" {
		t.Fatalf("expected pdf response type, got %q", query.Get("response-content-type"))
	}
	if len(signer.payloads) == 0 {
		t.Fatalf("expected signer to be invoked")
	}
}

func TestSignedDownloadURLAllowsStaffForAnyOrder(t *testing.T) {
	signer := &fakeSigner{email: "receipts@forkline-prod.iam.gserviceaccount.com"}
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	client := newTestClient(t, signer, now)

	res, err := client.SignedDownloadURL(context.Background(), "forkline-receipts", "tenants/rest-1/orders/ord-42/receipt-INV-0042.pdf", DownloadOptions{
		OwnerID:  "diner-1",
		Identity: &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !res.ExpiresAt.Equal(now.Add(defaultDownloadExpiry)) {
		t.Fatalf("expected default expiry, got %v", res.ExpiresAt)
	}
}

func TestSignedDownloadURLDeniesOtherDiner(t *testing.T) {
	signer := &fakeSigner{email: "receipts@forkline-prod.iam.gserviceaccount.com"}
	client := newTestClient(t, signer, time.Now())

	_, err := client.SignedDownloadURL(context.Background(), "forkline-receipts", "tenants/rest-1/orders/ord-42/receipt-INV-0042.pdf", DownloadOptions{
		OwnerID:  "diner-1",
		Identity: &auth.Identity{UID: "diner-2", Roles: []string{auth.RoleUser}},
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestSignedDownloadURLDeniesMissingIdentity(t *testing.T) {
	signer := &fakeSigner{email: "receipts@forkline-prod.iam.gserviceaccount.com"}
	client := newTestClient(t, signer, time.Now())

	_, err := client.SignedDownloadURL(context.Background(), "forkline-receipts", "tenants/rest-1/orders/ord-42/receipt-INV-0042.pdf", DownloadOptions{
		OwnerID: "diner-1",
	})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestSignedDownloadURLCapsExpiry(t *testing.T) {
	signer := &fakeSigner{email: "receipts@forkline-prod.iam.gserviceaccount.com"}
	client := newTestClient(t, signer, time.Now())

	_, err := client.SignedDownloadURL(context.Background(), "forkline-receipts", "tenants/rest-1/orders/ord-42/receipt-INV-0042.pdf", DownloadOptions{
		ExpiresIn: 30 * time.Minute,
		OwnerID:   "diner-1",
		Identity:  &auth.Identity{UID: "diner-1", Roles: []string{auth.RoleUser}},
	})
	if !errors.Is(err, errExpiryTooLong) {
		t.Fatalf("expected errExpiryTooLong, got %v", err)
	}
}

func TestNewClientRequiresSigner(t *testing.T) {
	if _, err := NewClient(nil); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
	if _, err := NewClient(&fakeSigner{}); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner for empty email, got %v", err)
	}
}
