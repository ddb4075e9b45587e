package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

type mapSecretProvider map[string]string

func (m mapSecretProvider) GetSecret(_ context.Context, name string) (string, error) {
	return m[name], nil
}

func signCourierRequest(t *testing.T, req *http.Request, secret, timestamp, nonce, body string) {
	t.Helper()
	hash := sha256.Sum256([]byte(body))
	canonical := strings.Join([]string{
		req.Method,
		req.URL.EscapedPath(),
		timestamp,
		nonce,
		hex.EncodeToString(hash[:]),
	}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))

	req.Header.Set(defaultSignatureHeader, base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set(defaultTimestampHeader, timestamp)
	req.Header.Set(defaultNonceHeader, nonce)
}

func courierWebhookValidator(now time.Time) *HMACValidator {
	return NewHMACValidator(
		mapSecretProvider{"courier": "fleet-secret"},
		NewInMemoryNonceStore(),
		WithHMACClock(func() time.Time { return now }),
	)
}

func TestRequireHMACAcceptsSignedCourierEvent(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	validator := courierWebhookValidator(now)

	called := false
	handler := validator.RequireHMAC("courier")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"order_id":"ord_1","status":"picked_up"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/courier", strings.NewReader(body))
	signCourierRequest(t, req, "fleet-secret", now.Format(time.RFC3339), "nonce-1", body)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK || !called {
		t.Fatalf("expected signed event to pass, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireHMACRejectsTamperedBody(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	validator := courierWebhookValidator(now)

	handler := validator.RequireHMAC("courier")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run for a tampered body")
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/courier", strings.NewReader(`{"order_id":"ord_2","status":"delivered"}`))
	signCourierRequest(t, req, "fleet-secret", now.Format(time.RFC3339), "nonce-1", `{"order_id":"ord_1","status":"picked_up"}`)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "signature_mismatch") {
		t.Fatalf("expected signature_mismatch, got %s", rr.Body.String())
	}
}

func TestRequireHMACRejectsReplayedNonce(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	validator := courierWebhookValidator(now)
	handler := validator.RequireHMAC("courier")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"order_id":"ord_1","status":"picked_up"}`
	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/courier", strings.NewReader(body))
		signCourierRequest(t, req, "fleet-secret", now.Format(time.RFC3339), "nonce-replay", body)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	if rr := send(); rr.Code != http.StatusOK {
		t.Fatalf("first delivery should pass, got %d", rr.Code)
	}
	rr := send()
	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "nonce_replay") {
		t.Fatalf("expected nonce_replay rejection, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireHMACRejectsStaleTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	validator := courierWebhookValidator(now)
	handler := validator.RequireHMAC("courier")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run for a stale signature")
	}))

	body := `{"order_id":"ord_1","status":"ready"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/courier", strings.NewReader(body))
	stale := now.Add(-10 * time.Minute).Format(time.RFC3339)
	signCourierRequest(t, req, "fleet-secret", stale, "nonce-1", body)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "timestamp_skew") {
		t.Fatalf("expected timestamp_skew rejection, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireHMACAcceptsUnixTimestampAndHexSignature(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	validator := courierWebhookValidator(now)
	handler := validator.RequireHMAC("courier")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	body := `{"order_id":"ord_1","status":"driver_en_route"}`
	timestamp := strconv.FormatInt(now.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/courier", strings.NewReader(body))

	hash := sha256.Sum256([]byte(body))
	canonical := strings.Join([]string{"POST", "/webhooks/courier", timestamp, "nonce-hex", hex.EncodeToString(hash[:])}, "\n")
	mac := hmac.New(sha256.New, []byte("fleet-secret"))
	mac.Write([]byte(canonical))
	req.Header.Set(defaultSignatureHeader, hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set(defaultTimestampHeader, timestamp)
	req.Header.Set(defaultNonceHeader, "nonce-hex")

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected hex/unix signature to pass, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestRequireHMACRejectsMissingHeaders(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	validator := courierWebhookValidator(now)
	handler := validator.RequireHMAC("courier")(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run without signature headers")
	}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/courier", strings.NewReader("{}"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized || !strings.Contains(rr.Body.String(), "signature_missing") {
		t.Fatalf("expected signature_missing rejection, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestInMemoryNonceStoreExpiresEntries(t *testing.T) {
	store := NewInMemoryNonceStore()
	expiry := time.Now().Add(50 * time.Millisecond)

	stored, err := store.UseNonce(context.Background(), "courier", "n1", expiry)
	if err != nil || !stored {
		t.Fatalf("first use = (%v, %v), want stored", stored, err)
	}
	if stored, _ := store.UseNonce(context.Background(), "courier", "n1", expiry); stored {
		t.Fatalf("replay within window must be rejected")
	}

	time.Sleep(60 * time.Millisecond)
	stored, err = store.UseNonce(context.Background(), "courier", "n1", time.Now().Add(time.Minute))
	if err != nil || !stored {
		t.Fatalf("reuse after expiry = (%v, %v), want stored", stored, err)
	}
}
