package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

func signPayload(t *testing.T, payload []byte, secret string, ts time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
	secret := "whsec_test"
	now := time.Unix(1700000000, 0)

	header := signPayload(t, payload, secret, now)
	if err := verifyWebhookSignatureAt(payload, header, secret, now); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyWebhookSignatureMissingHeader(t *testing.T) {
	err := verifyWebhookSignatureAt([]byte("{}"), "", "whsec_test", time.Now())
	if !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}

func TestVerifyWebhookSignatureWrongSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)
	header := signPayload(t, payload, "whsec_other", now)

	err := verifyWebhookSignatureAt(payload, header, "whsec_test", now)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyWebhookSignatureTamperedBody(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	now := time.Unix(1700000000, 0)
	header := signPayload(t, payload, "whsec_test", now)

	err := verifyWebhookSignatureAt([]byte(`{"id":"evt_2"}`), header, "whsec_test", now)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyWebhookSignatureStaleTimestamp(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	signedAt := time.Unix(1700000000, 0)
	header := signPayload(t, payload, "whsec_test", signedAt)

	err := verifyWebhookSignatureAt(payload, header, "whsec_test", signedAt.Add(10*time.Minute))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected stale timestamp to be rejected, got %v", err)
	}
}

func TestVerifyWebhookSignatureGarbageHeader(t *testing.T) {
	err := verifyWebhookSignatureAt([]byte("{}"), "not-a-signature", "whsec_test", time.Now())
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	payload := []byte(`{"id":"evt_99","type":"some.future.event","data":{"object":{}}}`)
	secret := "whsec_test"
	now := time.Now()
	header := signPayload(t, payload, secret, now)

	ev, err := Authenticate(payload, header, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ID != "evt_99" || ev.Kind != KindUnknown {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestAuthenticateMalformedPayload(t *testing.T) {
	payload := []byte(`this is not json`)
	secret := "whsec_test"
	header := signPayload(t, payload, secret, time.Now())

	_, err := Authenticate(payload, header, secret)
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
	if !IsAuthError(err) {
		t.Fatalf("expected malformed payload to classify as auth error")
	}
}

func TestIsAuthError(t *testing.T) {
	for _, err := range []error{ErrMissingSignature, ErrInvalidSignature, ErrMalformedPayload} {
		if !IsAuthError(err) {
			t.Fatalf("expected %v to be an auth error", err)
		}
	}
	if IsAuthError(errors.New("db down")) {
		t.Fatalf("unrelated errors must not classify as auth errors")
	}
}
