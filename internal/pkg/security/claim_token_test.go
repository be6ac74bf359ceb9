package security

import (
	"strings"
	"testing"
	"time"
)

func TestClaimTokenRoundTrip(t *testing.T) {
	token, err := GenerateClaimToken(42, 7, time.Hour, "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claims, err := VerifyClaimToken(token, "secret")
	if err != nil {
		t.Fatalf("unexpected verify error: %v", err)
	}
	if claims.OwnerID != 42 || claims.RestaurantID != 7 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestClaimTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateClaimToken(42, 7, time.Hour, "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := VerifyClaimToken(token, "other-secret"); err == nil {
		t.Fatalf("expected verification to fail with wrong secret")
	}
}

func TestClaimTokenRejectsExpired(t *testing.T) {
	token, err := GenerateClaimToken(42, 7, -time.Minute, "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := VerifyClaimToken(token, "secret"); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestClaimTokenRejectsTampering(t *testing.T) {
	token, err := GenerateClaimToken(42, 7, time.Hour, "secret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := strings.SplitN(token, ".", 2)
	tampered := parts[0] + "x." + parts[1]
	if _, err := VerifyClaimToken(tampered, "secret"); err == nil {
		t.Fatalf("expected tampered token to fail")
	}
}
