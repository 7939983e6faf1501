package auth

import (
	"errors"
	"testing"
	"time"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	v, err := NewVerifier("s3cret", true)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := v.Sign(Claims{Sub: "user-1", Email: "a@b.c"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "user-1" || claims.Email != "a@b.c" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsForeignSignatureAndExpiry(t *testing.T) {
	a, _ := NewVerifier("one", false)
	b, _ := NewVerifier("two", false)
	token, _ := a.Sign(Claims{Sub: "user-1"})
	if _, err := b.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}

	past := time.Now().Add(-2 * time.Hour)
	a.now = func() time.Time { return past }
	expired, _ := a.Sign(Claims{Sub: "user-1", Exp: past.Add(time.Minute).Unix()})
	a.now = time.Now
	if _, err := a.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestNewVerifierRequiresSecretInProduction(t *testing.T) {
	if _, err := NewVerifier(" ", true); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if _, err := NewVerifier("", false); err != nil {
		t.Fatalf("expected dev fallback, got %v", err)
	}
}
