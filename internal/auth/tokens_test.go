package auth

import (
	"testing"
	"time"
)

func TestIssueAndValidateRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		TokenTTL:      time.Hour,
	})

	token, err := issuer.Issue(42)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}
	if token == "" {
		t.Fatalf("expected a signed token")
	}

	guestID, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("unexpected validate error: %v", err)
	}
	if guestID != 42 {
		t.Fatalf("expected guest id 42, got %d", guestID)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	issuer := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		TokenTTL:      time.Minute,
		Clock:         func() time.Time { return past },
	})

	token, err := issuer.Issue(7)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	current := NewTokenIssuer(TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
	})
	if _, err := current.Validate(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret-a")})
	token, err := issuer.Issue(3)
	if err != nil {
		t.Fatalf("unexpected issue error: %v", err)
	}

	other := NewTokenIssuer(TokenIssuerConfig{SigningSecret: []byte("secret-b")})
	if _, err := other.Validate(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestIssueRequiresSigningSecret(t *testing.T) {
	issuer := NewTokenIssuer(TokenIssuerConfig{})
	if _, err := issuer.Issue(1); err == nil {
		t.Fatalf("expected missing signing secret error")
	}
}
