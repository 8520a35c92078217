package authentication

import (
	"testing"
	"time"
)

func TestIssueAndValidateToken(t *testing.T) {
	svc, err := NewTokenService(&TokenConfig{
		SigningKey: "unit-test-key",
		Issuer:     "test-issuer",
		TTL:        time.Minute,
	})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	token, expiresIn, err := svc.IssueToken("client-1", "read write")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if expiresIn != 60 {
		t.Fatalf("expiresIn = %d, want 60", expiresIn)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.ClientID != "client-1" || claims.Scope != "read write" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.Issuer != "test-issuer" {
		t.Fatalf("issuer = %q, want test-issuer", claims.Issuer)
	}
}

func TestValidateTokenRejectsWrongKey(t *testing.T) {
	issuer, err := NewTokenService(&TokenConfig{SigningKey: "key-a"})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	verifier, err := NewTokenService(&TokenConfig{SigningKey: "key-b"})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	token, _, err := issuer.IssueToken("client-1", "")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := verifier.ValidateToken(token); err == nil {
		t.Fatal("expected an error for a token signed with another key")
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc, err := NewTokenService(&TokenConfig{
		SigningKey: "unit-test-key",
		TTL:        -time.Minute,
	})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}

	token, _, err := svc.IssueToken("client-1", "")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expected an error for an expired token")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, err := NewTokenService(&TokenConfig{SigningKey: "unit-test-key"})
	if err != nil {
		t.Fatalf("NewTokenService() error = %v", err)
	}
	if _, err := svc.ValidateToken("not-a-jwt"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}

func TestNewTokenServiceRequiresKey(t *testing.T) {
	if _, err := NewTokenService(&TokenConfig{}); err == nil {
		t.Fatal("expected an error for a missing signing key")
	}
}
