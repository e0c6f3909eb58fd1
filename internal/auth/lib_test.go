package auth

import (
	"encoding/base64"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("Password123", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "Password123" || !strings.HasPrefix(hash, "$2a$") {
		t.Fatalf("unexpected hash %q", hash)
	}
	if !CheckPasswordHash(hash, "Password123") {
		t.Fatal("expected password to match")
	}
	if CheckPasswordHash(hash, "password123") {
		t.Fatal("expected wrong password to fail")
	}
	if CheckPasswordHash("", "Password123") {
		t.Fatal("expected empty hash to fail")
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword("", bcrypt.MinCost); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRefreshTokenValue(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := NewRefreshTokenValue()
		if err != nil {
			t.Fatalf("NewRefreshTokenValue: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		if err != nil {
			t.Fatalf("token is not base64url: %v", err)
		}
		if len(raw) != refreshTokenBytes {
			t.Fatalf("expected %d bytes, got %d", refreshTokenBytes, len(raw))
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}
