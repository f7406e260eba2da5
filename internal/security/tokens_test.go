package security

import (
	"errors"
	"strings"
	"testing"
)

func TestNewOpaqueToken(t *testing.T) {
	tok, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("NewOpaqueToken: %v", err)
	}
	if len(tok) != 43 {
		t.Errorf("token length = %d, want 43 (32 bytes raw base64url)", len(tok))
	}
	if strings.ContainsAny(tok, "+/=") {
		t.Errorf("token %q is not URL-safe", tok)
	}
	if err := CheckTokenFormat(tok); err != nil {
		t.Errorf("CheckTokenFormat(minted) = %v", err)
	}
}

func TestNewOpaqueToken_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tok, err := NewOpaqueToken()
		if err != nil {
			t.Fatalf("NewOpaqueToken: %v", err)
		}
		if seen[tok] {
			t.Fatalf("duplicate token after %d draws", i)
		}
		seen[tok] = true
	}
}

func TestCheckTokenFormat(t *testing.T) {
	testCases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"short", "abc"},
		{"padded std base64", "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=="},
		{"bad alphabet", strings.Repeat("*", 43)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := CheckTokenFormat(tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("CheckTokenFormat(%q) = %v, want ErrInvalidToken", tc.token, err)
			}
		})
	}
}

func TestHashToken(t *testing.T) {
	h1 := HashToken("token-1")
	if h1 != HashToken("token-1") {
		t.Error("HashToken not deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64 (SHA-256 hex)", len(h1))
	}
	if h1 == HashToken("token-2") {
		t.Error("HashToken produced same hash for different tokens")
	}
}
