// Package security mints opaque bearer tokens and hashes them for storage.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// tokenBytes is the amount of randomness in every session token (256 bits).
const tokenBytes = 32

// ErrInvalidToken is returned when a presented token cannot be a token this package minted.
var ErrInvalidToken = errors.New("invalid token")

// NewOpaqueToken returns a URL-safe, unpadded base64 string carrying 256 bits from crypto/rand.
// The token encodes nothing; it is only a lookup key.
func NewOpaqueToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// CheckTokenFormat rejects strings that cannot have come from NewOpaqueToken, so obviously
// bogus bearer values never reach a store lookup.
func CheckTokenFormat(token string) error {
	if len(token) != base64.RawURLEncoding.EncodedLen(tokenBytes) {
		return ErrInvalidToken
	}
	if _, err := base64.RawURLEncoding.DecodeString(token); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// HashToken returns a SHA-256 hash of the token, hex-encoded.
// Stores are keyed by this hash so the raw token is never held server-side.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
