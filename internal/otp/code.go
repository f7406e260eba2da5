package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// CodeDigits is the length of every issued code.
const CodeDigits = 6

// GenerateCode returns a 6-digit numeric code (e.g. "048213") from crypto/rand.
// Bytes >= 250 are rejected so each digit is uniform.
func GenerateCode() (string, error) {
	s := make([]byte, 0, CodeDigits)
	buf := make([]byte, CodeDigits*2)
	for len(s) < CodeDigits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			s = append(s, '0'+b%10)
			if len(s) == CodeDigits {
				break
			}
		}
	}
	return string(s), nil
}

// HashCode returns a SHA-256 hash of the code, hex-encoded. Only the hash is kept in the store.
func HashCode(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// CodeEqual performs constant-time comparison of the provided code's hash with the stored hash.
func CodeEqual(provided, storedHash string) bool {
	providedHash := HashCode(provided)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
