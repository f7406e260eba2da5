package otp

import (
	"strings"

	"booking-gate/backend/internal/otp/domain"
)

// Normalize returns the canonical form of a contact identifier and its method.
// Anything containing "@" is an email (trimmed, lowercased); everything else is a phone number reduced to digits.
// The result is empty when nothing usable remains.
func Normalize(identifier string) (string, domain.Method) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier), domain.MethodEmail
	}
	var b strings.Builder
	b.Grow(len(identifier))
	for _, r := range identifier {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String(), domain.MethodPhone
}
