package domain

import (
	"time"

	otpdomain "booking-gate/backend/internal/otp/domain"
)

// Context names an independent session namespace. Each context has its own store and TTL.
type Context string

const (
	ContextBooking   Context = "booking"
	ContextPortal    Context = "portal"
	ContextAssistant Context = "assistant"
)

// Contexts lists every known context.
var Contexts = []Context{ContextBooking, ContextPortal, ContextAssistant}

// ParseContext returns the Context named s, or false when s names none.
func ParseContext(s string) (Context, bool) {
	for _, c := range Contexts {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Session is a verified identity bound to an opaque bearer token until ExpiresAt.
type Session struct {
	Token      string // returned to the caller at mint time only; stores hold TokenHash
	TokenHash  string
	Context    Context
	Identifier string // normalized phone or email that was verified
	Method     otpdomain.Method
	VerifiedAt time.Time
	IdentityID *string // nil until an external identity (customer record) is known
	ExpiresAt  time.Time
}

// HasIdentity reports whether the session has been linked to an external identity.
func (s *Session) HasIdentity() bool {
	return s.IdentityID != nil && *s.IdentityID != ""
}
