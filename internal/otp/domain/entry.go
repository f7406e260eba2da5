package domain

import "time"

// Method is the contact channel a code was sent over and, after verification, the channel that proved the identity.
type Method string

const (
	MethodPhone Method = "phone"
	MethodEmail Method = "email"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	return m == MethodPhone || m == MethodEmail
}

// Entry is the live OTP for one normalized identifier. At most one exists per identifier.
type Entry struct {
	Identifier string
	Method     Method
	CodeHash   string // SHA-256 of the code; the plain code is never stored
	Attempts   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
}
