package repository

import (
	"time"

	"booking-gate/backend/internal/session/domain"
)

// Repository defines storage for sessions of one context, keyed by token hash.
// Every method is a single atomic operation; expired sessions behave exactly like missing ones.
type Repository interface {
	Create(s *domain.Session, ttl time.Duration)
	// GetByTokenHash returns a copy of the live session, or nil.
	GetByTokenHash(tokenHash string) *domain.Session
	// SetIdentity links identityID to the live session if it has none yet.
	// found is false when the session is absent or expired; updated is false when it already had a different identity.
	SetIdentity(tokenHash, identityID string) (found, updated bool)
	Delete(tokenHash string)
	Count() int
}
