package repository

import (
	"time"

	"booking-gate/backend/internal/session/domain"
	"booking-gate/backend/internal/ttlstore"
)

// MemoryRepository keeps sessions in an expiring in-process store.
type MemoryRepository struct {
	store *ttlstore.Store[domain.Session]
}

// NewMemoryRepository returns a repository backed by store.
func NewMemoryRepository(store *ttlstore.Store[domain.Session]) *MemoryRepository {
	return &MemoryRepository{store: store}
}

// Create stores s under its TokenHash for ttl. The raw token is not kept.
func (r *MemoryRepository) Create(s *domain.Session, ttl time.Duration) {
	stored := *s
	stored.Token = ""
	r.store.Put(s.TokenHash, stored, ttl)
}

// GetByTokenHash returns a copy of the live session for tokenHash, or nil.
func (r *MemoryRepository) GetByTokenHash(tokenHash string) *domain.Session {
	s, ok := r.store.Get(tokenHash)
	if !ok {
		return nil
	}
	return &s
}

// SetIdentity promotes IdentityID from nil to identityID, keeping the session's expiry.
// Repeating the promotion with the same identityID reports updated without changing anything.
func (r *MemoryRepository) SetIdentity(tokenHash, identityID string) (found, updated bool) {
	r.store.Update(tokenHash, func(cur domain.Session, ok bool) ttlstore.Change[domain.Session] {
		if !ok {
			return ttlstore.Change[domain.Session]{Op: ttlstore.OpNone}
		}
		found = true
		if cur.HasIdentity() {
			updated = *cur.IdentityID == identityID
			return ttlstore.Change[domain.Session]{Op: ttlstore.OpNone}
		}
		id := identityID
		cur.IdentityID = &id
		updated = true
		return ttlstore.Change[domain.Session]{Op: ttlstore.OpSet, Value: cur}
	})
	return found, updated
}

// Delete removes the session for tokenHash.
func (r *MemoryRepository) Delete(tokenHash string) {
	r.store.Delete(tokenHash)
}

// Count returns the number of stored sessions, including expired ones not yet swept.
func (r *MemoryRepository) Count() int {
	return r.store.Len()
}
