// Package service mints, reads, promotes, and clears short-lived opaque sessions, one namespace per context.
package service

import (
	"errors"
	"time"

	otpdomain "booking-gate/backend/internal/otp/domain"
	"booking-gate/backend/internal/security"
	"booking-gate/backend/internal/session/domain"
	"booking-gate/backend/internal/session/repository"
)

// ErrInvalidMethod is returned by Mint for an unknown verification method.
var ErrInvalidMethod = errors.New("session: unknown verification method")

// Service manages the sessions of a single context.
type Service struct {
	name     domain.Context
	ttl      time.Duration
	repo     repository.Repository
	nowF     func() time.Time
	newToken func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source. It must match the clock of the repository's store.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.nowF = now
		}
	}
}

// WithTokenSource replaces the token generator (tests).
func WithTokenSource(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.newToken = gen
		}
	}
}

// NewService returns a Service for context name whose sessions live for ttl.
func NewService(name domain.Context, ttl time.Duration, repo repository.Repository, opts ...Option) *Service {
	s := &Service{
		name:     name,
		ttl:      ttl,
		repo:     repo,
		nowF:     func() time.Time { return time.Now().UTC() },
		newToken: security.NewOpaqueToken,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Context returns the namespace this service manages.
func (s *Service) Context() domain.Context { return s.name }

// TTL returns the lifetime of minted sessions.
func (s *Service) TTL() time.Duration { return s.ttl }

// Mint creates a session for an identity that has just passed OTP verification.
// The token comes from independent randomness and is returned only here; identityID may be nil.
func (s *Service) Mint(identifier string, method otpdomain.Method, identityID *string) (*domain.Session, error) {
	if !method.Valid() {
		return nil, ErrInvalidMethod
	}
	token, err := s.newToken()
	if err != nil {
		return nil, err
	}
	now := s.nowF()
	var id *string
	if identityID != nil && *identityID != "" {
		v := *identityID
		id = &v
	}
	sess := &domain.Session{
		Token:      token,
		TokenHash:  security.HashToken(token),
		Context:    s.name,
		Identifier: identifier,
		Method:     method,
		VerifiedAt: now,
		IdentityID: id,
		ExpiresAt:  now.Add(s.ttl),
	}
	s.repo.Create(sess, s.ttl)
	return sess, nil
}

// Get returns the live session for token. Absent, expired, and malformed tokens all return false.
func (s *Service) Get(token string) (*domain.Session, bool) {
	if security.CheckTokenFormat(token) != nil {
		return nil, false
	}
	sess := s.repo.GetByTokenHash(security.HashToken(token))
	if sess == nil {
		return nil, false
	}
	sess.Token = token
	return sess, true
}

// UpdateIdentity links identityID to the session once. It returns false when the session is absent or
// expired, or already linked to a different identity. It never creates a session.
func (s *Service) UpdateIdentity(token, identityID string) bool {
	if identityID == "" || security.CheckTokenFormat(token) != nil {
		return false
	}
	_, updated := s.repo.SetIdentity(security.HashToken(token), identityID)
	return updated
}

// Clear invalidates the session (logout, booking completed). Clearing an unknown token is a no-op.
func (s *Service) Clear(token string) {
	if security.CheckTokenFormat(token) != nil {
		return
	}
	s.repo.Delete(security.HashToken(token))
}

// Active returns the number of stored sessions.
func (s *Service) Active() int {
	return s.repo.Count()
}
