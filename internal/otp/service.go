// Package otp issues, rate-limits, and verifies one-time codes per contact identifier (phone or email).
package otp

import (
	"errors"
	"time"

	"booking-gate/backend/internal/otp/domain"
	"booking-gate/backend/internal/ttlstore"
)

const (
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 5 * time.Minute
	// DefaultRateWindow is the minimum time between two issued codes for the same identifier.
	DefaultRateWindow = 60 * time.Second
	// DefaultMaxAttempts is the number of verification attempts after which a code is unusable.
	DefaultMaxAttempts = 3

	// expiredRetention keeps an entry in the store briefly past its ExpiresAt so a late verification
	// is recorded as expired rather than missing. Expired entries are never accepted.
	expiredRetention = time.Minute
)

// ErrInvalidIdentifier is returned by Create when the identifier normalizes to nothing.
var ErrInvalidIdentifier = errors.New("otp: identifier is empty after normalization")

// Status is the externally visible outcome of Create or Verify.
type Status int

const (
	StatusIssued Status = iota + 1
	StatusRateLimited
	StatusVerified
	StatusInvalidOrExpired
)

func (s Status) String() string {
	switch s {
	case StatusIssued:
		return "issued"
	case StatusRateLimited:
		return "rate_limited"
	case StatusVerified:
		return "verified"
	case StatusInvalidOrExpired:
		return "invalid_or_expired"
	default:
		return "unknown"
	}
}

// Reason says which check rejected a verification. It is for telemetry only and must not reach clients.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonMissing   Reason = "missing"
	ReasonExpired   Reason = "expired"
	ReasonExhausted Reason = "exhausted"
	ReasonMismatch  Reason = "mismatch"
)

// Issued is the result of Create. Code is set only when Status is StatusIssued.
type Issued struct {
	Status     Status
	Code       string
	Identifier string
	Method     domain.Method
	ExpiresAt  time.Time
}

// Verification is the result of Verify.
type Verification struct {
	Status     Status
	Identifier string
	Method     domain.Method
	Reason     Reason
}

// OK reports whether the code was accepted.
func (v Verification) OK() bool { return v.Status == StatusVerified }

// Service issues and verifies codes on top of an expiring store keyed by normalized identifier.
type Service struct {
	store       *ttlstore.Store[domain.Entry]
	ttl         time.Duration
	rateWindow  time.Duration
	maxAttempts int
	generate    func() (string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithRateWindow overrides DefaultRateWindow.
func WithRateWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.rateWindow = d
		}
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithGenerator replaces the code generator (tests).
func WithGenerator(gen func() (string, error)) Option {
	return func(s *Service) {
		if gen != nil {
			s.generate = gen
		}
	}
}

// NewService returns a Service backed by store. The store's clock drives all TTL and window math.
func NewService(store *ttlstore.Store[domain.Entry], opts ...Option) *Service {
	s := &Service{
		store:       store,
		ttl:         DefaultTTL,
		rateWindow:  DefaultRateWindow,
		maxAttempts: DefaultMaxAttempts,
		generate:    GenerateCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create issues a new code for identifier unless a live code for it was issued less than the rate window ago.
// A rate-limited call leaves the existing entry untouched. The returned code must be delivered out of band.
func (s *Service) Create(identifier string) (Issued, error) {
	id, method := Normalize(identifier)
	if id == "" {
		return Issued{}, ErrInvalidIdentifier
	}
	code, err := s.generate()
	if err != nil {
		return Issued{}, err
	}
	out := Issued{Identifier: id, Method: method}
	s.store.Update(id, func(cur domain.Entry, ok bool) ttlstore.Change[domain.Entry] {
		now := s.store.Now()
		if ok && cur.ExpiresAt.After(now) && now.Sub(cur.CreatedAt) < s.rateWindow {
			out.Status = StatusRateLimited
			return ttlstore.Change[domain.Entry]{Op: ttlstore.OpNone}
		}
		e := domain.Entry{
			Identifier: id,
			Method:     method,
			CodeHash:   HashCode(code),
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
		}
		out.Status = StatusIssued
		out.Code = code
		out.ExpiresAt = e.ExpiresAt
		return ttlstore.Change[domain.Entry]{Op: ttlstore.OpSet, Value: e, TTL: s.ttl + expiredRetention}
	})
	return out, nil
}

// Verify checks code against the live entry for identifier. Every failure yields StatusInvalidOrExpired;
// Reason records which check failed. A correct code is consumed. After maxAttempts failed attempts the
// entry is evicted on the next try, even if that try carries the correct code.
func (s *Service) Verify(identifier, code string) Verification {
	id, method := Normalize(identifier)
	out := Verification{Status: StatusInvalidOrExpired, Identifier: id, Method: method}
	if id == "" {
		out.Reason = ReasonMissing
		return out
	}
	s.store.Update(id, func(cur domain.Entry, ok bool) ttlstore.Change[domain.Entry] {
		if !ok {
			out.Reason = ReasonMissing
			return ttlstore.Change[domain.Entry]{Op: ttlstore.OpNone}
		}
		if !cur.ExpiresAt.After(s.store.Now()) {
			out.Reason = ReasonExpired
			return ttlstore.Change[domain.Entry]{Op: ttlstore.OpDelete}
		}
		if cur.Attempts >= s.maxAttempts {
			out.Reason = ReasonExhausted
			return ttlstore.Change[domain.Entry]{Op: ttlstore.OpDelete}
		}
		cur.Attempts++
		if CodeEqual(code, cur.CodeHash) {
			out.Status = StatusVerified
			out.Method = cur.Method
			return ttlstore.Change[domain.Entry]{Op: ttlstore.OpDelete}
		}
		out.Reason = ReasonMismatch
		return ttlstore.Change[domain.Entry]{Op: ttlstore.OpSet, Value: cur}
	})
	return out
}

// Discard removes the entry for identifier, if any. Used when the issued code could not be delivered so the
// caller is not held to the rate window for a code they never received.
func (s *Service) Discard(identifier string) {
	if id, _ := Normalize(identifier); id != "" {
		s.store.Delete(id)
	}
}

// Pending returns the number of stored entries (health/metrics).
func (s *Service) Pending() int {
	return s.store.Len()
}
