// Package ttlstore provides an in-memory keyed store whose entries expire after a per-entry TTL.
// It backs the OTP and session stores; state does not survive a restart and is not shared across instances.
package ttlstore

import (
	"context"
	"sync"
	"time"
)

// DefaultSweepInterval is how often Run evicts expired entries when no interval is configured.
const DefaultSweepInterval = 60 * time.Second

// Op tells Update what to do with the entry after the update function returns.
type Op int

const (
	// OpNone leaves the entry (or its absence) untouched.
	OpNone Op = iota
	// OpSet stores Change.Value. A zero TTL keeps the current expiry; a positive TTL restarts it.
	OpSet
	// OpDelete removes the entry.
	OpDelete
)

// Change is the result of an Update function.
type Change[V any] struct {
	Op    Op
	Value V
	TTL   time.Duration
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Store is a mutex-guarded map from key to value with absolute expiry.
// The zero value is not usable; construct with New.
type Store[V any] struct {
	mu            sync.Mutex
	m             map[string]entry[V]
	nowF          func() time.Time
	sweepInterval time.Duration
}

// Option configures a Store.
type Option func(*options)

type options struct {
	nowF          func() time.Time
	sweepInterval time.Duration
}

// WithClock sets the time source used for expiry math. Tests use it to move time forward.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.nowF = now
		}
	}
}

// WithSweepInterval sets how often Run evicts expired entries. Non-positive values keep the default.
func WithSweepInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.sweepInterval = d
		}
	}
}

// New returns an empty store.
func New[V any](opts ...Option) *Store[V] {
	o := options{
		nowF:          func() time.Time { return time.Now().UTC() },
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Store[V]{
		m:             make(map[string]entry[V]),
		nowF:          o.nowF,
		sweepInterval: o.sweepInterval,
	}
}

// Now returns the store's current time. Callers that stamp values (created/expires) use it so
// their timestamps agree with the store's expiry checks.
func (s *Store[V]) Now() time.Time {
	return s.nowF()
}

// Put stores value for key until now+ttl, replacing any previous entry.
func (s *Store[V]) Put(key string, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = entry[V]{value: value, expiresAt: s.nowF().Add(ttl)}
}

// Get returns the value for key if present and not expired. An expired entry is evicted.
func (s *Store[V]) Get(key string) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key)
	return e.value, ok
}

// Delete removes key unconditionally.
func (s *Store[V]) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

// Update runs fn against the current live value of key (ok false when absent or expired) and
// applies the returned Change, all under one lock acquisition.
func (s *Store[V]) Update(key string, fn func(cur V, ok bool) Change[V]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.liveLocked(key)
	c := fn(e.value, ok)
	switch c.Op {
	case OpSet:
		expiresAt := e.expiresAt
		if c.TTL > 0 || !ok {
			expiresAt = s.nowF().Add(c.TTL)
		}
		s.m[key] = entry[V]{value: c.Value, expiresAt: expiresAt}
	case OpDelete:
		delete(s.m, key)
	}
}

// Sweep evicts every expired entry and returns how many were removed.
func (s *Store[V]) Sweep() int {
	now := s.nowF()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.m {
		if !e.expiresAt.After(now) {
			delete(s.m, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Run sweeps expired entries every sweep interval until ctx is done.
func (s *Store[V]) Run(ctx context.Context) {
	t := time.NewTicker(s.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

func (s *Store[V]) liveLocked(key string) (entry[V], bool) {
	e, ok := s.m[key]
	if !ok {
		return entry[V]{}, false
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, key)
		return entry[V]{}, false
	}
	return e, true
}
