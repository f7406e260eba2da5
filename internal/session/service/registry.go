package service

import (
	"context"
	"sync"
	"time"

	"booking-gate/backend/internal/session/domain"
	"booking-gate/backend/internal/session/repository"
	"booking-gate/backend/internal/ttlstore"
)

// Default session lifetimes per context.
var DefaultTTLs = map[domain.Context]time.Duration{
	domain.ContextBooking:   30 * time.Minute,
	domain.ContextPortal:    24 * time.Hour,
	domain.ContextAssistant: 2 * time.Hour,
}

// Registry owns one Service (and one store) per context.
type Registry struct {
	services map[domain.Context]*Service
	sweepers []func(context.Context)
}

type registryOptions struct {
	nowF          func() time.Time
	sweepInterval time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*registryOptions)

// WithRegistryClock sets the clock shared by every context's store and service.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(o *registryOptions) { o.nowF = now }
}

// WithSweepInterval sets how often each context's store evicts expired sessions.
func WithSweepInterval(d time.Duration) RegistryOption {
	return func(o *registryOptions) { o.sweepInterval = d }
}

// NewRegistry builds a Service for every context in domain.Contexts. ttls overrides DefaultTTLs per context;
// missing or non-positive entries fall back to the default.
func NewRegistry(ttls map[domain.Context]time.Duration, opts ...RegistryOption) *Registry {
	var o registryOptions
	for _, opt := range opts {
		opt(&o)
	}
	r := &Registry{services: make(map[domain.Context]*Service, len(domain.Contexts))}
	for _, c := range domain.Contexts {
		ttl := ttls[c]
		if ttl <= 0 {
			ttl = DefaultTTLs[c]
		}
		store := ttlstore.New[domain.Session](ttlstore.WithClock(o.nowF), ttlstore.WithSweepInterval(o.sweepInterval))
		r.services[c] = NewService(c, ttl, repository.NewMemoryRepository(store), WithClock(o.nowF))
		r.sweepers = append(r.sweepers, store.Run)
	}
	return r
}

// Get returns the Service for c.
func (r *Registry) Get(c domain.Context) (*Service, bool) {
	s, ok := r.services[c]
	return s, ok
}

// Run sweeps every context's store until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sweep := range r.sweepers {
		wg.Add(1)
		go func(run func(context.Context)) {
			defer wg.Done()
			run(ctx)
		}(sweep)
	}
	wg.Wait()
}
