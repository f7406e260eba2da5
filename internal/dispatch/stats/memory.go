package stats

import (
	"context"
	"sync"
)

// MemoryStore keeps per-service counts in process. Useful in development and tests.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[string]*Counts
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[string]*Counts)}
}

// Record implements Recorder.
func (s *MemoryStore) Record(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counts[ev.Service]
	if !ok {
		c = &Counts{}
		s.counts[ev.Service] = c
	}
	c.add(ev.Kind)
	return nil
}

// Snapshot returns a copy of the counts for service.
func (s *MemoryStore) Snapshot(service string) Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counts[service]; ok {
		return *c
	}
	return Counts{}
}
