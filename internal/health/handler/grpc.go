// Package handler reports readiness through the standard gRPC health service.
package handler

import (
	"context"
	"log"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// DefaultInterval is how often Run re-checks dependencies.
	DefaultInterval = 15 * time.Second
	checkTimeout    = 5 * time.Second
)

// Pinger is used for readiness (e.g. *sql.DB or db.Checker).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker is used for readiness (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server keeps the gRPC health status in sync with the service's dependencies.
// The overall status ("") and every registered service name share one status.
type Server struct {
	health   *health.Server
	pinger   Pinger
	policy   PolicyChecker
	interval time.Duration
	services []string

	mu      sync.Mutex
	serving bool
}

// NewServer returns a health Server. Nil pinger or policy are skipped during checks.
// services lists the full service names whose status should follow readiness.
func NewServer(pinger Pinger, policy PolicyChecker, services ...string) *Server {
	s := &Server{
		health:   health.NewServer(),
		pinger:   pinger,
		policy:   policy,
		interval: DefaultInterval,
		services: append([]string{""}, services...),
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register adds the health service to srv.
func (s *Server) Register(srv grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Health returns the underlying grpc health server.
func (s *Server) Health() *health.Server { return s.health }

// Check runs every dependency check once and updates the served status.
func (s *Server) Check(ctx context.Context) error {
	err := s.check(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.mu.Lock()
	changed := s.serving != (err == nil)
	s.serving = err == nil
	s.mu.Unlock()
	if changed {
		if err != nil {
			log.Printf("health: not serving: %v", err)
		} else {
			log.Printf("health: serving")
		}
	}
	s.set(status)
	return err
}

func (s *Server) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			return err
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run checks immediately and then every interval until ctx is done.
func (s *Server) Run(ctx context.Context) {
	_ = s.Check(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = s.Check(ctx)
		}
	}
}

// Shutdown marks everything NOT_SERVING and ignores later updates.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	for _, name := range s.services {
		s.health.SetServingStatus(name, status)
	}
}
