// Package server assembles the HTTP and gRPC surfaces.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	healthhandler "booking-gate/backend/internal/health/handler"
)

// GRPCDeps holds what the gRPC server exposes.
type GRPCDeps struct {
	Health *healthhandler.Server
}

// RegisterServices registers every gRPC service with s.
//
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps GRPCDeps) {
	if deps.Health != nil {
		deps.Health.Register(s)
	}
}

// NewGRPCServer returns a server instrumented with OpenTelemetry and with every service registered.
func NewGRPCServer(deps GRPCDeps, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, deps)
	return s
}
