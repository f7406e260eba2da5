// Package customer resolves a verified contact identifier to a known customer record.
package customer

import (
	"context"
	"fmt"

	"booking-gate/backend/internal/customer/domain"
	"booking-gate/backend/internal/customer/repository"
	"booking-gate/backend/internal/dispatch"
	otpdomain "booking-gate/backend/internal/otp/domain"
)

// LaneCRM is the dispatch lane customer lookups run on.
const LaneCRM = "crm-api"

// Resolver maps identifiers to customer IDs through the crm-api dispatch lane.
type Resolver struct {
	repo  repository.Repository
	queue *dispatch.Queue
	rps   float64
}

// NewResolver returns a Resolver. A nil repo yields a Resolver that never finds anyone.
func NewResolver(repo repository.Repository, queue *dispatch.Queue, rps float64) *Resolver {
	return &Resolver{repo: repo, queue: queue, rps: rps}
}

// Resolve returns the customer ID for a normalized identifier, or nil when no customer matches.
func (r *Resolver) Resolve(ctx context.Context, identifier string, method otpdomain.Method) (*string, error) {
	if r == nil || r.repo == nil {
		return nil, nil
	}
	c, err := dispatch.Do(ctx, r.queue, LaneCRM, r.rps, func(ctx context.Context) (*domain.Customer, error) {
		switch method {
		case otpdomain.MethodEmail:
			return r.repo.GetByEmail(ctx, identifier)
		case otpdomain.MethodPhone:
			return r.repo.GetByPhone(ctx, identifier)
		default:
			return nil, fmt.Errorf("customer: unknown method %q", method)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("customer: resolve: %w", err)
	}
	if c == nil {
		return nil, nil
	}
	id := c.ID
	return &id, nil
}
