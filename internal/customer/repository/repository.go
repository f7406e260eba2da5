package repository

import (
	"context"

	"booking-gate/backend/internal/customer/domain"
)

// Repository looks up customers by verified contact identifier.
// Lookups return (nil, nil) when no customer matches.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*domain.Customer, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Customer, error)
}
