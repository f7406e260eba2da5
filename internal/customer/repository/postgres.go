package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"booking-gate/backend/internal/customer/domain"
)

const selectCustomer = `SELECT id, COALESCE(email, ''), COALESCE(phone, ''), name, created_at, updated_at FROM customers`

// PostgresRepository reads customers from the customers table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a customer repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByEmail returns the customer with the given email (case-insensitive), or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx, selectCustomer+` WHERE lower(email) = $1`, strings.ToLower(email))
	return scanCustomer(row)
}

// GetByPhone returns the customer with the given digits-only phone, or nil if not found.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx, selectCustomer+` WHERE phone = $1`, phone)
	return scanCustomer(row)
}

func scanCustomer(row *sql.Row) (*domain.Customer, error) {
	var c domain.Customer
	if err := row.Scan(&c.ID, &c.Email, &c.Phone, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
