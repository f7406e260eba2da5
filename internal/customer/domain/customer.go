package domain

import "time"

// Customer is a known booking customer. Email and Phone are stored normalized (lowercase email, digits-only phone).
type Customer struct {
	ID        string
	Email     string
	Phone     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
