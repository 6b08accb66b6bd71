package model

import "time"

// User roles.
const (
	RoleCustomer = "CUSTOMER"
	RoleOwner    = "OWNER"
)

// User is an authenticated principal — the actor bound to JWT claims and to
// bookings/payments made on their behalf.
type User struct {
	ID           uint64    // users.id
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	IsActive     bool      // users.is_active
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at
}
