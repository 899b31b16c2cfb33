package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// User is an account that lists products and places orders.
type User struct {
	ID        int64
	Email     string
	TokenHash string
	CreatedAt time.Time
}

// Repository defines persistence operations for users.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	// FindByTokenHash looks up a user by the HMAC hash of their API token.
	FindByTokenHash(ctx context.Context, hash string) (*User, error)
	// Create inserts u, or updates the token of an existing user with the
	// same email, and sets u.ID.
	Create(ctx context.Context, u *User) error
	// Delete removes the user together with their products and orders.
	Delete(ctx context.Context, id int64) error
}
