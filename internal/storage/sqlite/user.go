package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/market-orders/internal/domain/user"
)

const (
	getUserByIDSQL = `SELECT id, email, token_hash, created_at FROM users WHERE id = ?`

	getUserByTokenHashSQL = `SELECT id, email, token_hash, created_at FROM users WHERE token_hash = ?`

	upsertUserSQL = `INSERT INTO users (email, token_hash, created_at) VALUES (?, ?, ?)
		ON CONFLICT (email) DO UPDATE SET token_hash = excluded.token_hash
		RETURNING id, created_at`

	deleteUserSQL = `DELETE FROM users WHERE id = ?`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository on SQLite.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository returns a UserRepository that uses db.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.getOne(ctx, getUserByIDSQL, id)
}

// FindByTokenHash looks up a user by the hash of their token.
func (r *UserRepository) FindByTokenHash(ctx context.Context, hash string) (*user.User, error) {
	return r.getOne(ctx, getUserByTokenHashSQL, hash)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*user.User, error) {
	var (
		u       user.User
		created int64
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.TokenHash, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	u.CreatedAt = fromMillis(created)
	return &u, nil
}

// Create inserts u, replacing the token hash of an existing user with the
// same email.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	var created int64
	err := r.db.QueryRowContext(ctx, upsertUserSQL, u.Email, u.TokenHash, now()).Scan(&u.ID, &created)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.Email, err)
	}
	u.CreatedAt = fromMillis(created)
	return nil
}

// Delete removes the user and everything that cascades from it.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, deleteUserSQL, id)
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}
