package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/market-orders/internal/domain/user"
)

const (
	getUserByIDSQL = `SELECT id, email, token_hash, created_at FROM users WHERE id = $1`

	getUserByTokenHashSQL = `SELECT id, email, token_hash, created_at FROM users WHERE token_hash = $1`

	upsertUserSQL = `INSERT INTO users (email, token_hash) VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET token_hash = EXCLUDED.token_hash
		RETURNING id, created_at`

	deleteUserSQL = `DELETE FROM users WHERE id = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a UserRepository that uses the given pool.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	return r.getOne(ctx, getUserByIDSQL, id)
}

// FindByTokenHash looks up a user by the HMAC-SHA256 hash of their token.
func (r *UserRepository) FindByTokenHash(ctx context.Context, hash string) (*user.User, error) {
	return r.getOne(ctx, getUserByTokenHashSQL, hash)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*user.User, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

// Create inserts u, replacing the token hash of an existing user with the
// same email.
func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	err := r.pool.QueryRow(ctx, upsertUserSQL, u.Email, u.TokenHash).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting user %q: %w", u.Email, err)
	}
	return nil
}

// Delete removes the user. Foreign keys cascade to products, orders and
// placements.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteUserSQL, id)
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var u user.User
	err := row.Scan(&u.ID, &u.Email, &u.TokenHash, &u.CreatedAt)
	return u, err
}
