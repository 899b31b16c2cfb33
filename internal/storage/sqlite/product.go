package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/market-orders/internal/domain/product"
)

const (
	listProductsSQL = `SELECT id, user_id, title, price FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, user_id, title, price FROM products WHERE id = ?`

	getProductsByIDsSQL = `SELECT id, user_id, title, price FROM products WHERE id IN (%s)`

	createProductSQL = `INSERT INTO products (user_id, title, price, created_at) VALUES (?, ?, ?, ?) RETURNING id`
)

// maxBatchIDs keeps IN lists under SQLITE_MAX_VARIABLE_NUMBER, which is 999
// on builds older than 3.32.
const maxBatchIDs = 500

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository on SQLite.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository returns a ProductRepository that uses db.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// List returns all products ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.db.QueryContext(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return collectProducts(rows)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	var p product.Product
	err := r.db.QueryRowContext(ctx, getProductByIDSQL, id).Scan(&p.ID, &p.UserID, &p.Title, &p.Price)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Long id lists
// are queried in batches of maxBatchIDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	var out []product.Product
	for start := 0; start < len(ids); start += maxBatchIDs {
		batch := ids[start:min(start+maxBatchIDs, len(ids))]
		query := fmt.Sprintf(getProductsByIDsSQL, placeholders(len(batch)))
		rows, err := r.db.QueryContext(ctx, query, int64Args(batch)...)
		if err != nil {
			return nil, fmt.Errorf("getting products by ids: %w", err)
		}
		products, err := collectProducts(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, products...)
	}
	return out, nil
}

// Create inserts p and sets its ID.
func (r *ProductRepository) Create(ctx context.Context, p *product.Product) error {
	err := r.db.QueryRowContext(ctx, createProductSQL, p.UserID, p.Title, p.Price.StringFixed(2), now()).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.Title, err)
	}
	return nil
}

func collectProducts(rows *sql.Rows) ([]product.Product, error) {
	defer func() { _ = rows.Close() }()

	var out []product.Product
	for rows.Next() {
		var p product.Product
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Price); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating products: %w", err)
	}
	return out, nil
}
