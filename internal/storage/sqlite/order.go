package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/market-orders/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (user_id, total, created_at) VALUES (?, ?, ?) RETURNING id`

	createPlacementSQL = `INSERT INTO placements (order_id, product_id) VALUES (?, ?) RETURNING id`

	listOrdersByUserSQL = `SELECT id, user_id, total, created_at FROM orders
		WHERE user_id = ? ORDER BY id`

	getOrderForUserSQL = `SELECT id, user_id, total, created_at FROM orders
		WHERE id = ? AND user_id = ?`

	listPlacementsByUserSQL = `SELECT p.id, p.order_id, p.product_id FROM placements p
		JOIN orders o ON o.id = p.order_id
		WHERE o.user_id = ? ORDER BY p.id`

	listPlacementsByOrderSQL = `SELECT id, order_id, product_id FROM placements
		WHERE order_id = ? ORDER BY id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository on SQLite.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create persists the order and its placements in a single transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created := now()
	if err := tx.QueryRowContext(ctx, createOrderSQL, o.UserID, o.Total.StringFixed(2), created).Scan(&o.ID); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	for i := range o.Placements {
		pl := &o.Placements[i]
		if err := tx.QueryRowContext(ctx, createPlacementSQL, o.ID, pl.ProductID).Scan(&pl.ID); err != nil {
			return fmt.Errorf("inserting placement for product %d: %w", pl.ProductID, err)
		}
		pl.OrderID = o.ID
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing order %d: %w", o.ID, err)
	}
	o.CreatedAt = fromMillis(created)
	return nil
}

// ListByUser returns the user's orders ordered by ID, placements included.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.db.QueryContext(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	orders, err := collectOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	if len(orders) == 0 {
		return orders, nil
	}

	rows, err = r.db.QueryContext(ctx, listPlacementsByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing placements: %w", err)
	}
	if err := attachPlacements(rows, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetForUser returns the order only when it is owned by userID.
func (r *OrderRepository) GetForUser(ctx context.Context, userID, orderID int64) (*order.Order, error) {
	var (
		o       order.Order
		created int64
	)
	err := r.db.QueryRowContext(ctx, getOrderForUserSQL, orderID, userID).
		Scan(&o.ID, &o.UserID, &o.Total, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", orderID, err)
	}
	o.CreatedAt = fromMillis(created)

	rows, err := r.db.QueryContext(ctx, listPlacementsByOrderSQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("listing placements: %w", err)
	}
	orders := []order.Order{o}
	if err := attachPlacements(rows, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func collectOrders(rows *sql.Rows) ([]order.Order, error) {
	defer func() { _ = rows.Close() }()

	var out []order.Order
	for rows.Next() {
		var (
			o       order.Order
			created int64
		)
		if err := rows.Scan(&o.ID, &o.UserID, &o.Total, &created); err != nil {
			return nil, err
		}
		o.CreatedAt = fromMillis(created)
		out = append(out, o)
	}
	return out, rows.Err()
}

// attachPlacements appends every scanned placement to its order in orders.
func attachPlacements(rows *sql.Rows, orders []order.Order) error {
	defer func() { _ = rows.Close() }()

	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		index[o.ID] = i
	}
	for rows.Next() {
		var p order.Placement
		if err := rows.Scan(&p.ID, &p.OrderID, &p.ProductID); err != nil {
			return fmt.Errorf("scanning placement: %w", err)
		}
		if i, ok := index[p.OrderID]; ok {
			orders[i].Placements = append(orders[i].Placements, p)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating placements: %w", err)
	}
	return nil
}
