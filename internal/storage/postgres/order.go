package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/market-orders/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (user_id, total) VALUES ($1, $2) RETURNING id, created_at`

	createPlacementSQL = `INSERT INTO placements (order_id, product_id) VALUES ($1, $2) RETURNING id`

	listOrdersByUserSQL = `SELECT id, user_id, total, created_at FROM orders
		WHERE user_id = $1 ORDER BY id`

	getOrderForUserSQL = `SELECT id, user_id, total, created_at FROM orders
		WHERE id = $1 AND user_id = $2`

	listPlacementsSQL = `SELECT id, order_id, product_id FROM placements
		WHERE order_id = ANY($1) ORDER BY id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its placements in a single transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, createOrderSQL, o.UserID, o.Total).Scan(&o.ID, &o.CreatedAt); err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	if len(o.Placements) > 0 {
		batch := &pgx.Batch{}
		for i := range o.Placements {
			batch.Queue(createPlacementSQL, o.ID, o.Placements[i].ProductID)
		}
		br := tx.SendBatch(ctx, batch)
		for i := range o.Placements {
			if err := br.QueryRow().Scan(&o.Placements[i].ID); err != nil {
				_ = br.Close()
				return fmt.Errorf("inserting placement for product %d: %w", o.Placements[i].ProductID, err)
			}
			o.Placements[i].OrderID = o.ID
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("inserting placements: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order %d: %w", o.ID, err)
	}
	return nil
}

// ListByUser returns the user's orders ordered by ID, placements included.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of user %d: %w", userID, err)
	}

	if err := r.loadPlacements(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetForUser returns the order only when it is owned by userID.
func (r *OrderRepository) GetForUser(ctx context.Context, userID, orderID int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderForUserSQL, orderID, userID)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", orderID, err)
	}

	orders := []order.Order{o}
	if err := r.loadPlacements(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// loadPlacements fetches placements for all orders in one query.
func (r *OrderRepository) loadPlacements(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.pool.Query(ctx, listPlacementsSQL, ids)
	if err != nil {
		return fmt.Errorf("listing placements: %w", err)
	}
	placements, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Placement, error) {
		var p order.Placement
		err := row.Scan(&p.ID, &p.OrderID, &p.ProductID)
		return p, err
	})
	if err != nil {
		return fmt.Errorf("listing placements: %w", err)
	}

	for _, p := range placements {
		i := index[p.OrderID]
		orders[i].Placements = append(orders[i].Placements, p)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Total, &o.CreatedAt)
	return o, err
}
