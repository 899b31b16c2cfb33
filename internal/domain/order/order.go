package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/market-orders/internal/domain/product"
)

// Order is a purchase owned by one user. Total is computed by the server from
// product prices at placement time and never recomputed afterwards.
type Order struct {
	ID         int64
	UserID     int64
	Total      decimal.Decimal
	Placements []Placement
	CreatedAt  time.Time
}

// ProductIDs returns the product id of every placement, in placement order.
func (o *Order) ProductIDs() []int64 {
	ids := make([]int64, len(o.Placements))
	for i, p := range o.Placements {
		ids[i] = p.ProductID
	}
	return ids
}

// Placement is a line item linking an order to one product.
type Placement struct {
	ID        int64
	OrderID   int64
	ProductID int64
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create writes the order and all of its placements as one unit and
	// fills in the generated ids. Nothing is written on error.
	Create(ctx context.Context, o *Order) error
	// ListByUser returns the user's orders with placements, oldest first.
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
	// GetForUser returns the order only if it belongs to userID, and
	// ErrNotFound otherwise.
	GetForUser(ctx context.Context, userID, orderID int64) (*Order, error)
}

// Confirmation is handed to the Notifier once an order is persisted.
type Confirmation struct {
	Order    *Order
	Products []product.Product
}

// Notifier delivers order confirmations to the purchasing user.
type Notifier interface {
	OrderPlaced(ctx context.Context, c Confirmation) error
}
