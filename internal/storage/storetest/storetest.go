// Package storetest holds behavioural tests shared by every storage backend.
package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/market-orders/internal/domain/order"
	"github.com/xenking/market-orders/internal/domain/product"
	"github.com/xenking/market-orders/internal/domain/user"
)

// Stores groups the repositories of one backend.
type Stores struct {
	Users    user.Repository
	Products product.Repository
	Orders   order.Repository
}

// Run executes the shared suite against s. Each test creates its own users,
// so a single database can be reused across the suite.
func Run(t *testing.T, s Stores) {
	t.Run("Users", func(t *testing.T) { testUsers(t, s) })
	t.Run("Products", func(t *testing.T) { testProducts(t, s) })
	t.Run("OrderCreateAndGet", func(t *testing.T) { testOrderCreateAndGet(t, s) })
	t.Run("OrderOwnership", func(t *testing.T) { testOrderOwnership(t, s) })
	t.Run("OrderLargeTotal", func(t *testing.T) { testOrderLargeTotal(t, s) })
	t.Run("OrderRollback", func(t *testing.T) { testOrderRollback(t, s) })
	t.Run("DeleteUserCascades", func(t *testing.T) { testDeleteUserCascades(t, s) })
	t.Run("DeleteProductCascades", func(t *testing.T) { testDeleteProductCascades(t, s) })
	t.Run("ServiceAtomicity", func(t *testing.T) { testServiceAtomicity(t, s) })
}

func newUser(t *testing.T, s Stores) *user.User {
	t.Helper()
	id := uuid.NewString()
	u := &user.User{Email: id + "@example.com", TokenHash: "hash-" + id}
	require.NoError(t, s.Users.Create(context.Background(), u))
	require.NotZero(t, u.ID)
	return u
}

func newProduct(t *testing.T, s Stores, owner int64, title, price string) *product.Product {
	t.Helper()
	p := &product.Product{UserID: owner, Title: title, Price: decimal.RequireFromString(price)}
	require.NoError(t, s.Products.Create(context.Background(), p))
	require.NotZero(t, p.ID)
	return p
}

func newOrder(t *testing.T, s Stores, buyer int64, total string, products ...*product.Product) *order.Order {
	t.Helper()
	o := &order.Order{UserID: buyer, Total: decimal.RequireFromString(total)}
	for _, p := range products {
		o.Placements = append(o.Placements, order.Placement{ProductID: p.ID})
	}
	require.NoError(t, s.Orders.Create(context.Background(), o))
	require.NotZero(t, o.ID)
	return o
}

func testUsers(t *testing.T, s Stores) {
	ctx := context.Background()
	u := newUser(t, s)

	got, err := s.Users.FindByTokenHash(ctx, u.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.Email, got.Email)

	got, err = s.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.TokenHash, got.TokenHash)

	_, err = s.Users.FindByTokenHash(ctx, "no-such-hash")
	require.ErrorIs(t, err, user.ErrNotFound)

	// Re-creating by email rotates the token and keeps the id.
	again := &user.User{Email: u.Email, TokenHash: "rotated-" + uuid.NewString()}
	require.NoError(t, s.Users.Create(ctx, again))
	assert.Equal(t, u.ID, again.ID)
	got, err = s.Users.FindByTokenHash(ctx, again.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	require.ErrorIs(t, s.Users.Delete(ctx, -1), user.ErrNotFound)
}

func testProducts(t *testing.T, s Stores) {
	ctx := context.Background()
	seller := newUser(t, s)
	p1 := newProduct(t, s, seller.ID, "Widget", "10.00")
	p2 := newProduct(t, s, seller.ID, "Gadget", "15.25")

	got, err := s.Products.GetByID(ctx, p2.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gadget", got.Title)
	assert.Equal(t, seller.ID, got.UserID)
	assert.True(t, decimal.RequireFromString("15.25").Equal(got.Price), "price %s", got.Price)

	_, err = s.Products.GetByID(ctx, -1)
	require.ErrorIs(t, err, product.ErrNotFound)

	batch, err := s.Products.GetByIDs(ctx, []int64{p1.ID, -1, p2.ID})
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	// Lists longer than any driver bind limit still resolve in one call.
	long := []int64{p1.ID}
	for id := int64(-1); id >= -40_000; id-- {
		long = append(long, id)
	}
	long = append(long, p2.ID)
	batch, err = s.Products.GetByIDs(ctx, long)
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	all, err := s.Products.List(ctx)
	require.NoError(t, err)
	var found int
	for _, p := range all {
		if p.ID == p1.ID || p.ID == p2.ID {
			found++
		}
	}
	assert.Equal(t, 2, found)
}

func testOrderCreateAndGet(t *testing.T, s Stores) {
	ctx := context.Background()
	seller := newUser(t, s)
	buyer := newUser(t, s)
	p1 := newProduct(t, s, seller.ID, "Widget", "10.00")
	p2 := newProduct(t, s, seller.ID, "Gadget", "15.00")

	o := newOrder(t, s, buyer.ID, "35.00", p1, p2, p1)
	require.Len(t, o.Placements, 3)
	for _, pl := range o.Placements {
		assert.NotZero(t, pl.ID)
		assert.Equal(t, o.ID, pl.OrderID)
	}
	assert.False(t, o.CreatedAt.IsZero())

	got, err := s.Orders.GetForUser(ctx, buyer.ID, o.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("35").Equal(got.Total), "total %s", got.Total)
	assert.Equal(t, []int64{p1.ID, p2.ID, p1.ID}, got.ProductIDs())

	empty := newOrder(t, s, buyer.ID, "0")
	got, err = s.Orders.GetForUser(ctx, buyer.ID, empty.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Placements)

	list, err := s.Orders.ListByUser(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, o.ID, list[0].ID)
	assert.Len(t, list[0].Placements, 3)
	assert.Equal(t, empty.ID, list[1].ID)
	assert.Empty(t, list[1].Placements)
}

func testOrderOwnership(t *testing.T, s Stores) {
	ctx := context.Background()
	seller := newUser(t, s)
	alice := newUser(t, s)
	bob := newUser(t, s)
	p := newProduct(t, s, seller.ID, "Widget", "10.00")
	o := newOrder(t, s, alice.ID, "10.00", p)

	_, err := s.Orders.GetForUser(ctx, bob.ID, o.ID)
	require.ErrorIs(t, err, order.ErrNotFound)

	_, err = s.Orders.GetForUser(ctx, alice.ID, o.ID+1_000_000)
	require.ErrorIs(t, err, order.ErrNotFound)

	list, err := s.Orders.ListByUser(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testOrderLargeTotal(t *testing.T, s Stores) {
	ctx := context.Background()
	seller := newUser(t, s)
	buyer := newUser(t, s)
	p := newProduct(t, s, seller.ID, "Yacht", "9999999999.99")

	// Beyond twelve integer digits, well past a single product price.
	o := newOrder(t, s, buyer.ID, "999999999999999.99", p)

	got, err := s.Orders.GetForUser(ctx, buyer.ID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "999999999999999.99", got.Total.StringFixed(2))
}

func testOrderRollback(t *testing.T, s Stores) {
	ctx := context.Background()
	seller := newUser(t, s)
	buyer := newUser(t, s)
	p := newProduct(t, s, seller.ID, "Widget", "10.00")

	// The second placement violates the products foreign key, so the order
	// row written before it must be rolled back.
	o := &order.Order{
		UserID: buyer.ID,
		Total:  decimal.RequireFromString("10.00"),
		Placements: []order.Placement{
			{ProductID: p.ID},
			{ProductID: -42},
		},
	}
	require.Error(t, s.Orders.Create(ctx, o))

	list, err := s.Orders.ListByUser(ctx, buyer.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testDeleteUserCascades(t *testing.T, s Stores) {
	ctx := context.Background()
	seller := newUser(t, s)
	buyer := newUser(t, s)
	other := newUser(t, s)

	sellerProduct := newProduct(t, s, seller.ID, "Widget", "10.00")
	buyerProduct := newProduct(t, s, buyer.ID, "Used lamp", "5.00")

	buyerOrder := newOrder(t, s, buyer.ID, "10.00", sellerProduct)
	otherOrder := newOrder(t, s, other.ID, "15.00", sellerProduct, buyerProduct)

	require.NoError(t, s.Users.Delete(ctx, buyer.ID))

	_, err := s.Users.GetByID(ctx, buyer.ID)
	require.ErrorIs(t, err, user.ErrNotFound)

	_, err = s.Orders.GetForUser(ctx, buyer.ID, buyerOrder.ID)
	require.ErrorIs(t, err, order.ErrNotFound)

	_, err = s.Products.GetByID(ctx, buyerProduct.ID)
	require.ErrorIs(t, err, product.ErrNotFound)

	// Products of other users survive.
	_, err = s.Products.GetByID(ctx, sellerProduct.ID)
	require.NoError(t, err)

	// The other buyer keeps the order; only the placement of the deleted
	// product is gone, and the total is never re-priced.
	got, err := s.Orders.GetForUser(ctx, other.ID, otherOrder.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{sellerProduct.ID}, got.ProductIDs())
	assert.True(t, decimal.RequireFromString("15").Equal(got.Total))
}

func testDeleteProductCascades(t *testing.T, s Stores) {
	ctx := context.Background()
	seller := newUser(t, s)
	buyer := newUser(t, s)
	p := newProduct(t, s, seller.ID, "Widget", "10.00")
	o := newOrder(t, s, buyer.ID, "20.00", p, p)

	require.NoError(t, s.Users.Delete(ctx, seller.ID))

	got, err := s.Orders.GetForUser(ctx, buyer.ID, o.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Placements)
}

func testServiceAtomicity(t *testing.T, s Stores) {
	ctx := context.Background()
	seller := newUser(t, s)
	buyer := newUser(t, s)
	p1 := newProduct(t, s, seller.ID, "Widget", "10.00")
	p2 := newProduct(t, s, seller.ID, "Gadget", "15.00")

	svc, err := order.NewService(s.Products, s.Orders, nil)
	require.NoError(t, err)

	placed, err := svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:     buyer.ID,
		ProductIDs: []int64{p1.ID, p2.ID},
	})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25").Equal(placed.Order.Total))

	_, err = svc.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID:     buyer.ID,
		ProductIDs: []int64{p1.ID, -7},
	})
	var vErr *order.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, order.KindProductNotFound, vErr.Kind)

	list, err := svc.ListOrders(ctx, buyer.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := svc.GetOrder(ctx, buyer.ID, placed.Order.ID)
	require.NoError(t, err)
	require.Len(t, got.Products, 2)
	assert.Equal(t, "Widget", got.Products[0].Title)
	assert.Equal(t, "Gadget", got.Products[1].Title)
}
