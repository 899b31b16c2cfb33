// Package notify composes order confirmations and hands them to a delivery
// backend. Delivery itself (SMTP, templates) is owned by whoever consumes the
// messages.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/market-orders/internal/domain/order"
	"github.com/xenking/market-orders/internal/domain/product"
	"github.com/xenking/market-orders/internal/domain/user"
)

// Message is a rendered order confirmation addressed to one user.
type Message struct {
	ID           string
	To           string
	Subject      string
	Body         string
	OrderID      int64
	ProductCount int
	Lines        []Line
	Total        decimal.Decimal
}

// Line is one ordered product as listed in the confirmation.
type Line struct {
	ProductID int64
	Title     string
	Price     decimal.Decimal
}

// Sender delivers a composed message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Compose renders the confirmation for order o placed by u. products holds
// one entry per placement.
func Compose(u user.User, o *order.Order, products []product.Product) Message {
	m := Message{
		ID:           uuid.NewString(),
		To:           u.Email,
		Subject:      "Order confirmation",
		OrderID:      o.ID,
		ProductCount: len(products),
		Lines:        make([]Line, len(products)),
		Total:        o.Total,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Thank you for your order #%d.\n", o.ID)
	fmt.Fprintf(&b, "You ordered %d product(s):\n\n", len(products))
	for i, p := range products {
		m.Lines[i] = Line{ProductID: p.ID, Title: p.Title, Price: p.Price}
		fmt.Fprintf(&b, "  %s - $%s\n", p.Title, p.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nTotal: $%s\n", o.Total.StringFixed(2))
	m.Body = b.String()

	return m
}

var _ order.Notifier = (*Dispatcher)(nil)

// Dispatcher implements order.Notifier by looking up the purchasing user,
// composing the confirmation and passing it to a Sender.
type Dispatcher struct {
	users  user.Repository
	sender Sender
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(users user.Repository, sender Sender) *Dispatcher {
	return &Dispatcher{users: users, sender: sender}
}

// OrderPlaced sends the confirmation for c to the order's owner.
func (d *Dispatcher) OrderPlaced(ctx context.Context, c order.Confirmation) error {
	u, err := d.users.GetByID(ctx, c.Order.UserID)
	if err != nil {
		return errors.Wrapf(err, "get user %d", c.Order.UserID)
	}
	if err := d.sender.Send(ctx, Compose(*u, c.Order, c.Products)); err != nil {
		return errors.Wrap(err, "send confirmation")
	}
	return nil
}
