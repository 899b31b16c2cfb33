package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an order does not exist or belongs to another
// user. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("order not found")

// ValidationKind classifies a rejected order request.
type ValidationKind string

const (
	// KindEmpty means the request carried no products and empty orders are
	// disabled.
	KindEmpty ValidationKind = "empty"
	// KindProductNotFound means a requested product id does not resolve.
	KindProductNotFound ValidationKind = "product_not_found"
	// KindNegativeTotal means the computed total came out below zero.
	KindNegativeTotal ValidationKind = "negative_total"
	// KindTotalTooLarge means the computed total exceeds what can be stored.
	KindTotalTooLarge ValidationKind = "total_too_large"
)

// ValidationError reports a request that cannot become an order. No order
// data has been written when it is returned.
type ValidationError struct {
	Kind      ValidationKind
	ProductID int64
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindEmpty:
		return "order must reference at least one product"
	case KindProductNotFound:
		return fmt.Sprintf("product %d not found", e.ProductID)
	case KindNegativeTotal:
		return "order total must not be negative"
	case KindTotalTooLarge:
		return "order total is too large"
	default:
		return string(e.Kind)
	}
}

// PersistenceError wraps a storage failure while writing or reading orders.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
