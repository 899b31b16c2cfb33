package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/market-orders/internal/domain/product"
)

// MaxTotal is the first total that no longer fits the orders.total column.
var MaxTotal = decimal.New(1, 18)

// Price sums the price of every line. Each entry counts once, so a product
// that appears twice is charged twice.
func Price(lines []product.Product) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, p := range lines {
		total = total.Add(p.Price)
	}
	if total.IsNegative() {
		return decimal.Zero, &ValidationError{Kind: KindNegativeTotal}
	}
	if total.GreaterThanOrEqual(MaxTotal) {
		return decimal.Zero, &ValidationError{Kind: KindTotalTooLarge}
	}
	return total, nil
}
