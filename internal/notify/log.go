package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// LogSender writes confirmations to the log instead of delivering them. It
// is used when no message broker is configured.
type LogSender struct{}

// Send logs m with the logger from ctx.
func (LogSender) Send(ctx context.Context, m Message) error {
	zctx.From(ctx).Info("Order confirmation",
		zap.String("message_id", m.ID),
		zap.String("to", m.To),
		zap.Int64("order_id", m.OrderID),
		zap.Int("product_count", m.ProductCount),
		zap.String("total", m.Total.StringFixed(2)),
	)
	return nil
}
