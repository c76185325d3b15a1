package event

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/bistro/internal/domain/order"
)

// LogPublisher writes events to the context logger. It is the driver used
// when no broker is configured.
type LogPublisher struct{}

// Publish implements order.Publisher.
func (LogPublisher) Publish(ctx context.Context, e order.Event) error {
	zctx.From(ctx).Info("Order event",
		zap.String("event", string(e.Type())),
		zap.String("order_id", e.OrderID()),
		zap.Time("at", e.Time()),
	)
	return nil
}

// Multi fans an event out to several publishers. Every publisher is tried;
// the combined error reports each failure.
type Multi []order.Publisher

// Publish implements order.Publisher.
func (m Multi) Publish(ctx context.Context, e order.Event) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(ctx, e))
	}
	return err
}
