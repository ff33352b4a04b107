package notify

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stitchline/checkout-api/internal/domain/order"
)

// Dispatcher fans an order event out to all configured channels. Channels are
// isolated from each other: an email failure must not prevent the messaging
// attempt, and neither affects the order, which already committed.
type Dispatcher struct {
	channels []Channel
	lg       *zap.Logger
	timeout  time.Duration

	// background is the context dispatch goroutines detach onto, so a client
	// disconnect does not cancel deliveries mid-flight.
	background context.Context
}

var _ order.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher over the given channels. background
// should be the application lifecycle context.
func NewDispatcher(background context.Context, lg *zap.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{
		channels:   channels,
		lg:         lg,
		timeout:    15 * time.Second,
		background: background,
	}
}

// OrderCreated dispatches order-confirmation notifications in the background
// and returns immediately.
func (d *Dispatcher) OrderCreated(o *order.Order) {
	go d.deliver(o)
}

func (d *Dispatcher) deliver(o *order.Order) {
	ctx, cancel := context.WithTimeout(zctx.Base(d.background, d.lg), d.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, ch := range d.channels {
		g.Go(func() error {
			if err := ch.SendOrderConfirmation(ctx, o); err != nil {
				d.lg.Warn("Order notification failed",
					zap.String("channel", ch.Name()),
					zap.String("order_id", o.ID),
					zap.Error(err),
				)
			}
			// Failures are contained per channel; never cancel siblings.
			return nil
		})
	}
	_ = g.Wait()
}
