// Package notify delivers best-effort order notifications. Delivery runs
// outside the reconciliation critical path: a channel failure is logged and
// never affects the persisted order or the HTTP response.
package notify

import (
	"context"

	"github.com/stitchline/checkout-api/internal/domain/order"
)

// Channel is a single notification transport (email, messaging, ...).
type Channel interface {
	Name() string
	SendOrderConfirmation(ctx context.Context, o *order.Order) error
}
