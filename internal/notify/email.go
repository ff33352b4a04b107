package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/stitchline/checkout-api/internal/domain/order"
)

// EmailConfig configures the transactional email channel.
type EmailConfig struct {
	Endpoint string
	APIKey   string
	From     string
	// Timeout bounds each send. Zero means 10s.
	Timeout time.Duration
}

// EmailChannel sends order confirmations through a transactional email API
// and records the email-sent flag on the order once delivery is accepted.
type EmailChannel struct {
	cfg    EmailConfig
	httpc  *http.Client
	orders order.Repository
}

var _ Channel = (*EmailChannel)(nil)

// NewEmailChannel creates the email channel. orders is used to flip the
// order's email-sent flag after a successful send.
func NewEmailChannel(cfg EmailConfig, orders order.Repository) *EmailChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &EmailChannel{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		orders: orders,
	}
}

func (c *EmailChannel) Name() string { return "email" }

// SendOrderConfirmation posts the confirmation payload to the email API.
func (c *EmailChannel) SendOrderConfirmation(ctx context.Context, o *order.Order) error {
	payload := encodeOrderEvent(o, c.cfg.From)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "send email")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return errors.Errorf("email API returned %d", resp.StatusCode)
	}

	if err := c.orders.MarkEmailSent(ctx, o.ID); err != nil {
		// Delivery already happened; only the flag update failed.
		zctx.From(ctx).Warn("Email sent but flag update failed",
			zap.String("order_id", o.ID), zap.Error(err))
	}
	return nil
}

// encodeOrderEvent builds the JSON notification payload shared by channels.
func encodeOrderEvent(o *order.Order, from string) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if from != "" {
			e.Field("from", func(e *jx.Encoder) { e.Str(from) })
		}
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.UserID) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("orderNumber", func(e *jx.Encoder) { e.Int64(o.OrderNumber) })
		e.Field("total", func(e *jx.Encoder) { e.Str(o.TotalAmount.StringFixed(2)) })
		e.Field("amountPaid", func(e *jx.Encoder) { e.Str(o.AmountPaid.StringFixed(2)) })
		e.Field("remaining", func(e *jx.Encoder) { e.Str(o.RemainingAmount.StringFixed(2)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(item.ProductID) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
					})
				}
			})
		})
	})
	return e.Bytes()
}
