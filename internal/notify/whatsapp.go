package notify

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/stitchline/checkout-api/internal/domain/order"
	"github.com/stitchline/checkout-api/pkg/tokencache"
)

// WhatsAppConfig configures the WhatsApp Business messaging channel.
type WhatsAppConfig struct {
	Endpoint string
	// Timeout bounds each send. Zero means 10s.
	Timeout time.Duration
}

// WhatsAppChannel sends order confirmations through the messaging API. Access
// tokens come from the injected TTL cache rather than any process-wide global.
type WhatsAppChannel struct {
	cfg    WhatsAppConfig
	httpc  *http.Client
	tokens *tokencache.Cache
}

var _ Channel = (*WhatsAppChannel)(nil)

// NewWhatsAppChannel creates the messaging channel with its token cache.
func NewWhatsAppChannel(cfg WhatsAppConfig, tokens *tokencache.Cache) *WhatsAppChannel {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &WhatsAppChannel{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		tokens: tokens,
	}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

// SendOrderConfirmation posts the confirmation payload to the messaging API.
func (c *WhatsAppChannel) SendOrderConfirmation(ctx context.Context, o *order.Order) error {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return errors.Wrap(err, "get access token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint,
		bytes.NewReader(encodeOrderEvent(o, "")))
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "send message")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		// Token revoked before its TTL; force a reload for the next attempt.
		c.tokens.Invalidate()
	}
	if resp.StatusCode >= 300 {
		return errors.Errorf("messaging API returned %d", resp.StatusCode)
	}
	return nil
}
