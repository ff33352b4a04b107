package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
)

// Intent is a payment intent created with the gateway. The customer completes
// the payment against IntentID on the storefront; the gateway then signs
// (IntentID, transactionID) for server-side verification.
type Intent struct {
	IntentID string
	Amount   decimal.Decimal
	Currency string
}

// Client creates payment intents with the external processor.
type Client interface {
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (*Intent, error)
}

// TransientError wraps gateway failures that are safe to retry: timeouts,
// connection errors, 5xx responses, and an open circuit breaker.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient gateway error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// GatewayConfig configures the HTTP gateway client.
type GatewayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	// Timeout bounds each gateway call. Zero means 10s.
	Timeout time.Duration
}

// Gateway is an HTTP payment-processor client. All calls carry an explicit
// timeout and run through a circuit breaker so a degraded processor cannot
// pile up in-flight reconciliation requests.
type Gateway struct {
	cfg     GatewayConfig
	httpc   *http.Client
	breaker *gobreaker.CircuitBreaker[*Intent]
}

var _ Client = (*Gateway)(nil)

// NewGateway creates a Gateway client for the given processor credentials.
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Gateway{
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker[*Intent](gobreaker.Settings{
			Name:    "payment-gateway",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// CreateIntent registers a payment intent for the given amount with the
// processor and returns its identifier. Amounts are sent in the smallest
// currency unit, as the processor expects.
func (g *Gateway) CreateIntent(ctx context.Context, amount decimal.Decimal, currency string) (*Intent, error) {
	if !amount.IsPositive() {
		return nil, errors.Errorf("intent amount must be positive, got %s", amount)
	}

	intent, err := g.breaker.Execute(func() (*Intent, error) {
		return g.createIntent(ctx, amount, currency)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &TransientError{Err: err}
		}
		return nil, err
	}
	return intent, nil
}

func (g *Gateway) createIntent(ctx context.Context, amount decimal.Decimal, currency string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) {
			// Smallest currency unit: 100 subunits per unit.
			e.Int64(amount.Mul(decimal.NewFromInt(100)).IntPart())
		})
		e.Field("currency", func(e *jx.Encoder) { e.Str(currency) })
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/orders", bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(g.cfg.KeyID, g.cfg.KeySecret)

	resp, err := g.httpc.Do(req)
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &TransientError{Err: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, &TransientError{Err: errors.Errorf("gateway returned %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, errors.Errorf("gateway rejected intent: status %d: %s", resp.StatusCode, body)
	}

	intent, err := decodeIntent(body)
	if err != nil {
		return nil, errors.Wrap(err, "decode intent")
	}
	intent.Currency = currency
	return intent, nil
}

// decodeIntent parses the processor's order-creation response.
func decodeIntent(body []byte) (*Intent, error) {
	var intent Intent
	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			id, err := d.Str()
			if err != nil {
				return err
			}
			intent.IntentID = id
			return nil
		case "amount":
			subunits, err := d.Int64()
			if err != nil {
				return err
			}
			intent.Amount = decimal.NewFromInt(subunits).Div(decimal.NewFromInt(100))
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	if intent.IntentID == "" {
		return nil, errors.New("response missing intent id")
	}
	return &intent, nil
}
