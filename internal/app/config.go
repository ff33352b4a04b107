package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (CHECKOUT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (CHECKOUT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for admin API key hashing" flag:"api-key-pepper"`
	Gateway      GatewayConfig
	Notify       NotifyConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// GatewayConfig holds the payment processor credentials.
type GatewayConfig struct {
	BaseURL   string        `usage:"Payment gateway base URL" flag:"gateway-url"`
	KeyID     string        `usage:"Payment gateway key id" flag:"gateway-key-id"`
	KeySecret string        `usage:"Payment gateway key secret (also the signature HMAC secret)" flag:"gateway-key-secret"`
	Timeout   time.Duration `default:"10s" usage:"Per-call gateway timeout"`
}

// NotifyConfig holds the notification channel endpoints.
type NotifyConfig struct {
	EmailEndpoint    string        `usage:"Transactional email API endpoint" flag:"email-endpoint"`
	EmailAPIKey      string        `usage:"Transactional email API key" flag:"email-api-key"`
	EmailFrom        string        `default:"orders@stitchline.in" usage:"Confirmation email sender"`
	WhatsAppEndpoint string        `usage:"WhatsApp Business API endpoint" flag:"whatsapp-endpoint"`
	WhatsAppAuthURL  string        `usage:"WhatsApp Business token endpoint" flag:"whatsapp-auth-url"`
	WhatsAppSecret   string        `usage:"WhatsApp Business client secret" flag:"whatsapp-secret"`
	TokenTTL         time.Duration `default:"50m" usage:"Messaging access token cache TTL" flag:"token-ttl"`
}

// RateLimitConfig controls the per-client rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "CHECKOUT",
		Files:     []string{"config.yaml", "/etc/checkout/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set CHECKOUT_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Gateway.KeySecret == "" {
		return nil, errors.New("gateway key secret is required: set CHECKOUT_GATEWAY_KEY_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's CHECKOUT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
