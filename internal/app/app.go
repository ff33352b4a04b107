package app

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/stitchline/checkout-api/internal/domain/coupon"
	"github.com/stitchline/checkout-api/internal/domain/order"
	"github.com/stitchline/checkout-api/internal/domain/payment"
	"github.com/stitchline/checkout-api/internal/domain/wallet"
	"github.com/stitchline/checkout-api/internal/handler"
	"github.com/stitchline/checkout-api/internal/notify"
	"github.com/stitchline/checkout-api/internal/storage/postgres"
	"github.com/stitchline/checkout-api/pkg/health"
	"github.com/stitchline/checkout-api/pkg/httpmiddleware"
	"github.com/stitchline/checkout-api/pkg/tokencache"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	orderRepo := postgres.NewOrderRepository(pool)
	walletRepo := postgres.NewWalletRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Payment gateway client + signature verifier.
	gateway := payment.NewGateway(payment.GatewayConfig{
		BaseURL:   cfg.Gateway.BaseURL,
		KeyID:     cfg.Gateway.KeyID,
		KeySecret: cfg.Gateway.KeySecret,
		Timeout:   cfg.Gateway.Timeout,
	})
	verifier := payment.NewVerifier([]byte(cfg.Gateway.KeySecret))

	// Notification channels. The messaging token cache is built here, once
	// per process, and injected; clients hold no global token state.
	tokens := tokencache.New(cfg.Notify.TokenTTL, messagingTokenLoader(cfg.Notify))
	dispatcher := notify.NewDispatcher(ctx, lg.Named("notify"),
		notify.NewEmailChannel(notify.EmailConfig{
			Endpoint: cfg.Notify.EmailEndpoint,
			APIKey:   cfg.Notify.EmailAPIKey,
			From:     cfg.Notify.EmailFrom,
		}, orderRepo),
		notify.NewWhatsAppChannel(notify.WhatsAppConfig{
			Endpoint: cfg.Notify.WhatsAppEndpoint,
		}, tokens),
	)

	// Domain services.
	couponValidator := coupon.NewRepoValidator(couponRepo)
	ledger := wallet.NewLedger(walletRepo)
	orderService := order.NewService(orderRepo, couponValidator, ledger, verifier, gateway, dispatcher)

	// HTTP handlers.
	securityHandler := handler.NewSecurityHandler(apikeyRepo, []byte(cfg.APIKeyPepper))
	h := handler.NewHandler(orderService, orderRepo, walletRepo, gateway, securityHandler)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)

	instrumented := otelhttp.NewHandler(mux, "checkout-api",
		otelhttp.WithTracerProvider(m.TracerProvider()),
		otelhttp.WithMeterProvider(m.MeterProvider()),
	)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(instrumented,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "X-API-Key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.LogRequests(),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// messagingTokenLoader exchanges the WhatsApp client secret for a short-lived
// access token.
func messagingTokenLoader(cfg NotifyConfig) tokencache.LoaderFunc {
	httpc := &http.Client{Timeout: 10 * time.Second}
	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WhatsAppAuthURL, nil)
		if err != nil {
			return "", errors.Wrap(err, "create request")
		}
		req.Header.Set("Authorization", "Bearer "+cfg.WhatsAppSecret)

		resp, err := httpc.Do(req)
		if err != nil {
			return "", errors.Wrap(err, "request token")
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", errors.Errorf("token endpoint returned %d", resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err != nil {
			return "", errors.Wrap(err, "read token")
		}
		return string(body), nil
	}
}
