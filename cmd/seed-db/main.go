// Command seed-db provisions an admin API key and demo coupon rules. It is
// idempotent: re-running with the same inputs updates rows in place.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/stitchline/checkout-api/internal/storage/postgres"
)

type demoCoupon struct {
	code         string
	discountType string
	value        string
	minItems     int32
	description  string
}

var demoCoupons = []demoCoupon{
	{"WELCOME10", "percentage", "10", 0, "10% off your first order"},
	{"FLAT100", "fixed", "100", 0, "Flat ₹100 off"},
	{"BULKTEES", "free_lowest", "0", 3, "Cheapest tee free on 3+ items"},
}

func main() {
	var (
		databaseURL string
		apiKey      string
		pepper      string
		skipCoupons bool
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to provision")
	flag.StringVar(&pepper, "api-key-pepper", "", "HMAC pepper used for API key hashing")
	flag.BoolVar(&skipCoupons, "skip-coupons", false, "do not seed demo coupons")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, apiKey, pepper, skipCoupons); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed")
}

func run(ctx context.Context, databaseURL, apiKey, pepper string, skipCoupons bool) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if apiKey != "" {
		mac := hmac.New(sha256.New, []byte(pepper))
		mac.Write([]byte(apiKey))
		hash := hex.EncodeToString(mac.Sum(nil))

		_, err = pool.Exec(ctx, `INSERT INTO api_keys (id, key_hash, name, active)
			VALUES ($1, $2, 'admin', TRUE)
			ON CONFLICT (key_hash) DO UPDATE SET active = TRUE`,
			uuid.New().String(), hash,
		)
		if err != nil {
			return errors.Wrap(err, "seed api key")
		}
		slog.Info("admin api key provisioned")
	}

	if skipCoupons {
		return nil
	}
	for _, c := range demoCoupons {
		_, err := pool.Exec(ctx, `INSERT INTO coupons (code, discount_type, value, min_items, description, active)
			VALUES ($1, $2, $3, $4, $5, TRUE)
			ON CONFLICT (code) DO UPDATE
			SET discount_type = EXCLUDED.discount_type, value = EXCLUDED.value,
			    min_items = EXCLUDED.min_items, description = EXCLUDED.description, active = TRUE`,
			c.code, c.discountType, c.value, c.minItems, c.description,
		)
		if err != nil {
			return errors.Wrapf(err, "seed coupon %s", c.code)
		}
	}
	slog.Info("demo coupons seeded", slog.Int("count", len(demoCoupons)))
	return nil
}
