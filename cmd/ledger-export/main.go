// Command ledger-export dumps orders and wallet transactions as gzipped
// NDJSON for finance reconciliation. Both exports stream row by row, so the
// tool runs in constant memory regardless of table size.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/stitchline/checkout-api/internal/storage/postgres"
)

const (
	ordersSQL = `SELECT id, order_number, payment_reference, user_id, total_amount,
		amount_paid, remaining_amount, payment_status, payment_mode,
		fulfillment_status, created_at
	FROM orders ORDER BY created_at`

	transactionsSQL = `SELECT w.user_id, t.id, t.order_id, t.amount, t.type, t.status, t.created_at
	FROM wallet_transactions t JOIN wallets w ON w.id = t.wallet_id
	ORDER BY t.created_at`
)

func main() {
	var (
		databaseURL string
		outDir      string
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&outDir, "out-dir", "export", "directory for the export files")
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

	if err := run(ctx, databaseURL, outDir); err != nil {
		slog.Error("ledger export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("ledger export completed")
}

func run(ctx context.Context, databaseURL, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrap(err, "create output dir")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "create pool")
	}
	defer pool.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := exportOrders(ctx, pool, filepath.Join(outDir, "orders.ndjson.gz"))
		if err != nil {
			return errors.Wrap(err, "export orders")
		}
		slog.Info("orders exported", slog.Int("count", n))
		return nil
	})
	g.Go(func() error {
		n, err := exportTransactions(ctx, pool, filepath.Join(outDir, "wallet_transactions.ndjson.gz"))
		if err != nil {
			return errors.Wrap(err, "export wallet transactions")
		}
		slog.Info("wallet transactions exported", slog.Int("count", n))
		return nil
	})
	return g.Wait()
}

// lineWriter streams NDJSON records into a gzipped file.
type lineWriter struct {
	f   *os.File
	gz  *pgzip.Writer
	buf *bufio.Writer
}

func newLineWriter(path string) (*lineWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", path)
	}
	gz := pgzip.NewWriter(f)
	return &lineWriter{f: f, gz: gz, buf: bufio.NewWriter(gz)}, nil
}

func (w *lineWriter) writeLine(e *jx.Encoder) error {
	if _, err := w.buf.Write(e.Bytes()); err != nil {
		return err
	}
	return w.buf.WriteByte('\n')
}

func (w *lineWriter) close() error {
	if err := w.buf.Flush(); err != nil {
		return err
	}
	if err := w.gz.Close(); err != nil {
		return err
	}
	return w.f.Close()
}

func exportOrders(ctx context.Context, pool *pgxpool.Pool, path string) (int, error) {
	w, err := newLineWriter(path)
	if err != nil {
		return 0, err
	}
	defer w.f.Close()

	rows, err := pool.Query(ctx, ordersSQL)
	if err != nil {
		return 0, errors.Wrap(err, "query orders")
	}
	defer rows.Close()

	var (
		e jx.Encoder
		n int
	)
	for rows.Next() {
		var (
			id, ref, userID, payStatus, payMode, fulfillment string
			orderNumber                                      int64
			total, paid, remaining                           decimal.Decimal
			createdAt                                        time.Time
		)
		if err := rows.Scan(&id, &orderNumber, &ref, &userID, &total, &paid,
			&remaining, &payStatus, &payMode, &fulfillment, &createdAt); err != nil {
			return n, errors.Wrap(err, "scan order")
		}

		e.Reset()
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(id) })
			e.Field("orderNumber", func(e *jx.Encoder) { e.Int64(orderNumber) })
			e.Field("paymentReference", func(e *jx.Encoder) { e.Str(ref) })
			e.Field("userId", func(e *jx.Encoder) { e.Str(userID) })
			e.Field("total", func(e *jx.Encoder) { e.Str(total.StringFixed(2)) })
			e.Field("amountPaid", func(e *jx.Encoder) { e.Str(paid.StringFixed(2)) })
			e.Field("remaining", func(e *jx.Encoder) { e.Str(remaining.StringFixed(2)) })
			e.Field("paymentStatus", func(e *jx.Encoder) { e.Str(payStatus) })
			e.Field("paymentMode", func(e *jx.Encoder) { e.Str(payMode) })
			e.Field("fulfillmentStatus", func(e *jx.Encoder) { e.Str(fulfillment) })
			e.Field("createdAt", func(e *jx.Encoder) { e.Str(createdAt.Format(time.RFC3339)) })
		})
		if err := w.writeLine(&e); err != nil {
			return n, errors.Wrap(err, "write order")
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, w.close()
}

func exportTransactions(ctx context.Context, pool *pgxpool.Pool, path string) (int, error) {
	w, err := newLineWriter(path)
	if err != nil {
		return 0, err
	}
	defer w.f.Close()

	rows, err := pool.Query(ctx, transactionsSQL)
	if err != nil {
		return 0, errors.Wrap(err, "query wallet transactions")
	}
	defer rows.Close()

	var (
		e jx.Encoder
		n int
	)
	for rows.Next() {
		var (
			userID, id, orderID, typ, status string
			amount                           decimal.Decimal
			createdAt                        time.Time
		)
		if err := rows.Scan(&userID, &id, &orderID, &amount, &typ, &status, &createdAt); err != nil {
			return n, errors.Wrap(err, "scan transaction")
		}

		e.Reset()
		e.Obj(func(e *jx.Encoder) {
			e.Field("id", func(e *jx.Encoder) { e.Str(id) })
			e.Field("userId", func(e *jx.Encoder) { e.Str(userID) })
			e.Field("orderId", func(e *jx.Encoder) { e.Str(orderID) })
			e.Field("amount", func(e *jx.Encoder) { e.Str(amount.StringFixed(2)) })
			e.Field("type", func(e *jx.Encoder) { e.Str(typ) })
			e.Field("status", func(e *jx.Encoder) { e.Str(status) })
			e.Field("createdAt", func(e *jx.Encoder) { e.Str(createdAt.Format(time.RFC3339)) })
		})
		if err := w.writeLine(&e); err != nil {
			return n, errors.Wrap(err, "write transaction")
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	return n, w.close()
}
