package postgres

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchline/checkout-api/internal/domain/order"
)

const orderColumns = `id, order_number, payment_reference, user_id, items, address,
	coupon_code, total_amount, amount_paid, remaining_amount, payment_status,
	payment_mode, fulfillment_status, remaining_payment_ref, email_sent, created_at`

const (
	findOrderByIDSQL  = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	findOrderByRefSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_reference = $1`

	insertOrderSQL = `INSERT INTO orders (id, payment_reference, user_id, items, address,
		coupon_code, total_amount, amount_paid, remaining_amount, payment_status,
		payment_mode, fulfillment_status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (payment_reference) DO NOTHING
	RETURNING order_number, created_at`

	settleOrderSQL = `UPDATE orders
	SET remaining_amount = 0, amount_paid = total_amount, payment_status = 'paid',
	    remaining_payment_ref = $2, updated_at = now()
	WHERE id = $1 AND payment_status <> 'paid'`

	setRemainingRefSQL = `UPDATE orders SET remaining_payment_ref = $2, updated_at = now() WHERE id = $1`

	setFulfillmentSQL = `UPDATE orders SET fulfillment_status = $2, updated_at = now() WHERE id = $1`

	markEmailSentSQL = `UPDATE orders SET email_sent = TRUE, updated_at = now() WHERE id = $1`
)

// Bloom filter sizing for the in-process duplicate fast path. A false
// positive only costs one extra SELECT.
const (
	seenRefsCapacity = 1_000_000
	seenRefsFPR      = 0.01
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
//
// The unique index on payment_reference is the idempotency guard; the bloom
// filter in front of it only decides whether a duplicate pre-check read is
// worth doing. A reference the filter has definitely not seen goes straight
// to the atomic insert; cross-process duplicates still resolve through the
// ON CONFLICT path.
type OrderRepository struct {
	pool *pgxpool.Pool

	mu       sync.Mutex
	seenRefs *bloom.BloomFilter
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{
		pool:     pool,
		seenRefs: bloom.NewWithEstimates(seenRefsCapacity, seenRefsFPR),
	}
}

// FindByID fetches an order by its system id.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	return r.scanOrder(r.pool.QueryRow(ctx, findOrderByIDSQL, id))
}

// FindByPaymentReference fetches the order created for the given payment
// reference, or order.ErrNotFound.
func (r *OrderRepository) FindByPaymentReference(ctx context.Context, ref string) (*order.Order, error) {
	o, err := r.scanOrder(r.pool.QueryRow(ctx, findOrderByRefSQL, ref))
	if err != nil {
		return nil, err
	}
	r.markSeen(ref)
	return o, nil
}

// CreateIfAbsent persists o unless its payment reference already exists. The
// insert and the uniqueness check are a single statement; on conflict the
// winner's row is re-read and returned with created=false.
func (r *OrderRepository) CreateIfAbsent(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
	// Fast path: the reference was possibly seen before, so a cheap read
	// likely resolves the duplicate without burning an insert attempt.
	if r.maybeSeen(o.PaymentReference) {
		existing, err := r.FindByPaymentReference(ctx, o.PaymentReference)
		switch {
		case err == nil:
			return existing, false, nil
		case !errors.Is(err, order.ErrNotFound):
			return nil, false, err
		}
	}

	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, false, errors.Wrap(err, "marshal order items")
	}
	addressJSON, err := json.Marshal(o.Address)
	if err != nil {
		return nil, false, errors.Wrap(err, "marshal order address")
	}

	err = r.pool.QueryRow(ctx, insertOrderSQL,
		o.ID, o.PaymentReference, o.UserID, itemsJSON, addressJSON,
		o.CouponCode, o.TotalAmount, o.AmountPaid, o.RemainingAmount,
		o.PaymentStatus, o.PaymentMode, o.FulfillmentStatus,
	).Scan(&o.OrderNumber, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent request won the race; its row is canonical.
			existing, ferr := r.FindByPaymentReference(ctx, o.PaymentReference)
			if ferr != nil {
				return nil, false, errors.Wrap(ferr, "re-read conflicting order")
			}
			return existing, false, nil
		}
		return nil, false, errors.Wrapf(err, "creating order %q", o.ID)
	}

	r.markSeen(o.PaymentReference)
	return o, true, nil
}

// UpdateRemainingPayment marks the order fully paid. The payment_status guard
// makes repeated calls with an already-settled order a no-op.
func (r *OrderRepository) UpdateRemainingPayment(ctx context.Context, orderID, verifiedRef string) error {
	tag, err := r.pool.Exec(ctx, settleOrderSQL, orderID, verifiedRef)
	if err != nil {
		return errors.Wrapf(err, "settling order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		// Already paid, or the order does not exist. Distinguish the two.
		if _, err := r.FindByID(ctx, orderID); err != nil {
			return err
		}
	}
	return nil
}

// SetRemainingPaymentRef stores the gateway intent id for the pending
// remaining payment.
func (r *OrderRepository) SetRemainingPaymentRef(ctx context.Context, orderID, ref string) error {
	return r.execOn(ctx, orderID, setRemainingRefSQL, ref)
}

// SetFulfillmentStatus moves the order through the fulfillment pipeline.
func (r *OrderRepository) SetFulfillmentStatus(ctx context.Context, orderID string, status order.FulfillmentStatus) error {
	return r.execOn(ctx, orderID, setFulfillmentSQL, string(status))
}

// MarkEmailSent records that the confirmation email went out.
func (r *OrderRepository) MarkEmailSent(ctx context.Context, orderID string) error {
	tag, err := r.pool.Exec(ctx, markEmailSentSQL, orderID)
	if err != nil {
		return errors.Wrapf(err, "marking email sent for %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) execOn(ctx context.Context, orderID, sql string, arg any) error {
	tag, err := r.pool.Exec(ctx, sql, orderID, arg)
	if err != nil {
		return errors.Wrapf(err, "updating order %q", orderID)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) scanOrder(row pgx.Row) (*order.Order, error) {
	var (
		o           order.Order
		itemsJSON   []byte
		addressJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.PaymentReference, &o.UserID, &itemsJSON, &addressJSON,
		&o.CouponCode, &o.TotalAmount, &o.AmountPaid, &o.RemainingAmount, &o.PaymentStatus,
		&o.PaymentMode, &o.FulfillmentStatus, &o.RemainingPaymentRef, &o.EmailSent, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, errors.Wrap(err, "unmarshal order items")
	}
	if err := json.Unmarshal(addressJSON, &o.Address); err != nil {
		return nil, errors.Wrap(err, "unmarshal order address")
	}
	return &o, nil
}

func (r *OrderRepository) maybeSeen(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seenRefs.TestString(ref)
}

func (r *OrderRepository) markSeen(ref string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seenRefs.AddString(ref)
}
