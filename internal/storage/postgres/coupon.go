package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchline/checkout-api/internal/domain/coupon"
)

const findCouponSQL = `SELECT code, discount_type, value, min_items, description
	FROM coupons WHERE code = $1 AND active = TRUE`

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository provides coupon rule lookups backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon rule. Unknown or inactive codes map to
// coupon.ErrInvalidCoupon.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	var rule coupon.Rule
	err := r.pool.QueryRow(ctx, findCouponSQL, code).Scan(
		&rule.Code, &rule.DiscountType, &rule.Value, &rule.MinItems, &rule.Description,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrInvalidCoupon
		}
		return nil, errors.Wrapf(err, "finding coupon %q", code)
	}
	return &rule, nil
}
