package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/coupon"
)

type couponRepo struct {
	db querier
}

func (r *couponRepo) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	var c coupon.Coupon
	err := r.db.QueryRow(ctx, `
		SELECT code, discount_type, value, min_subtotal, max_uses, uses,
		       per_customer_limit, valid_from, valid_until, description
		FROM coupons WHERE code = upper($1)`,
		code,
	).Scan(
		&c.Code, &c.DiscountType, &c.Value, &c.MinSubtotal, &c.MaxUses, &c.Uses,
		&c.PerCustomerLimit, &c.ValidFrom, &c.ValidUntil, &c.Description,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, coupon.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query coupon")
	}
	return &c, nil
}

func (r *couponRepo) CustomerRedemptions(ctx context.Context, code, customerID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM coupon_redemptions WHERE coupon_code = upper($1) AND customer_id = $2`,
		code, customerID,
	).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count redemptions")
	}
	return n, nil
}
