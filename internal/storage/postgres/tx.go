package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/events"
)

// pgTx exposes the repositories participating in one checkout transaction.
type pgTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*pgTx)(nil)

func (t *pgTx) Stock() stock.Ledger      { return &txStock{tx: t.tx} }
func (t *pgTx) Orders() order.Writer     { return &txOrders{tx: t.tx} }
func (t *pgTx) Coupons() coupon.Redeemer { return &txCoupons{tx: t.tx} }
func (t *pgTx) Carts() cart.Archiver     { return &txCarts{tx: t.tx} }
func (t *pgTx) Events() events.Appender  { return &txEvents{tx: t.tx} }

type txStock struct {
	tx pgx.Tx
}

// Reserve decrements stock for every line, honoring each item's backorder
// policy. The row lock taken by the initial select serializes concurrent
// reservations of the same item.
func (s *txStock) Reserve(ctx context.Context, lines []stock.Line) ([]stock.Backorder, error) {
	var backorders []stock.Backorder
	for _, l := range lines {
		table, id := "products", l.ProductID
		notFound := catalog.ErrProductNotFound
		if l.VariantID != "" {
			table, id = "product_variants", l.VariantID
			notFound = catalog.ErrVariantNotFound
		}

		var (
			manage bool
			policy catalog.BackorderPolicy
			qty    int
		)
		err := s.tx.QueryRow(ctx,
			`SELECT manage_stock, backorders, stock_quantity FROM `+table+` WHERE id = $1 FOR UPDATE`,
			id,
		).Scan(&manage, &policy, &qty)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound
		}
		if err != nil {
			return nil, errors.Wrap(err, "lock stock row")
		}
		if !manage {
			continue
		}

		if policy == catalog.BackorderNo && qty < l.Quantity {
			return nil, &stock.InsufficientStockError{
				SKU:       l.SKU,
				Requested: l.Quantity,
				Available: qty,
			}
		}

		var remaining int
		err = s.tx.QueryRow(ctx,
			`UPDATE `+table+` SET stock_quantity = stock_quantity - $1 WHERE id = $2 RETURNING stock_quantity`,
			l.Quantity, id,
		).Scan(&remaining)
		if err != nil {
			return nil, errors.Wrap(err, "decrement stock")
		}
		if policy == catalog.BackorderNotify && remaining < 0 {
			backorders = append(backorders, stock.Backorder{SKU: l.SKU, Remaining: remaining})
		}
	}
	return backorders, nil
}

type txOrders struct {
	tx pgx.Tx
}

func (o *txOrders) Insert(ctx context.Context, ord *order.Order) error {
	return insertOrder(ctx, o.tx, ord)
}

type txCoupons struct {
	tx pgx.Tx
}

// Redeem re-checks usage limits under the row lock and increments counters.
// Validation before the transaction is advisory only; this is the check that
// counts.
func (c *txCoupons) Redeem(ctx context.Context, code, customerID, orderID string) error {
	var (
		maxUses, uses, perCustomer int
	)
	err := c.tx.QueryRow(ctx,
		`SELECT max_uses, uses, per_customer_limit FROM coupons WHERE code = upper($1) FOR UPDATE`,
		code,
	).Scan(&maxUses, &uses, &perCustomer)
	if errors.Is(err, pgx.ErrNoRows) {
		return coupon.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "lock coupon")
	}

	if maxUses > 0 && uses >= maxUses {
		return coupon.ErrExhausted
	}
	if perCustomer <= 0 {
		perCustomer = 1
	}
	if customerID != "" {
		var redeemed int
		err := c.tx.QueryRow(ctx,
			`SELECT count(*) FROM coupon_redemptions WHERE coupon_code = upper($1) AND customer_id = $2`,
			code, customerID,
		).Scan(&redeemed)
		if err != nil {
			return errors.Wrap(err, "count redemptions")
		}
		if redeemed >= perCustomer {
			return coupon.ErrAlreadyUsed
		}
	}

	if _, err := c.tx.Exec(ctx,
		`UPDATE coupons SET uses = uses + 1 WHERE code = upper($1)`, code,
	); err != nil {
		return errors.Wrap(err, "increment uses")
	}
	if _, err := c.tx.Exec(ctx,
		`INSERT INTO coupon_redemptions (coupon_code, customer_id, order_id) VALUES (upper($1), $2, $3)`,
		code, customerID, orderID,
	); err != nil {
		return errors.Wrap(err, "record redemption")
	}
	return nil
}

type txCarts struct {
	tx pgx.Tx
}

func (c *txCarts) Archive(ctx context.Context, cartID string) error {
	tag, err := c.tx.Exec(ctx,
		`UPDATE carts SET archived_at = now(), updated_at = now() WHERE id = $1 AND archived_at IS NULL`,
		cartID,
	)
	if err != nil {
		return errors.Wrap(err, "archive cart")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrNotFound
	}
	return nil
}

type txEvents struct {
	tx pgx.Tx
}

func (e *txEvents) Append(ctx context.Context, ev events.Event) error {
	return appendEvent(ctx, e.tx, ev)
}
