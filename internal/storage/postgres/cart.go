package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/cart"
)

type cartRepo struct {
	db querier
}

func (r *cartRepo) Create(ctx context.Context, c *cart.Cart) error {
	if _, err := r.db.Exec(ctx,
		`INSERT INTO carts (id, customer_id, created_at) VALUES ($1, NULLIF($2, ''), $3)`,
		c.ID, c.CustomerID, c.CreatedAt,
	); err != nil {
		return errors.Wrap(err, "insert cart")
	}
	for _, it := range c.Items {
		if err := r.upsertItem(ctx, c.ID, it); err != nil {
			return err
		}
	}
	return nil
}

func (r *cartRepo) Get(ctx context.Context, id string) (*cart.Cart, error) {
	var c cart.Cart
	var customerID *string
	err := r.db.QueryRow(ctx,
		`SELECT id, customer_id, created_at FROM carts WHERE id = $1 AND archived_at IS NULL`,
		id,
	).Scan(&c.ID, &customerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, cart.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query cart")
	}
	if customerID != nil {
		c.CustomerID = *customerID
	}

	rows, err := r.db.Query(ctx, `
		SELECT product_id, variant_id, quantity, price_snapshot, added_at
		FROM cart_items WHERE cart_id = $1
		ORDER BY added_at`,
		id,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query cart items")
	}
	defer rows.Close()

	for rows.Next() {
		var it cart.Item
		if err := rows.Scan(&it.ProductID, &it.VariantID, &it.Quantity, &it.PriceSnapshot, &it.AddedAt); err != nil {
			return nil, errors.Wrap(err, "scan cart item")
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate cart items")
	}
	return &c, nil
}

func (r *cartRepo) UpsertItem(ctx context.Context, cartID string, item cart.Item) error {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT true FROM carts WHERE id = $1 AND archived_at IS NULL`, cartID,
	).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return cart.ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "check cart")
	}
	return r.upsertItem(ctx, cartID, item)
}

func (r *cartRepo) upsertItem(ctx context.Context, cartID string, item cart.Item) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, variant_id, quantity, price_snapshot, added_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cart_id, product_id, variant_id)
		DO UPDATE SET quantity = EXCLUDED.quantity, price_snapshot = EXCLUDED.price_snapshot`,
		cartID, item.ProductID, item.VariantID, item.Quantity, item.PriceSnapshot, item.AddedAt,
	)
	return errors.Wrap(err, "upsert cart item")
}

func (r *cartRepo) RemoveItem(ctx context.Context, cartID, productID, variantID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2 AND variant_id = $3`,
		cartID, productID, variantID,
	)
	if err != nil {
		return errors.Wrap(err, "delete cart item")
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrItemNotFound
	}
	return nil
}
