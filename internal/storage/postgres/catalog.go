package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/catalog"
)

type catalogRepo struct {
	db querier
}

func (r *catalogRepo) GetProduct(ctx context.Context, id string) (*catalog.Product, error) {
	var p catalog.Product
	err := r.db.QueryRow(ctx, `
		SELECT id, sku, name, price, sale_price, sale_starts_at, sale_ends_at,
		       manage_stock, stock_quantity, backorders
		FROM products WHERE id = $1`,
		id,
	).Scan(
		&p.ID, &p.SKU, &p.Name, &p.Price, &p.SalePrice, &p.SaleStartsAt, &p.SaleEndsAt,
		&p.ManageStock, &p.StockQuantity, &p.Backorders,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query product")
	}
	return &p, nil
}

func (r *catalogRepo) GetVariant(ctx context.Context, id string) (*catalog.Variant, error) {
	var v catalog.Variant
	err := r.db.QueryRow(ctx, `
		SELECT id, product_id, sku, name, price, sale_price, sale_starts_at, sale_ends_at,
		       manage_stock, stock_quantity, backorders
		FROM product_variants WHERE id = $1`,
		id,
	).Scan(
		&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.Price, &v.SalePrice, &v.SaleStartsAt, &v.SaleEndsAt,
		&v.ManageStock, &v.StockQuantity, &v.Backorders,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrVariantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query variant")
	}
	return &v, nil
}
