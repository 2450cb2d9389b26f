// Command seed-db applies the schema and loads catalog, coupon, and referral
// fixtures into PostgreSQL. Safe to run repeatedly: every insert is an upsert.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/db"
)

type seedFile struct {
	Products []struct {
		ID            string           `json:"id"`
		SKU           string           `json:"sku"`
		Name          string           `json:"name"`
		Price         decimal.Decimal  `json:"price"`
		SalePrice     *decimal.Decimal `json:"sale_price"`
		StockQuantity int              `json:"stock_quantity"`
		Backorders    string           `json:"backorders"`
		Variants      []struct {
			ID            string           `json:"id"`
			SKU           string           `json:"sku"`
			Name          string           `json:"name"`
			Price         decimal.Decimal  `json:"price"`
			SalePrice     *decimal.Decimal `json:"sale_price"`
			StockQuantity int              `json:"stock_quantity"`
			Backorders    string           `json:"backorders"`
		} `json:"variants"`
	} `json:"products"`
	Coupons []struct {
		Code             string          `json:"code"`
		DiscountType     string          `json:"discount_type"`
		Value            decimal.Decimal `json:"value"`
		MinSubtotal      decimal.Decimal `json:"min_subtotal"`
		MaxUses          int             `json:"max_uses"`
		PerCustomerLimit int             `json:"per_customer_limit"`
		Description      string          `json:"description"`
	} `json:"coupons"`
	ReferralCodes []struct {
		ID             string          `json:"id"`
		CustomerID     string          `json:"customer_id"`
		Code           string          `json:"code"`
		CommissionType string          `json:"commission_type"`
		Value          decimal.Decimal `json:"value"`
	} `json:"referral_codes"`
}

func main() {
	var (
		databaseURL string
		seedPath    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&seedPath, "seed-file", "db/seed/catalog.json", "path to seed JSON file")
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

	if err := run(ctx, databaseURL, seedPath); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, seedPath string) error {
	slog.Info("connecting to database")

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return errors.Wrap(err, "parse database URL")
	}
	poolCfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("applying schema")
	if _, err := pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}

	slog.Info("reading seed file", slog.String("path", seedPath))
	data, err := os.ReadFile(seedPath)
	if err != nil {
		return errors.Wrap(err, "read seed file")
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return errors.Wrap(err, "parse seed JSON")
	}

	if err := seedCatalog(ctx, pool, seed); err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if err := seedCoupons(ctx, pool, seed); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedReferralCodes(ctx, pool, seed); err != nil {
		return errors.Wrap(err, "seed referral codes")
	}
	return nil
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool, seed seedFile) error {
	slog.Info("upserting products", slog.Int("count", len(seed.Products)))

	for _, p := range seed.Products {
		backorders := p.Backorders
		if backorders == "" {
			backorders = "no"
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO products (id, sku, name, price, sale_price, stock_quantity, backorders)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				sku = excluded.sku,
				name = excluded.name,
				price = excluded.price,
				sale_price = excluded.sale_price,
				stock_quantity = excluded.stock_quantity,
				backorders = excluded.backorders,
				updated_at = now()`,
			p.ID, p.SKU, p.Name, p.Price, p.SalePrice, p.StockQuantity, backorders)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		for _, v := range p.Variants {
			vb := v.Backorders
			if vb == "" {
				vb = "no"
			}
			_, err := pool.Exec(ctx, `
				INSERT INTO product_variants (id, product_id, sku, name, price, sale_price, stock_quantity, backorders)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (id) DO UPDATE SET
					sku = excluded.sku,
					name = excluded.name,
					price = excluded.price,
					sale_price = excluded.sale_price,
					stock_quantity = excluded.stock_quantity,
					backorders = excluded.backorders`,
				v.ID, p.ID, v.SKU, v.Name, v.Price, v.SalePrice, v.StockQuantity, vb)
			if err != nil {
				return errors.Wrapf(err, "upsert variant %s", v.ID)
			}
		}
	}
	return nil
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool, seed seedFile) error {
	slog.Info("upserting coupons", slog.Int("count", len(seed.Coupons)))

	for _, c := range seed.Coupons {
		perCustomer := c.PerCustomerLimit
		if perCustomer == 0 {
			perCustomer = 1
		}
		_, err := pool.Exec(ctx, `
			INSERT INTO coupons (code, discount_type, value, min_subtotal, max_uses, per_customer_limit, description)
			VALUES (upper($1), $2, $3, $4, $5, $6, $7)
			ON CONFLICT (code) DO UPDATE SET
				discount_type = excluded.discount_type,
				value = excluded.value,
				min_subtotal = excluded.min_subtotal,
				max_uses = excluded.max_uses,
				per_customer_limit = excluded.per_customer_limit,
				description = excluded.description`,
			c.Code, c.DiscountType, c.Value, c.MinSubtotal, c.MaxUses, perCustomer, c.Description)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.Code)
		}
	}
	return nil
}

func seedReferralCodes(ctx context.Context, pool *pgxpool.Pool, seed seedFile) error {
	slog.Info("upserting referral codes", slog.Int("count", len(seed.ReferralCodes)))

	for _, rc := range seed.ReferralCodes {
		_, err := pool.Exec(ctx, `
			INSERT INTO referral_codes (id, customer_id, code, commission_type, value)
			VALUES ($1, $2, upper($3), $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				customer_id = excluded.customer_id,
				code = excluded.code,
				commission_type = excluded.commission_type,
				value = excluded.value`,
			rc.ID, rc.CustomerID, rc.Code, rc.CommissionType, rc.Value)
		if err != nil {
			return errors.Wrapf(err, "upsert referral code %s", rc.ID)
		}
	}
	return nil
}
