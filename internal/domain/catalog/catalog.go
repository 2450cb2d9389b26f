// Package catalog holds the read model for products and variants consumed by
// the checkout pipeline. The pipeline never mutates catalog entities except
// stock quantities, which are owned by the stock ledger.
package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrProductNotFound is returned when a requested product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound is returned when a requested variant does not exist.
	ErrVariantNotFound = errors.New("product variant not found")
)

// BackorderPolicy governs whether an order may be accepted when stock is
// insufficient.
type BackorderPolicy string

const (
	// BackorderNo rejects reservations that would drive stock below zero.
	BackorderNo BackorderPolicy = "no"
	// BackorderNotify accepts the reservation and flags it for notification.
	BackorderNotify BackorderPolicy = "notify"
	// BackorderAllow accepts the reservation; stock may go negative.
	BackorderAllow BackorderPolicy = "allow"
)

// Product is a purchasable catalog item.
type Product struct {
	ID            string
	SKU           string
	Name          string
	Price         decimal.Decimal
	SalePrice     *decimal.Decimal
	SaleStartsAt  *time.Time
	SaleEndsAt    *time.Time
	ManageStock   bool
	StockQuantity int
	Backorders    BackorderPolicy
}

// Variant is a concrete sellable variation of a product with its own price
// and stock.
type Variant struct {
	ID            string
	ProductID     string
	SKU           string
	Name          string
	Price         decimal.Decimal
	SalePrice     *decimal.Decimal
	SaleStartsAt  *time.Time
	SaleEndsAt    *time.Time
	ManageStock   bool
	StockQuantity int
	Backorders    BackorderPolicy
}

// SaleActiveAt reports whether the product's sale price applies at t.
func (p Product) SaleActiveAt(t time.Time) bool {
	return saleActive(p.SalePrice, p.SaleStartsAt, p.SaleEndsAt, t)
}

// SaleActiveAt reports whether the variant's sale price applies at t.
func (v Variant) SaleActiveAt(t time.Time) bool {
	return saleActive(v.SalePrice, v.SaleStartsAt, v.SaleEndsAt, t)
}

func saleActive(price *decimal.Decimal, from, until *time.Time, t time.Time) bool {
	if price == nil {
		return false
	}
	if from != nil && t.Before(*from) {
		return false
	}
	if until != nil && t.After(*until) {
		return false
	}
	return true
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetVariant(ctx context.Context, id string) (*Variant, error)
}
