// Package cart holds the mutable shopping cart that feeds the checkout
// pipeline. Item price snapshots taken at add time are display-only; checkout
// always reprices from live catalog data.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a cart does not exist or has been archived.
	ErrNotFound = errors.New("cart not found")
	// ErrItemNotFound is returned when updating or removing an absent item.
	ErrItemNotFound = errors.New("cart item not found")
	// ErrInvalidQuantity is returned for non-positive quantities.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
)

// Item is a single cart line. VariantID is empty for base products.
type Item struct {
	ProductID     string
	VariantID     string
	Quantity      int
	PriceSnapshot decimal.Decimal
	AddedAt       time.Time
}

// Cart is an ordered collection of items owned by a session or customer.
type Cart struct {
	ID         string
	CustomerID string
	Items      []Item
	CreatedAt  time.Time
}

// Subtotal sums the display snapshot prices. Not used for order totals.
func (c *Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.PriceSnapshot.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}

// Repository defines persistence operations for carts. Item mutations target
// a single item row; concurrent writes to the same item are last-write-wins.
type Repository interface {
	Create(ctx context.Context, c *Cart) error
	Get(ctx context.Context, id string) (*Cart, error)
	UpsertItem(ctx context.Context, cartID string, item Item) error
	RemoveItem(ctx context.Context, cartID, productID, variantID string) error
}

// Archiver marks a cart as converted. Implemented by the checkout unit of
// work so archiving commits atomically with the order.
type Archiver interface {
	Archive(ctx context.Context, cartID string) error
}
