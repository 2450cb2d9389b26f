package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// Service exposes cart mutations backed by live catalog lookups for the
// display price snapshot.
type Service struct {
	carts   Repository
	catalog catalog.Repository
	now     func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, cat catalog.Repository) *Service {
	return &Service{carts: carts, catalog: cat, now: time.Now}
}

// CreateCart creates an empty cart, optionally linked to a customer.
func (s *Service) CreateCart(ctx context.Context, customerID string) (*Cart, error) {
	c := &Cart{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		CreatedAt:  s.now(),
	}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, errors.Wrap(err, "create cart")
	}
	return c, nil
}

// Get returns the cart with the given ID.
func (s *Service) Get(ctx context.Context, id string) (*Cart, error) {
	return s.carts.Get(ctx, id)
}

// AddItem adds quantity of a product (or variant) to the cart, snapshotting
// the current effective price for display. Adding an item already in the cart
// replaces its quantity.
func (s *Service) AddItem(ctx context.Context, cartID, productID, variantID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if _, err := s.carts.Get(ctx, cartID); err != nil {
		return nil, err
	}

	snapshot, err := s.displayPrice(ctx, productID, variantID)
	if err != nil {
		return nil, err
	}

	item := Item{
		ProductID:     productID,
		VariantID:     variantID,
		Quantity:      quantity,
		PriceSnapshot: snapshot,
		AddedAt:       s.now(),
	}
	if err := s.carts.UpsertItem(ctx, cartID, item); err != nil {
		return nil, errors.Wrap(err, "upsert cart item")
	}
	return s.carts.Get(ctx, cartID)
}

// UpdateItem changes the quantity of an existing item. A quantity of zero
// removes the item.
func (s *Service) UpdateItem(ctx context.Context, cartID, productID, variantID string, quantity int) (*Cart, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	if quantity == 0 {
		return s.RemoveItem(ctx, cartID, productID, variantID)
	}

	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	existing := findItem(c, productID, variantID)
	if existing == nil {
		return nil, ErrItemNotFound
	}

	item := *existing
	item.Quantity = quantity
	if err := s.carts.UpsertItem(ctx, cartID, item); err != nil {
		return nil, errors.Wrap(err, "upsert cart item")
	}
	return s.carts.Get(ctx, cartID)
}

// RemoveItem deletes an item from the cart.
func (s *Service) RemoveItem(ctx context.Context, cartID, productID, variantID string) (*Cart, error) {
	if err := s.carts.RemoveItem(ctx, cartID, productID, variantID); err != nil {
		return nil, err
	}
	return s.carts.Get(ctx, cartID)
}

func (s *Service) displayPrice(ctx context.Context, productID, variantID string) (price decimal.Decimal, err error) {
	now := s.now()
	if variantID != "" {
		v, err := s.catalog.GetVariant(ctx, variantID)
		if err != nil {
			return decimal.Zero, err
		}
		if v.SaleActiveAt(now) {
			return *v.SalePrice, nil
		}
		return v.Price, nil
	}
	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return decimal.Zero, err
	}
	if p.SaleActiveAt(now) {
		return *p.SalePrice, nil
	}
	return p.Price, nil
}

func findItem(c *Cart, productID, variantID string) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}
