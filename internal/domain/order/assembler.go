package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/shipping"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/events"
)

// CreateOrderRequest holds the input for converting a cart into an order.
type CreateOrderRequest struct {
	CartID          string
	CustomerID      string
	CouponCode      string
	PaymentMethod   string
	ShippingMethod  string
	BillingAddress  Address
	ShippingAddress Address
}

// Validate checks the request shape. It is pure and framework-independent.
func (r CreateOrderRequest) Validate() []FieldError {
	var errs []FieldError
	if r.CartID == "" {
		errs = append(errs, FieldError{Field: "cart_id", Reason: "required"})
	}
	if r.PaymentMethod != "" {
		if r.ShippingAddress.Line1 == "" {
			errs = append(errs, FieldError{Field: "shipping_address.line1", Reason: "required"})
		}
		if r.ShippingAddress.Country == "" {
			errs = append(errs, FieldError{Field: "shipping_address.country", Reason: "required"})
		}
	}
	return errs
}

// Assembler orchestrates cart-to-order conversion. All collaborators are
// injected at construction; there is no global lookup.
type Assembler struct {
	carts    cart.Repository
	catalog  catalog.Repository
	coupons  coupon.Validator
	shipping shipping.Calculator
	uow      UnitOfWork
	taxRate  decimal.Decimal
	now      func() time.Time
}

// NewAssembler creates an Assembler with its collaborators.
func NewAssembler(
	carts cart.Repository,
	cat catalog.Repository,
	coupons coupon.Validator,
	ship shipping.Calculator,
	uow UnitOfWork,
	taxRate decimal.Decimal,
) *Assembler {
	return &Assembler{
		carts:    carts,
		catalog:  cat,
		coupons:  coupons,
		shipping: ship,
		uow:      uow,
		taxRate:  taxRate,
		now:      time.Now,
	}
}

// resolvedLine pairs the pricing view of a cart item with its stock line.
type resolvedLine struct {
	pricing pricing.Line
	stock   stock.Line
}

// CreateOrderFromCart runs the full pipeline: load cart, validate coupon,
// reserve stock, price, persist. Steps 3-5 execute inside one transaction;
// any failure rolls everything back and the cart remains unconverted.
func (a *Assembler) CreateOrderFromCart(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	if fieldErrs := req.Validate(); len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	c, err := a.carts.Get(ctx, req.CartID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, ErrEmptyCart
	}

	customerID := req.CustomerID
	if customerID == "" {
		customerID = c.CustomerID
	}

	lines, err := a.resolveLines(ctx, c)
	if err != nil {
		return nil, err
	}

	priceLines := make([]pricing.Line, len(lines))
	stockLines := make([]stock.Line, len(lines))
	for i, l := range lines {
		priceLines[i] = l.pricing
		stockLines[i] = l.stock
	}
	subtotal := pricing.Subtotal(priceLines)

	// Coupon validation is pure; redemption happens inside the commit below.
	var app *coupon.Application
	if req.CouponCode != "" {
		app, err = a.coupons.Validate(ctx, req.CouponCode, customerID, subtotal)
		if err != nil {
			return nil, err
		}
	}

	quote, err := a.shipping.Calculate(ctx, subtotal, shipping.Destination{
		City:       req.ShippingAddress.City,
		Region:     req.ShippingAddress.Region,
		PostalCode: req.ShippingAddress.PostalCode,
		Country:    req.ShippingAddress.Country,
	}, req.ShippingMethod)
	if err != nil {
		return nil, errors.Wrap(err, "calculate shipping")
	}

	totals, err := pricing.Price(priceLines, app, quote.Amount, a.taxRate)
	if err != nil {
		return nil, err
	}

	now := a.now()
	initial := StatusDraft
	if req.PaymentMethod != "" {
		initial = StatusPendingPayment
	}

	o := &Order{
		ID:              uuid.New().String(),
		CustomerID:      customerID,
		Items:           snapshotItems(priceLines),
		Totals:          totals,
		PaymentMethod:   req.PaymentMethod,
		BillingAddress:  req.BillingAddress,
		ShippingAddress: req.ShippingAddress,
		Status:          initial,
		History: []StatusChange{{
			To:     initial,
			At:     now,
			Actor:  "system",
			Reason: "order created",
		}},
		CreatedAt: now,
	}
	if app != nil {
		o.CouponCode = app.Code
	}

	err = a.uow.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		backorders, err := tx.Stock().Reserve(ctx, stockLines)
		if err != nil {
			return err
		}
		if err := tx.Orders().Insert(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		if app != nil {
			if err := tx.Coupons().Redeem(ctx, app.Code, customerID, o.ID); err != nil {
				return err
			}
		}
		if err := tx.Carts().Archive(ctx, c.ID); err != nil {
			return errors.Wrap(err, "archive cart")
		}

		created, err := events.New("order", o.ID, events.TypeOrderCreated, CreatedEvent{
			OrderID:    o.ID,
			CustomerID: o.CustomerID,
			Status:     string(o.Status),
			GrandTotal: o.Totals.GrandTotal,
		})
		if err != nil {
			return err
		}
		if err := tx.Events().Append(ctx, created); err != nil {
			return errors.Wrap(err, "append order created event")
		}

		for _, b := range backorders {
			ev, err := events.New("order", o.ID, events.TypeStockBackordered, BackorderedEvent{
				OrderID:   o.ID,
				SKU:       b.SKU,
				Remaining: b.Remaining,
			})
			if err != nil {
				return err
			}
			if err := tx.Events().Append(ctx, ev); err != nil {
				return errors.Wrap(err, "append backorder event")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return o, nil
}

// resolveLines fetches live catalog data for every cart item. Cart price
// snapshots are intentionally ignored here.
func (a *Assembler) resolveLines(ctx context.Context, c *cart.Cart) ([]resolvedLine, error) {
	now := a.now()
	lines := make([]resolvedLine, 0, len(c.Items))

	for _, item := range c.Items {
		if item.VariantID != "" {
			v, err := a.catalog.GetVariant(ctx, item.VariantID)
			if err != nil {
				return nil, err
			}
			lines = append(lines, resolvedLine{
				pricing: pricing.Line{
					ProductID:  v.ProductID,
					VariantID:  v.ID,
					SKU:        v.SKU,
					Name:       v.Name,
					Price:      v.Price,
					SalePrice:  v.SalePrice,
					SaleActive: v.SaleActiveAt(now),
					Quantity:   item.Quantity,
				},
				stock: stock.Line{
					ProductID: v.ProductID,
					VariantID: v.ID,
					SKU:       v.SKU,
					Quantity:  item.Quantity,
				},
			})
			continue
		}

		p, err := a.catalog.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		lines = append(lines, resolvedLine{
			pricing: pricing.Line{
				ProductID:  p.ID,
				SKU:        p.SKU,
				Name:       p.Name,
				Price:      p.Price,
				SalePrice:  p.SalePrice,
				SaleActive: p.SaleActiveAt(now),
				Quantity:   item.Quantity,
			},
			stock: stock.Line{
				ProductID: p.ID,
				SKU:       p.SKU,
				Quantity:  item.Quantity,
			},
		})
	}
	return lines, nil
}

func snapshotItems(lines []pricing.Line) []LineItem {
	items := make([]LineItem, len(lines))
	for i, l := range lines {
		items[i] = LineItem{
			ProductID: l.ProductID,
			VariantID: l.VariantID,
			Name:      l.Name,
			UnitPrice: l.EffectiveUnitPrice(),
			Quantity:  l.Quantity,
			LineTotal: l.Total(),
		}
	}
	return items
}
