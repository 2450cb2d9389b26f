// Package pricing computes order totals from live catalog prices. All
// monetary amounts are exact decimals rounded half-even to the currency's
// minor unit; cart price snapshots are never consulted.
package pricing

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/coupon"
)

var hundred = decimal.NewFromInt(100)

// Line carries the live catalog data for one cart line.
type Line struct {
	ProductID  string
	VariantID  string
	SKU        string
	Name       string
	Price      decimal.Decimal
	SalePrice  *decimal.Decimal
	SaleActive bool
	Quantity   int
}

// EffectiveUnitPrice returns the sale price when one is present and active,
// the regular price otherwise.
func (l Line) EffectiveUnitPrice() decimal.Decimal {
	if l.SaleActive && l.SalePrice != nil {
		return *l.SalePrice
	}
	return l.Price
}

// Total returns the rounded line total: effective unit price times quantity.
func (l Line) Total() decimal.Decimal {
	qty := decimal.NewFromInt(int64(l.Quantity))
	return l.EffectiveUnitPrice().Mul(qty).RoundBank(2)
}

// Totals holds the computed order totals. GrandTotal is always reproducible
// from the stored line totals: Subtotal is the exact sum of individually
// rounded line totals, so no re-rounding drift is possible.
type Totals struct {
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
}

// InvariantViolationError reports an internal pricing defect: a total that
// must be non-negative came out negative. It is always fatal to the current
// operation and never silently corrected.
type InvariantViolationError struct {
	Stage string
	Value decimal.Decimal
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("pricing invariant violated at %s: %s is negative", e.Stage, e.Value)
}

// Subtotal sums the rounded line totals.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// Price computes the full order totals. The discount never exceeds the
// subtotal; the grand total is floored at zero. Negative inputs fail closed
// with an InvariantViolationError.
func Price(lines []Line, app *coupon.Application, shipping decimal.Decimal, taxRate decimal.Decimal) (Totals, error) {
	for _, l := range lines {
		if unit := l.EffectiveUnitPrice(); unit.IsNegative() {
			return Totals{}, &InvariantViolationError{Stage: "unit price " + l.SKU, Value: unit}
		}
	}
	if shipping.IsNegative() {
		return Totals{}, &InvariantViolationError{Stage: "shipping", Value: shipping}
	}
	if taxRate.IsNegative() {
		return Totals{}, &InvariantViolationError{Stage: "tax rate", Value: taxRate}
	}

	subtotal := Subtotal(lines)

	discount := decimal.Zero
	if app != nil {
		var err error
		discount, err = applyDiscount(app, subtotal)
		if err != nil {
			return Totals{}, err
		}
	}

	net := subtotal.Sub(discount)
	if net.IsNegative() {
		return Totals{}, &InvariantViolationError{Stage: "discounted subtotal", Value: net}
	}

	tax := net.Mul(taxRate).RoundBank(2)

	grand := net.Add(shipping).Add(tax)
	if grand.IsNegative() {
		grand = decimal.Zero
	}

	return Totals{
		Subtotal:   subtotal,
		Discount:   discount,
		Shipping:   shipping.RoundBank(2),
		Tax:        tax,
		GrandTotal: grand.RoundBank(2),
	}, nil
}

func applyDiscount(app *coupon.Application, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if app.Value.IsNegative() {
		return decimal.Zero, &InvariantViolationError{Stage: "discount value", Value: app.Value}
	}

	switch app.DiscountType {
	case coupon.DiscountPercentage:
		d := subtotal.Mul(app.Value).Div(hundred).RoundBank(2)
		return decimal.Min(d, subtotal), nil
	case coupon.DiscountFixed:
		return decimal.Min(app.Value, subtotal), nil
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", app.DiscountType)
	}
}
