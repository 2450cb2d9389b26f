// Package shipping defines the shipping cost contract consumed by checkout
// and a flat-rate implementation. Carrier integrations live behind the
// Calculator interface.
package shipping

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrMethodUnavailable is returned when the requested shipping method is not
// offered for the destination.
var ErrMethodUnavailable = errors.New("shipping method unavailable")

// Destination is the shipping address subset calculators need.
type Destination struct {
	City       string
	Region     string
	PostalCode string
	Country    string
}

// Quote is a priced shipping option.
type Quote struct {
	Method string
	Amount decimal.Decimal
}

// Calculator prices shipping for a cart subtotal and destination.
// Free-shipping thresholds are the calculator's concern, not pricing's.
type Calculator interface {
	Calculate(ctx context.Context, subtotal decimal.Decimal, dest Destination, method string) (Quote, error)
	AvailableMethods(ctx context.Context, dest Destination) ([]string, error)
}

// FlatRate charges a fixed amount per order and waives it above a free
// threshold. A zero FreeOver never waives.
type FlatRate struct {
	Method   string
	Rate     decimal.Decimal
	FreeOver decimal.Decimal
}

var _ Calculator = (*FlatRate)(nil)

// NewFlatRate creates a flat-rate calculator.
func NewFlatRate(method string, rate, freeOver decimal.Decimal) *FlatRate {
	return &FlatRate{Method: method, Rate: rate, FreeOver: freeOver}
}

// Calculate returns the flat rate, or zero when the subtotal reaches the
// free-shipping threshold.
func (f *FlatRate) Calculate(_ context.Context, subtotal decimal.Decimal, _ Destination, method string) (Quote, error) {
	if method != "" && method != f.Method {
		return Quote{}, ErrMethodUnavailable
	}
	amount := f.Rate
	if f.FreeOver.IsPositive() && subtotal.GreaterThanOrEqual(f.FreeOver) {
		amount = decimal.Zero
	}
	return Quote{Method: f.Method, Amount: amount}, nil
}

// AvailableMethods returns the single flat-rate method.
func (f *FlatRate) AvailableMethods(_ context.Context, _ Destination) ([]string, error) {
	return []string{f.Method}, nil
}
