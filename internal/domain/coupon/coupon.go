// Package coupon implements coupon validation for checkout. Validation is
// pure: usage counters are incremented only inside the order commit, so a
// failed order never consumes a coupon use.
package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed"
)

var (
	// ErrNotFound is returned when a coupon code does not exist.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when a coupon is outside its valid time window.
	ErrExpired = errors.New("coupon expired")
	// ErrExhausted is returned when a coupon's global usage limit is reached.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrAlreadyUsed is returned when the customer's usage limit is reached.
	ErrAlreadyUsed = errors.New("coupon already used by customer")
	// ErrMinimumNotMet is returned when the cart subtotal is below the
	// coupon's minimum order value.
	ErrMinimumNotMet = errors.New("cart subtotal below coupon minimum")
)

// Coupon defines a discount rule with its eligibility constraints.
// MaxUses of zero means unlimited global uses; PerCustomerLimit of zero
// falls back to the default of one use per customer.
type Coupon struct {
	Code             string
	DiscountType     DiscountType
	Value            decimal.Decimal
	MinSubtotal      decimal.Decimal
	MaxUses          int
	Uses             int
	PerCustomerLimit int
	ValidFrom        *time.Time
	ValidUntil       *time.Time
	Description      string
}

// Application is the result of successful validation: the discount to apply
// at pricing time. It carries no mutable state.
type Application struct {
	Code         string
	DiscountType DiscountType
	Value        decimal.Decimal
}

// Repository provides coupon lookup. Code matching is case-insensitive exact.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	// CustomerRedemptions counts prior successful redemptions of the code by
	// the given customer.
	CustomerRedemptions(ctx context.Context, code, customerID string) (int, error)
}

// Redeemer increments usage counters at order commit time. Implemented by the
// checkout unit of work so redemption is atomic with order persistence.
// Redeem re-checks limits under the transaction and returns ErrExhausted or
// ErrAlreadyUsed when a concurrent checkout won the race.
type Redeemer interface {
	Redeem(ctx context.Context, code, customerID, orderID string) error
}
