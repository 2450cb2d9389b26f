package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// defaultPerCustomerLimit applies when a coupon does not set its own limit.
const defaultPerCustomerLimit = 1

// Validator validates a coupon code against a cart subtotal and customer and
// returns the discount application. It performs no mutation.
type Validator interface {
	Validate(ctx context.Context, code, customerID string, subtotal decimal.Decimal) (*Application, error)
}

// RepoValidator implements Validator against a Repository.
type RepoValidator struct {
	repo Repository
	now  func() time.Time
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo, now: time.Now}
}

// Validate checks existence, validity window, global and per-customer usage
// limits, and the minimum subtotal. On success it returns the Application to
// feed into pricing; redemption happens later, inside the order commit.
func (v *RepoValidator) Validate(ctx context.Context, code, customerID string, subtotal decimal.Decimal) (*Application, error) {
	c, err := v.repo.FindByCode(ctx, strings.ToUpper(code))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return nil, ErrExpired
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return nil, ErrExpired
	}

	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return nil, ErrExhausted
	}

	limit := c.PerCustomerLimit
	if limit <= 0 {
		limit = defaultPerCustomerLimit
	}
	if customerID != "" {
		used, err := v.repo.CustomerRedemptions(ctx, c.Code, customerID)
		if err != nil {
			return nil, errors.Wrap(err, "count customer redemptions")
		}
		if used >= limit {
			return nil, ErrAlreadyUsed
		}
	}

	if subtotal.LessThan(c.MinSubtotal) {
		return nil, ErrMinimumNotMet
	}

	return &Application{
		Code:         c.Code,
		DiscountType: c.DiscountType,
		Value:        c.Value,
	}, nil
}
