package referral

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var hundred = decimal.NewFromInt(100)

// DefaultAttributionWindow bounds how old a referral click may be and still
// earn a commission.
const DefaultAttributionWindow = 30 * 24 * time.Hour

// Attributor resolves referral attributions and records commissions for paid
// orders. Attribution is idempotent: retrying for the same order returns the
// existing commission.
type Attributor struct {
	repo   Repository
	lg     *zap.Logger
	window time.Duration
	now    func() time.Time
}

// NewAttributor creates an Attributor. A non-positive window falls back to
// DefaultAttributionWindow.
func NewAttributor(repo Repository, lg *zap.Logger, window time.Duration) *Attributor {
	if window <= 0 {
		window = DefaultAttributionWindow
	}
	return &Attributor{repo: repo, lg: lg, window: window, now: time.Now}
}

// TrackClick records a click on a referral code for the given customer.
func (a *Attributor) TrackClick(ctx context.Context, code, customerID string) error {
	c, err := a.repo.FindCodeByCode(ctx, code)
	if err != nil {
		return err
	}
	return a.repo.RecordClick(ctx, c.ID, customerID, a.now())
}

// Attribute records a pending commission for a paid order. It returns
// (nil, nil) when the customer has no unexpired referral association, and the
// existing commission when one was already recorded for the order.
func (a *Attributor) Attribute(ctx context.Context, orderID, customerID string, subtotal decimal.Decimal) (*Commission, error) {
	existing, err := a.repo.CommissionByOrder(ctx, orderID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNoAttribution) {
		return nil, errors.Wrap(err, "check existing commission")
	}

	if customerID == "" {
		return nil, nil
	}

	attr, err := a.repo.LatestAttribution(ctx, customerID, a.now().Add(-a.window))
	if err != nil {
		if errors.Is(err, ErrNoAttribution) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "resolve attribution")
	}

	c := &Commission{
		ID:             uuid.New().String(),
		ReferralCodeID: attr.ReferralCodeID,
		OrderID:        orderID,
		Amount:         commissionAmount(attr, subtotal),
		Status:         CommissionPending,
		CreatedAt:      a.now(),
	}
	if err := a.repo.CreateCommission(ctx, c); err != nil {
		// A concurrent retry beat us to the insert; return its row.
		if errors.Is(err, ErrDuplicateCommission) {
			return a.repo.CommissionByOrder(ctx, orderID)
		}
		return nil, errors.Wrap(err, "create commission")
	}
	return c, nil
}

// AttributeOrder adapts Attribute to the checkout lifecycle hook.
func (a *Attributor) AttributeOrder(ctx context.Context, orderID, customerID string, subtotal decimal.Decimal) error {
	c, err := a.Attribute(ctx, orderID, customerID, subtotal)
	if err != nil {
		return err
	}
	if c != nil {
		a.lg.Info("commission recorded",
			zap.String("commission_id", c.ID),
			zap.String("order_id", orderID),
			zap.String("amount", c.Amount.String()))
	}
	return nil
}

// Advance moves a commission forward through pending -> approved -> paid.
func (a *Attributor) Advance(ctx context.Context, commission *Commission, to CommissionStatus) error {
	if !validCommissionMove(commission.Status, to) {
		return errors.Wrapf(ErrInvalidStatusChange, "%s -> %s", commission.Status, to)
	}
	var paidAt *time.Time
	if to == CommissionPaid {
		t := a.now()
		paidAt = &t
	}
	if err := a.repo.UpdateCommissionStatus(ctx, commission.ID, to, paidAt); err != nil {
		return err
	}
	commission.Status = to
	commission.PaidAt = paidAt
	return nil
}

func validCommissionMove(from, to CommissionStatus) bool {
	switch from {
	case CommissionPending:
		return to == CommissionApproved
	case CommissionApproved:
		return to == CommissionPaid
	default:
		return false
	}
}

func commissionAmount(attr *Attribution, subtotal decimal.Decimal) decimal.Decimal {
	if attr.CommissionType == CommissionPercentage {
		return subtotal.Mul(attr.Value).Div(hundred).RoundBank(2)
	}
	return attr.Value.RoundBank(2)
}
