// Package referral tracks referral codes, clicks, and the commissions
// attributed to paid orders.
package referral

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// CommissionType enumerates how a commission amount is computed.
type CommissionType string

const (
	// CommissionPercentage pays a percentage of the order subtotal.
	CommissionPercentage CommissionType = "percentage"
	// CommissionFixed pays a flat amount regardless of order size.
	CommissionFixed CommissionType = "fixed"
)

// CommissionStatus moves forward only: pending -> approved -> paid.
type CommissionStatus string

const (
	CommissionPending  CommissionStatus = "pending"
	CommissionApproved CommissionStatus = "approved"
	CommissionPaid     CommissionStatus = "paid"
)

var (
	// ErrCodeNotFound is returned when a referral code does not exist.
	ErrCodeNotFound = errors.New("referral code not found")
	// ErrNoAttribution is returned when a customer has no unexpired referral
	// association. Not an error for checkout; there is simply no commission.
	ErrNoAttribution = errors.New("no referral attribution")
	// ErrDuplicateCommission is returned on a second insert for the same
	// (referral code, order) pair.
	ErrDuplicateCommission = errors.New("commission already recorded for order")
	// ErrInvalidStatusChange is returned for backward commission status moves.
	ErrInvalidStatusChange = errors.New("invalid commission status change")
)

// Code is a referral code owned by a customer, with running counters.
type Code struct {
	ID              string
	CustomerID      string
	Code            string
	CommissionType  CommissionType
	Value           decimal.Decimal
	Clicks          int
	Conversions     int
	TotalCommission decimal.Decimal
	CreatedAt       time.Time
}

// Attribution is the referral association resolved for a purchasing customer:
// the most recent unexpired click on a referral code.
type Attribution struct {
	ReferralCodeID string
	Code           string
	CommissionType CommissionType
	Value          decimal.Decimal
	ClickedAt      time.Time
}

// Commission links a referral code to exactly one order.
type Commission struct {
	ID             string
	ReferralCodeID string
	OrderID        string
	Amount         decimal.Decimal
	Status         CommissionStatus
	CreatedAt      time.Time
	PaidAt         *time.Time
}

// Repository defines persistence for referral codes and commissions.
type Repository interface {
	FindCodeByCode(ctx context.Context, code string) (*Code, error)
	// RecordClick increments the code's click counter and stores the
	// association used later for attribution.
	RecordClick(ctx context.Context, codeID, customerID string, at time.Time) error
	// LatestAttribution returns the customer's most recent association not
	// older than `since`, or ErrNoAttribution.
	LatestAttribution(ctx context.Context, customerID string, since time.Time) (*Attribution, error)
	// CommissionByOrder returns the commission recorded for an order, or
	// ErrNoAttribution when none exists.
	CommissionByOrder(ctx context.Context, orderID string) (*Commission, error)
	// CreateCommission inserts a commission, increments the code's conversion
	// and total-commission counters, and appends the commission-created event
	// in one transaction. Returns ErrDuplicateCommission when the
	// (referral code, order) pair already exists.
	CreateCommission(ctx context.Context, c *Commission) error
	// UpdateCommissionStatus persists a forward status move; PaidAt is set
	// when the new status is paid.
	UpdateCommissionStatus(ctx context.Context, id string, status CommissionStatus, paidAt *time.Time) error
}

// CreatedEvent is the payload of events.TypeCommissionCreated.
type CreatedEvent struct {
	CommissionID   string          `json:"commission_id"`
	ReferralCodeID string          `json:"referral_code_id"`
	OrderID        string          `json:"order_id"`
	Amount         decimal.Decimal `json:"amount"`
}
