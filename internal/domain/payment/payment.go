// Package payment defines the payment gateway contract. Order assembly only
// records the chosen method; gateways are invoked at status-transition
// boundaries (capture drives pending_payment to paid).
package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrUnknownMethod is returned when no gateway is registered for a method.
var ErrUnknownMethod = errors.New("unknown payment method")

// Details carries opaque, gateway-specific payment instrument data.
type Details map[string]string

// Receipt is the gateway's record of a capture or refund.
type Receipt struct {
	TransactionID string
	Amount        decimal.Decimal
	ProcessedAt   time.Time
}

// Gateway is the abstract payment processor contract.
type Gateway interface {
	Authorize(ctx context.Context, amount decimal.Decimal, details Details) (transactionID string, err error)
	Capture(ctx context.Context, transactionID string, amount decimal.Decimal) (Receipt, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (Receipt, error)
}

// Registry resolves gateways by payment method name.
type Registry map[string]Gateway

// Get returns the gateway for the given method.
func (r Registry) Get(method string) (Gateway, error) {
	g, ok := r[method]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "method %q", method)
	}
	return g, nil
}

// Manual is an offline gateway for bank-transfer style methods: every
// operation succeeds immediately with a synthetic transaction ID.
type Manual struct {
	now func() time.Time
}

var _ Gateway = (*Manual)(nil)

// NewManual creates a Manual gateway.
func NewManual() *Manual {
	return &Manual{now: time.Now}
}

func (m *Manual) Authorize(_ context.Context, _ decimal.Decimal, _ Details) (string, error) {
	return "manual-" + m.now().UTC().Format("20060102150405.000000000"), nil
}

func (m *Manual) Capture(_ context.Context, transactionID string, amount decimal.Decimal) (Receipt, error) {
	return Receipt{TransactionID: transactionID, Amount: amount, ProcessedAt: m.now()}, nil
}

func (m *Manual) Refund(_ context.Context, transactionID string, amount decimal.Decimal, _ string) (Receipt, error) {
	return Receipt{TransactionID: transactionID, Amount: amount, ProcessedAt: m.now()}, nil
}
