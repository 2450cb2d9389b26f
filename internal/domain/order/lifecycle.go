package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/payment"
)

// CommissionAttributor records a referral commission for a paid order.
// Implementations must be idempotent; attribution is retried independently
// of order state.
type CommissionAttributor interface {
	AttributeOrder(ctx context.Context, orderID, customerID string, subtotal decimal.Decimal) error
}

// Lifecycle drives order status transitions after assembly: payment capture,
// fulfilment progress, cancellation, and refunds.
type Lifecycle struct {
	repo       Repository
	gateways   payment.Registry
	attributor CommissionAttributor
	lg         *zap.Logger
	now        func() time.Time
}

// NewLifecycle creates a Lifecycle service.
func NewLifecycle(repo Repository, gateways payment.Registry, attributor CommissionAttributor, lg *zap.Logger) *Lifecycle {
	return &Lifecycle{
		repo:       repo,
		gateways:   gateways,
		attributor: attributor,
		lg:         lg,
		now:        time.Now,
	}
}

// Get returns an order with its line items and status history.
func (l *Lifecycle) Get(ctx context.Context, orderID string) (*Order, error) {
	return l.repo.Get(ctx, orderID)
}

// Transition moves an order to a new status, appending the audit entry and
// status-changed event atomically. Reaching paid triggers commission
// attribution; attribution failures are logged and never fail the transition,
// since commission is a downstream side effect, not a purchase precondition.
func (l *Lifecycle) Transition(ctx context.Context, orderID string, to Status, actor, reason string) (*Order, error) {
	o, err := l.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	change := StatusChange{
		From:   o.Status,
		To:     to,
		At:     l.now(),
		Actor:  actor,
		Reason: reason,
	}
	if err := l.repo.UpdateStatus(ctx, o.ID, change); err != nil {
		return nil, err
	}
	o.Status = to
	o.History = append(o.History, change)

	if to == StatusPaid && l.attributor != nil {
		if err := l.attributor.AttributeOrder(ctx, o.ID, o.CustomerID, o.Totals.Subtotal); err != nil {
			l.lg.Error("commission attribution failed",
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
	}
	return o, nil
}

// CapturePayment authorizes (when needed) and captures the grand total via
// the order's payment gateway, then transitions the order to paid.
func (l *Lifecycle) CapturePayment(ctx context.Context, orderID string) (*Order, error) {
	o, err := l.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPendingPayment {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusPaid}
	}

	gw, err := l.gateways.Get(o.PaymentMethod)
	if err != nil {
		return nil, err
	}

	txID := o.PaymentTxID
	if txID == "" {
		txID, err = gw.Authorize(ctx, o.Totals.GrandTotal, nil)
		if err != nil {
			return nil, errors.Wrap(err, "authorize payment")
		}
		if err := l.repo.SetPaymentTransaction(ctx, o.ID, txID); err != nil {
			return nil, errors.Wrap(err, "record payment transaction")
		}
	}

	receipt, err := gw.Capture(ctx, txID, o.Totals.GrandTotal)
	if err != nil {
		return nil, errors.Wrap(err, "capture payment")
	}

	return l.Transition(ctx, orderID, StatusPaid, "payment",
		"payment captured: "+receipt.TransactionID)
}

// Refund refunds the grand total via the gateway and transitions the order
// to refunded.
func (l *Lifecycle) Refund(ctx context.Context, orderID, actor, reason string) (*Order, error) {
	o, err := l.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransitionTo(StatusRefunded) {
		return nil, &InvalidTransitionError{From: o.Status, To: StatusRefunded}
	}

	if o.PaymentTxID != "" {
		gw, err := l.gateways.Get(o.PaymentMethod)
		if err != nil {
			return nil, err
		}
		if _, err := gw.Refund(ctx, o.PaymentTxID, o.Totals.GrandTotal, reason); err != nil {
			return nil, errors.Wrap(err, "refund payment")
		}
	}

	return l.Transition(ctx, orderID, StatusRefunded, actor, reason)
}
