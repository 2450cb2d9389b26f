// Package order implements the order assembly pipeline: converting a cart
// into an immutable order with reserved stock, computed totals, a redeemed
// coupon, and an auditable status history, all in one atomic unit of work.
package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/events"
)

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when converting a cart with no items.
	ErrEmptyCart = errors.New("cart has no items")
	// ErrTransactionConflict is returned when concurrent-mutation retries
	// are exhausted. The caller must resubmit.
	ErrTransactionConflict = errors.New("transaction conflict")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError aggregates field errors for malformed order attributes.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid order attributes:")
	for _, f := range e.Fields {
		b.WriteString(" ")
		b.WriteString(f.Field)
		b.WriteString(": ")
		b.WriteString(f.Reason)
		b.WriteString(";")
	}
	return strings.TrimSuffix(b.String(), ";")
}

// Address is a billing or shipping address.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// LineItem is an immutable snapshot of a purchased item at order time.
// Catalog changes afterward never alter it.
type LineItem struct {
	ProductID string
	VariantID string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	LineTotal decimal.Decimal
}

// Order is created once, atomically, from a cart. It is immutable except for
// status transitions, each of which appends to History.
type Order struct {
	ID              string
	CustomerID      string
	Items           []LineItem
	Totals          pricing.Totals
	CouponCode      string
	PaymentMethod   string
	PaymentTxID     string
	BillingAddress  Address
	ShippingAddress Address
	Status          Status
	History         []StatusChange
	CreatedAt       time.Time
}

// Writer persists new orders inside the checkout unit of work.
type Writer interface {
	Insert(ctx context.Context, o *Order) error
}

// Repository reads orders and applies status transitions.
type Repository interface {
	Get(ctx context.Context, id string) (*Order, error)
	// UpdateStatus applies a transition conditionally on the current status
	// matching change.From, persisting the audit entry and the status-changed
	// event in the same transaction. It returns ErrTransactionConflict when a
	// concurrent transition won the race.
	UpdateStatus(ctx context.Context, id string, change StatusChange) error
	// SetPaymentTransaction records the gateway transaction ID.
	SetPaymentTransaction(ctx context.Context, id, transactionID string) error
}

// Tx exposes the repositories that participate in a single checkout
// transaction. Everything reached through it commits or rolls back together.
type Tx interface {
	Stock() stock.Ledger
	Orders() Writer
	Coupons() coupon.Redeemer
	Carts() cart.Archiver
	Events() events.Appender
}

// UnitOfWork runs fn inside one atomic transaction, retrying a bounded number
// of times on serialization conflicts before surfacing ErrTransactionConflict.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// CreatedEvent is the payload of events.TypeOrderCreated.
type CreatedEvent struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id,omitempty"`
	Status     string          `json:"status"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// StatusChangedEvent is the payload of events.TypeOrderStatusChanged.
type StatusChangedEvent struct {
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Actor   string `json:"actor,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// BackorderedEvent is the payload of events.TypeStockBackordered.
type BackorderedEvent struct {
	OrderID   string `json:"order_id"`
	SKU       string `json:"sku"`
	Remaining int    `json:"remaining"`
}
