// Package stock defines the inventory reservation contract used during order
// assembly. Implementations decrement stock as part of the enclosing checkout
// transaction so a failed order never leaves a partial decrement behind.
package stock

import (
	"context"
	"fmt"
)

// Line identifies a quantity to reserve against a product or variant.
// VariantID is empty when the base product is ordered.
type Line struct {
	ProductID string
	VariantID string
	SKU       string
	Quantity  int
}

// Backorder reports a line whose reservation drove stock below zero under a
// notify policy. Callers emit a notification event for each one.
type Backorder struct {
	SKU       string
	Remaining int
}

// InsufficientStockError indicates a line could not be reserved.
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		e.SKU, e.Requested, e.Available)
}

// Ledger reserves stock for a set of lines. Reservation succeeds only if every
// line either does not manage stock, allows backorders, or has enough stock
// for a conditional decrement. A failed line aborts the whole reservation and
// the enclosing transaction rolls back any decrements already applied.
type Ledger interface {
	Reserve(ctx context.Context, lines []Line) ([]Backorder, error)
}
