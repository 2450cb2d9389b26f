package order

import (
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Status is an order's position in its lifecycle. Transitions are forward or
// side-only; an order never returns to an earlier forward state.
type Status string

const (
	StatusDraft          Status = "draft"
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusProcessing     Status = "processing"
	StatusShipped        Status = "shipped"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusRefunded       Status = "refunded"
)

// ErrUnknownStatus is returned when parsing an unrecognized status string.
var ErrUnknownStatus = errors.New("unknown order status")

// transitions is the forward chain plus the cancel and refund side exits.
var transitions = map[Status][]Status{
	StatusDraft:          {StatusPendingPayment},
	StatusPendingPayment: {StatusPaid, StatusCancelled},
	StatusPaid:           {StatusProcessing, StatusCancelled, StatusRefunded},
	StatusProcessing:     {StatusShipped, StatusCancelled, StatusRefunded},
	StatusShipped:        {StatusCompleted, StatusRefunded},
	StatusCompleted:      {StatusRefunded},
	StatusCancelled:      nil,
	StatusRefunded:       nil,
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", errors.Wrapf(ErrUnknownStatus, "%q", s)
	}
	return st, nil
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions exist from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// StatusChange is one audit-trail entry. From is empty for the entry recorded
// at order creation.
type StatusChange struct {
	From   Status
	To     Status
	At     time.Time
	Actor  string
	Reason string
}

// InvalidTransitionError reports a disallowed status transition.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order status transition: %s -> %s", e.From, e.To)
}
