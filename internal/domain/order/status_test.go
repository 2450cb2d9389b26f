package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"draft to pending payment", StatusDraft, StatusPendingPayment, true},
		{"pending payment to paid", StatusPendingPayment, StatusPaid, true},
		{"pending payment to cancelled", StatusPendingPayment, StatusCancelled, true},
		{"paid to processing", StatusPaid, StatusProcessing, true},
		{"paid to refunded", StatusPaid, StatusRefunded, true},
		{"processing to shipped", StatusProcessing, StatusShipped, true},
		{"shipped to completed", StatusShipped, StatusCompleted, true},
		{"completed to refunded", StatusCompleted, StatusRefunded, true},

		{"no skip draft to paid", StatusDraft, StatusPaid, false},
		{"no backward paid to pending payment", StatusPaid, StatusPendingPayment, false},
		{"no backward shipped to processing", StatusShipped, StatusProcessing, false},
		{"shipped cannot cancel", StatusShipped, StatusCancelled, false},
		{"cancelled is terminal", StatusCancelled, StatusDraft, false},
		{"refunded is terminal", StatusRefunded, StatusPaid, false},
		{"no self transition", StatusPaid, StatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRefunded.Terminal())
	assert.False(t, StatusDraft.Terminal())
	assert.False(t, StatusCompleted.Terminal())
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("processing")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, st)

	_, err = ParseStatus("misplaced")
	require.ErrorIs(t, err, ErrUnknownStatus)
}
