package order_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/payment"
	"github.com/xenking/storefront/internal/domain/pricing"
	"github.com/xenking/storefront/internal/storage/memory"
)

type attributorStub struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (a *attributorStub) AttributeOrder(_ context.Context, orderID, _ string, _ decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders = append(a.orders, orderID)
	return a.err
}

func (a *attributorStub) attributed() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.orders...)
}

func insertOrder(t *testing.T, store *memory.Store, o *order.Order) {
	t.Helper()
	err := store.RunInTx(context.Background(), func(ctx context.Context, tx order.Tx) error {
		return tx.Orders().Insert(ctx, o)
	})
	require.NoError(t, err)
}

func pendingOrder(id string) *order.Order {
	return &order.Order{
		ID:            id,
		CustomerID:    "cust-1",
		Totals:        pricing.Totals{Subtotal: dec("50.00"), GrandTotal: dec("53.00")},
		PaymentMethod: "manual",
		Status:        order.StatusPendingPayment,
		History: []order.StatusChange{{
			To:    order.StatusPendingPayment,
			At:    time.Now(),
			Actor: "system",
		}},
		CreatedAt: time.Now(),
	}
}

func newLifecycle(store *memory.Store, attributor order.CommissionAttributor) *order.Lifecycle {
	return order.NewLifecycle(
		store.Orders(),
		payment.Registry{"manual": payment.NewManual()},
		attributor,
		zap.NewNop(),
	)
}

func TestLifecycle_CapturePayment(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	insertOrder(t, store, pendingOrder("o1"))

	attributor := &attributorStub{}
	l := newLifecycle(store, attributor)

	o, err := l.CapturePayment(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)

	stored, err := store.Orders().Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, stored.Status)
	assert.NotEmpty(t, stored.PaymentTxID)
	require.Len(t, stored.History, 2)
	assert.Equal(t, order.StatusPendingPayment, stored.History[1].From)
	assert.Equal(t, "payment", stored.History[1].Actor)

	assert.Equal(t, []string{"o1"}, attributor.attributed())
}

func TestLifecycle_CapturePaymentRequiresPendingPayment(t *testing.T) {
	store := memory.NewStore()
	draft := pendingOrder("o1")
	draft.Status = order.StatusDraft
	draft.History[0].To = order.StatusDraft
	insertOrder(t, store, draft)

	l := newLifecycle(store, nil)
	_, err := l.CapturePayment(context.Background(), "o1")

	var invalid *order.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, order.StatusDraft, invalid.From)
	assert.Equal(t, order.StatusPaid, invalid.To)
}

func TestLifecycle_CapturePaymentUnknownMethod(t *testing.T) {
	store := memory.NewStore()
	o := pendingOrder("o1")
	o.PaymentMethod = "carrier-pigeon"
	insertOrder(t, store, o)

	l := newLifecycle(store, nil)
	_, err := l.CapturePayment(context.Background(), "o1")
	require.ErrorIs(t, err, payment.ErrUnknownMethod)
}

func TestLifecycle_TransitionRejectsInvalidMove(t *testing.T) {
	store := memory.NewStore()
	insertOrder(t, store, pendingOrder("o1"))

	l := newLifecycle(store, nil)
	_, err := l.Transition(context.Background(), "o1", order.StatusShipped, "ops", "")

	var invalid *order.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestLifecycle_TransitionNotFound(t *testing.T) {
	l := newLifecycle(memory.NewStore(), nil)
	_, err := l.Transition(context.Background(), "missing", order.StatusPaid, "ops", "")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestLifecycle_AttributionFailureDoesNotFailTransition(t *testing.T) {
	store := memory.NewStore()
	insertOrder(t, store, pendingOrder("o1"))

	attributor := &attributorStub{err: errors.New("referral store down")}
	l := newLifecycle(store, attributor)

	o, err := l.Transition(context.Background(), "o1", order.StatusPaid, "payment", "captured")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Equal(t, []string{"o1"}, attributor.attributed())
}

func TestLifecycle_FulfilmentChain(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	insertOrder(t, store, pendingOrder("o1"))

	l := newLifecycle(store, &attributorStub{})
	for _, to := range []order.Status{
		order.StatusPaid,
		order.StatusProcessing,
		order.StatusShipped,
		order.StatusCompleted,
	} {
		o, err := l.Transition(ctx, "o1", to, "ops", "")
		require.NoError(t, err)
		assert.Equal(t, to, o.Status)
	}

	stored, err := store.Orders().Get(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, stored.History, 5)
}

func TestLifecycle_Refund(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	insertOrder(t, store, pendingOrder("o1"))

	l := newLifecycle(store, &attributorStub{})
	_, err := l.CapturePayment(ctx, "o1")
	require.NoError(t, err)

	o, err := l.Refund(ctx, "o1", "support", "damaged in transit")
	require.NoError(t, err)
	assert.Equal(t, order.StatusRefunded, o.Status)
	assert.True(t, o.Status.Terminal())

	last := o.History[len(o.History)-1]
	assert.Equal(t, "support", last.Actor)
	assert.Equal(t, "damaged in transit", last.Reason)
}

func TestLifecycle_RefundFromPendingPaymentRejected(t *testing.T) {
	store := memory.NewStore()
	insertOrder(t, store, pendingOrder("o1"))

	l := newLifecycle(store, nil)
	_, err := l.Refund(context.Background(), "o1", "support", "")

	var invalid *order.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}
