package order_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/shipping"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/events"
	"github.com/xenking/storefront/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newAssembler(store *memory.Store, taxRate decimal.Decimal) *order.Assembler {
	return order.NewAssembler(
		store.Carts(),
		store.Catalog(),
		coupon.NewRepoValidator(store.Coupons()),
		shipping.NewFlatRate("standard", dec("3.00"), dec("50.00")),
		store,
		taxRate,
	)
}

func seedCart(t *testing.T, store *memory.Store, id, customerID string, items ...cart.Item) {
	t.Helper()
	err := store.Carts().Create(context.Background(), &cart.Cart{
		ID:         id,
		CustomerID: customerID,
		Items:      items,
		CreatedAt:  time.Now(),
	})
	require.NoError(t, err)
}

func shippedTo() order.Address {
	return order.Address{
		Name:       "Ada Lovelace",
		Line1:      "12 Analytical Way",
		City:       "London",
		PostalCode: "N1 7EU",
		Country:    "GB",
	}
}

func TestAssembler_CreateOrderFromCart(t *testing.T) {
	ctx := context.Background()

	store := memory.NewStore()
	store.SeedProduct(catalog.Product{
		ID:            "p-mug",
		SKU:           "MUG-01",
		Name:          "Enamel Mug",
		Price:         dec("20.00"),
		ManageStock:   true,
		StockQuantity: 10,
		Backorders:    catalog.BackorderNo,
	})
	store.SeedCoupon(coupon.Coupon{
		Code:         "SAVE5",
		DiscountType: coupon.DiscountFixed,
		Value:        dec("5.00"),
		MaxUses:      100,
	})
	seedCart(t, store, "c1", "cust-1", cart.Item{ProductID: "p-mug", Quantity: 1, PriceSnapshot: dec("20.00")})

	a := newAssembler(store, decimal.Zero)

	o, err := a.CreateOrderFromCart(ctx, order.CreateOrderRequest{
		CartID:          "c1",
		CouponCode:      "save5",
		PaymentMethod:   "manual",
		ShippingAddress: shippedTo(),
	})
	require.NoError(t, err)

	assert.Equal(t, order.StatusPendingPayment, o.Status)
	assert.Equal(t, "cust-1", o.CustomerID)
	assert.Equal(t, "SAVE5", o.CouponCode)
	assert.True(t, o.Totals.Subtotal.Equal(dec("20.00")), "subtotal %s", o.Totals.Subtotal)
	assert.True(t, o.Totals.Discount.Equal(dec("5.00")), "discount %s", o.Totals.Discount)
	assert.True(t, o.Totals.Shipping.Equal(dec("3.00")), "shipping %s", o.Totals.Shipping)
	assert.True(t, o.Totals.GrandTotal.Equal(dec("18.00")), "grand total %s", o.Totals.GrandTotal)
	require.Len(t, o.Items, 1)
	assert.True(t, o.Items[0].UnitPrice.Equal(dec("20.00")))
	require.Len(t, o.History, 1)
	assert.Equal(t, order.StatusPendingPayment, o.History[0].To)

	// Side effects committed together.
	assert.Equal(t, 9, store.StockQuantity("p-mug"))
	assert.Equal(t, 1, store.CouponUses("SAVE5"))
	_, err = store.Carts().Get(ctx, "c1")
	assert.ErrorIs(t, err, cart.ErrNotFound)

	stored, err := store.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, stored.ID)

	pending, err := store.Unpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, events.TypeOrderCreated, pending[0].Type)
	assert.Equal(t, o.ID, pending[0].AggregateID)
}

func TestAssembler_DraftWithoutPaymentMethod(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct(catalog.Product{ID: "p1", SKU: "P1", Name: "Thing", Price: dec("10.00")})
	seedCart(t, store, "c1", "", cart.Item{ProductID: "p1", Quantity: 1})

	a := newAssembler(store, decimal.Zero)
	o, err := a.CreateOrderFromCart(context.Background(), order.CreateOrderRequest{CartID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, order.StatusDraft, o.Status)
}

func TestAssembler_SalePriceApplied(t *testing.T) {
	sale := dec("24.99")
	store := memory.NewStore()
	store.SeedProduct(catalog.Product{
		ID:        "p-lamp",
		SKU:       "LAMP-01",
		Name:      "Desk Lamp",
		Price:     dec("39.99"),
		SalePrice: &sale,
	})
	seedCart(t, store, "c1", "", cart.Item{ProductID: "p-lamp", Quantity: 2})

	a := newAssembler(store, decimal.Zero)
	o, err := a.CreateOrderFromCart(context.Background(), order.CreateOrderRequest{CartID: "c1"})
	require.NoError(t, err)
	assert.True(t, o.Totals.Subtotal.Equal(dec("49.98")), "subtotal %s", o.Totals.Subtotal)
	assert.True(t, o.Items[0].UnitPrice.Equal(sale))
}

func TestAssembler_VariantLine(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct(catalog.Product{ID: "p-tee", SKU: "TEE", Name: "T-Shirt", Price: dec("15.00")})
	store.SeedVariant(catalog.Variant{
		ID:            "v-tee-l",
		ProductID:     "p-tee",
		SKU:           "TEE-L",
		Name:          "T-Shirt L",
		Price:         dec("17.00"),
		ManageStock:   true,
		StockQuantity: 3,
		Backorders:    catalog.BackorderNo,
	})
	seedCart(t, store, "c1", "", cart.Item{ProductID: "p-tee", VariantID: "v-tee-l", Quantity: 2})

	a := newAssembler(store, decimal.Zero)
	o, err := a.CreateOrderFromCart(context.Background(), order.CreateOrderRequest{CartID: "c1"})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "v-tee-l", o.Items[0].VariantID)
	assert.True(t, o.Totals.Subtotal.Equal(dec("34.00")))
}

func TestAssembler_TaxAfterDiscount(t *testing.T) {
	store := memory.NewStore()
	store.SeedProduct(catalog.Product{ID: "p1", SKU: "P1", Name: "Bundle", Price: dec("100.00")})
	store.SeedCoupon(coupon.Coupon{Code: "TWENTY", DiscountType: coupon.DiscountFixed, Value: dec("20.00")})
	seedCart(t, store, "c1", "cust-1", cart.Item{ProductID: "p1", Quantity: 1})

	a := newAssembler(store, dec("0.10"))
	o, err := a.CreateOrderFromCart(context.Background(), order.CreateOrderRequest{
		CartID:          "c1",
		CouponCode:      "TWENTY",
		PaymentMethod:   "manual",
		ShippingAddress: shippedTo(),
	})
	require.NoError(t, err)
	// Subtotal 100 qualifies for free shipping; tax on the discounted net.
	assert.True(t, o.Totals.Shipping.IsZero())
	assert.True(t, o.Totals.Tax.Equal(dec("8.00")), "tax %s", o.Totals.Tax)
	assert.True(t, o.Totals.GrandTotal.Equal(dec("88.00")), "grand total %s", o.Totals.GrandTotal)
}

func TestAssembler_EmptyCart(t *testing.T) {
	store := memory.NewStore()
	seedCart(t, store, "c1", "")

	a := newAssembler(store, decimal.Zero)
	_, err := a.CreateOrderFromCart(context.Background(), order.CreateOrderRequest{CartID: "c1"})
	require.ErrorIs(t, err, order.ErrEmptyCart)
}

func TestAssembler_CartNotFound(t *testing.T) {
	a := newAssembler(memory.NewStore(), decimal.Zero)
	_, err := a.CreateOrderFromCart(context.Background(), order.CreateOrderRequest{CartID: "nope"})
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestAssembler_ValidationErrors(t *testing.T) {
	a := newAssembler(memory.NewStore(), decimal.Zero)

	_, err := a.CreateOrderFromCart(context.Background(), order.CreateOrderRequest{
		PaymentMethod: "manual",
	})
	var verr *order.ValidationError
	require.ErrorAs(t, err, &verr)

	fields := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		fields[f.Field] = f.Reason
	}
	assert.Equal(t, "required", fields["cart_id"])
	assert.Equal(t, "required", fields["shipping_address.line1"])
	assert.Equal(t, "required", fields["shipping_address.country"])
}

func TestAssembler_InsufficientStockRollsBack(t *testing.T) {
	ctx := context.Background()

	store := memory.NewStore()
	store.SeedProduct(catalog.Product{
		ID:            "p1",
		SKU:           "P1",
		Name:          "Scarce",
		Price:         dec("10.00"),
		ManageStock:   true,
		StockQuantity: 2,
		Backorders:    catalog.BackorderNo,
	})
	store.SeedCoupon(coupon.Coupon{Code: "SAVE1", DiscountType: coupon.DiscountFixed, Value: dec("1.00")})
	seedCart(t, store, "c1", "cust-1", cart.Item{ProductID: "p1", Quantity: 3})

	a := newAssembler(store, decimal.Zero)
	_, err := a.CreateOrderFromCart(ctx, order.CreateOrderRequest{
		CartID:          "c1",
		CouponCode:      "SAVE1",
		PaymentMethod:   "manual",
		ShippingAddress: shippedTo(),
	})

	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "P1", insufficient.SKU)
	assert.Equal(t, 3, insufficient.Requested)
	assert.Equal(t, 2, insufficient.Available)

	// Nothing committed: stock, coupon, and cart are untouched.
	assert.Equal(t, 2, store.StockQuantity("p1"))
	assert.Equal(t, 0, store.CouponUses("SAVE1"))
	_, err = store.Carts().Get(ctx, "c1")
	require.NoError(t, err)

	pending, err := store.Unpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAssembler_ExpiredCouponFailsBeforeCommit(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	store := memory.NewStore()
	store.SeedProduct(catalog.Product{
		ID: "p1", SKU: "P1", Name: "Thing", Price: dec("10.00"),
		ManageStock: true, StockQuantity: 5, Backorders: catalog.BackorderNo,
	})
	store.SeedCoupon(coupon.Coupon{
		Code:         "GONE",
		DiscountType: coupon.DiscountFixed,
		Value:        dec("1.00"),
		ValidUntil:   &past,
	})
	seedCart(t, store, "c1", "cust-1", cart.Item{ProductID: "p1", Quantity: 1})

	a := newAssembler(store, decimal.Zero)
	_, err := a.CreateOrderFromCart(context.Background(), order.CreateOrderRequest{
		CartID:          "c1",
		CouponCode:      "GONE",
		PaymentMethod:   "manual",
		ShippingAddress: shippedTo(),
	})
	require.ErrorIs(t, err, coupon.ErrExpired)
	assert.Equal(t, 5, store.StockQuantity("p1"))
}

func TestAssembler_NotifyBackorderEmitsEvent(t *testing.T) {
	ctx := context.Background()

	store := memory.NewStore()
	store.SeedProduct(catalog.Product{
		ID:            "p1",
		SKU:           "P1",
		Name:          "Popular",
		Price:         dec("10.00"),
		ManageStock:   true,
		StockQuantity: 1,
		Backorders:    catalog.BackorderNotify,
	})
	seedCart(t, store, "c1", "", cart.Item{ProductID: "p1", Quantity: 3})

	a := newAssembler(store, decimal.Zero)
	o, err := a.CreateOrderFromCart(ctx, order.CreateOrderRequest{CartID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, -2, store.StockQuantity("p1"))

	pending, err := store.Unpublished(ctx, 10)
	require.NoError(t, err)

	var backordered int
	for _, e := range pending {
		if e.Type == events.TypeStockBackordered {
			backordered++
			assert.Equal(t, o.ID, e.AggregateID)
		}
	}
	assert.Equal(t, 1, backordered)
}

func TestAssembler_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	ctx := context.Background()
	const buyers = 8

	store := memory.NewStore()
	store.SeedProduct(catalog.Product{
		ID:            "p1",
		SKU:           "P1",
		Name:          "Limited",
		Price:         dec("10.00"),
		ManageStock:   true,
		StockQuantity: 5,
		Backorders:    catalog.BackorderNo,
	})
	for i := 0; i < buyers; i++ {
		seedCart(t, store, "c"+string(rune('a'+i)), "", cart.Item{ProductID: "p1", Quantity: 1})
	}

	a := newAssembler(store, decimal.Zero)
	results := make([]error, buyers)

	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			_, err := a.CreateOrderFromCart(ctx, order.CreateOrderRequest{
				CartID: "c" + string(rune('a'+i)),
			})
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok, rejected int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		default:
			var insufficient *stock.InsufficientStockError
			require.ErrorAs(t, err, &insufficient)
			rejected++
		}
	}
	assert.Equal(t, 5, ok)
	assert.Equal(t, 3, rejected)
	assert.Equal(t, 0, store.StockQuantity("p1"))
}

func TestAssembler_SingleUseCouponRedeemedOnce(t *testing.T) {
	ctx := context.Background()
	const buyers = 6

	store := memory.NewStore()
	store.SeedProduct(catalog.Product{ID: "p1", SKU: "P1", Name: "Thing", Price: dec("10.00")})
	store.SeedCoupon(coupon.Coupon{
		Code:         "ONCE",
		DiscountType: coupon.DiscountFixed,
		Value:        dec("2.00"),
		MaxUses:      1,
	})
	for i := 0; i < buyers; i++ {
		seedCart(t, store, "c"+string(rune('a'+i)), "cust-"+string(rune('a'+i)),
			cart.Item{ProductID: "p1", Quantity: 1})
	}

	a := newAssembler(store, decimal.Zero)
	results := make([]error, buyers)

	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			_, err := a.CreateOrderFromCart(ctx, order.CreateOrderRequest{
				CartID:     "c" + string(rune('a'+i)),
				CouponCode: "ONCE",
			})
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, coupon.ErrExhausted)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, store.CouponUses("ONCE"))
}

func TestAssembler_PerCustomerLimitUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	const attempts = 4

	store := memory.NewStore()
	store.SeedProduct(catalog.Product{ID: "p1", SKU: "P1", Name: "Thing", Price: dec("10.00")})
	store.SeedCoupon(coupon.Coupon{
		Code:             "MINE",
		DiscountType:     coupon.DiscountFixed,
		Value:            dec("2.00"),
		PerCustomerLimit: 1,
	})
	// One customer racing themselves across several carts.
	for i := 0; i < attempts; i++ {
		seedCart(t, store, "c"+string(rune('a'+i)), "cust-1",
			cart.Item{ProductID: "p1", Quantity: 1})
	}

	a := newAssembler(store, decimal.Zero)
	results := make([]error, attempts)

	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		g.Go(func() error {
			_, err := a.CreateOrderFromCart(ctx, order.CreateOrderRequest{
				CartID:     "c" + string(rune('a'+i)),
				CustomerID: "cust-1",
				CouponCode: "MINE",
			})
			results[i] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, coupon.ErrAlreadyUsed)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, store.CouponUses("MINE"))
}

func TestAssembler_PartialReservationRollsBack(t *testing.T) {
	ctx := context.Background()

	store := memory.NewStore()
	store.SeedProduct(catalog.Product{
		ID:            "p-ample",
		SKU:           "AMPLE",
		Name:          "Ample",
		Price:         dec("10.00"),
		ManageStock:   true,
		StockQuantity: 5,
		Backorders:    catalog.BackorderNo,
	})
	store.SeedProduct(catalog.Product{
		ID:            "p-scarce",
		SKU:           "SCARCE",
		Name:          "Scarce",
		Price:         dec("10.00"),
		ManageStock:   true,
		StockQuantity: 1,
		Backorders:    catalog.BackorderNo,
	})
	// First line reserves fine; the second fails and must undo the first.
	seedCart(t, store, "c1", "cust-1",
		cart.Item{ProductID: "p-ample", Quantity: 2},
		cart.Item{ProductID: "p-scarce", Quantity: 3},
	)

	a := newAssembler(store, decimal.Zero)
	_, err := a.CreateOrderFromCart(ctx, order.CreateOrderRequest{
		CartID:          "c1",
		PaymentMethod:   "manual",
		ShippingAddress: shippedTo(),
	})

	var insufficient *stock.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "SCARCE", insufficient.SKU)

	assert.Equal(t, 5, store.StockQuantity("p-ample"))
	assert.Equal(t, 1, store.StockQuantity("p-scarce"))
	_, err = store.Carts().Get(ctx, "c1")
	require.NoError(t, err)

	pending, err := store.Unpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
