// Package memory provides an in-memory implementation of every storage
// contract the domain defines. A single coarse mutex makes each operation,
// and each checkout unit of work, serializable, which is the same guarantee
// the transactional store provides in production. Used by tests and by local
// development without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/referral"
	"github.com/xenking/storefront/internal/domain/stock"
	"github.com/xenking/storefront/internal/events"
)

type redemption struct {
	Code       string
	CustomerID string
	OrderID    string
}

type click struct {
	CodeID     string
	CustomerID string
	At         time.Time
}

// Store holds all state behind one mutex. Domain repositories are exposed as
// views over the same store, so a checkout transaction sees and mutates the
// same data the plain repositories do.
type Store struct {
	mu          sync.Mutex
	products    map[string]*catalog.Product
	variants    map[string]*catalog.Variant
	carts       map[string]*cart.Cart
	archived    map[string]bool
	coupons     map[string]*coupon.Coupon
	redemptions []redemption
	orders      map[string]*order.Order
	codes       map[string]*referral.Code
	clicks      []click
	commissions map[string]*referral.Commission
	outbox      []events.Event
	published   map[string]bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		products:    make(map[string]*catalog.Product),
		variants:    make(map[string]*catalog.Variant),
		carts:       make(map[string]*cart.Cart),
		archived:    make(map[string]bool),
		coupons:     make(map[string]*coupon.Coupon),
		orders:      make(map[string]*order.Order),
		codes:       make(map[string]*referral.Code),
		commissions: make(map[string]*referral.Commission),
		published:   make(map[string]bool),
	}
}

// Catalog returns the catalog repository view.
func (s *Store) Catalog() catalog.Repository { return &catalogRepo{s} }

// Carts returns the cart repository view.
func (s *Store) Carts() cart.Repository { return &cartRepo{s} }

// Coupons returns the coupon repository view.
func (s *Store) Coupons() coupon.Repository { return &couponRepo{s} }

// Orders returns the order repository view.
func (s *Store) Orders() order.Repository { return &orderRepo{s} }

// Referrals returns the referral repository view.
func (s *Store) Referrals() referral.Repository { return &referralRepo{s} }

// --- Seeding helpers ---

// SeedProduct adds or replaces a product.
func (s *Store) SeedProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = &p
}

// SeedVariant adds or replaces a variant.
func (s *Store) SeedVariant(v catalog.Variant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variants[v.ID] = &v
}

// SeedCoupon adds or replaces a coupon, keyed by upper-cased code.
func (s *Store) SeedCoupon(c coupon.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupons[strings.ToUpper(c.Code)] = &c
}

// SeedReferralCode adds or replaces a referral code.
func (s *Store) SeedReferralCode(c referral.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[strings.ToUpper(c.Code)] = &c
}

// StockQuantity reports the current stock for a product, for test assertions.
func (s *Store) StockQuantity(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.products[productID]; ok {
		return p.StockQuantity
	}
	return 0
}

// CouponUses reports the redemption counter of a coupon, for test assertions.
func (s *Store) CouponUses(code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.coupons[strings.ToUpper(code)]; ok {
		return c.Uses
	}
	return 0
}

// --- catalog.Repository ---

type catalogRepo struct{ s *Store }

var _ catalog.Repository = (*catalogRepo)(nil)

func (r *catalogRepo) GetProduct(_ context.Context, id string) (*catalog.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *catalogRepo) GetVariant(_ context.Context, id string) (*catalog.Variant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.variants[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	cp := *v
	return &cp, nil
}

// --- cart.Repository ---

type cartRepo struct{ s *Store }

var _ cart.Repository = (*cartRepo)(nil)

func (r *cartRepo) Create(_ context.Context, c *cart.Cart) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	r.s.carts[c.ID] = &cp
	return nil
}

func (r *cartRepo) Get(_ context.Context, id string) (*cart.Cart, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[id]
	if !ok || r.s.archived[id] {
		return nil, cart.ErrNotFound
	}
	cp := *c
	cp.Items = append([]cart.Item(nil), c.Items...)
	return &cp, nil
}

func (r *cartRepo) UpsertItem(_ context.Context, cartID string, item cart.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[cartID]
	if !ok || r.s.archived[cartID] {
		return cart.ErrNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID && c.Items[i].VariantID == item.VariantID {
			c.Items[i] = item
			return nil
		}
	}
	c.Items = append(c.Items, item)
	return nil
}

func (r *cartRepo) RemoveItem(_ context.Context, cartID, productID, variantID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.carts[cartID]
	if !ok || r.s.archived[cartID] {
		return cart.ErrNotFound
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID && c.Items[i].VariantID == variantID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return nil
		}
	}
	return cart.ErrItemNotFound
}

// --- coupon.Repository ---

type couponRepo struct{ s *Store }

var _ coupon.Repository = (*couponRepo)(nil)

func (r *couponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.coupons[strings.ToUpper(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *couponRepo) CustomerRedemptions(_ context.Context, code, customerID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.customerRedemptionsLocked(code, customerID), nil
}

func (s *Store) customerRedemptionsLocked(code, customerID string) int {
	code = strings.ToUpper(code)
	n := 0
	for _, r := range s.redemptions {
		if r.Code == code && r.CustomerID == customerID {
			n++
		}
	}
	return n
}

// --- order.Repository ---

type orderRepo struct{ s *Store }

var _ order.Repository = (*orderRepo)(nil)

func (r *orderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	cp.Items = append([]order.LineItem(nil), o.Items...)
	cp.History = append([]order.StatusChange(nil), o.History...)
	return &cp, nil
}

func (r *orderRepo) UpdateStatus(_ context.Context, id string, change order.StatusChange) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.Status != change.From {
		return order.ErrTransactionConflict
	}
	o.Status = change.To
	o.History = append(o.History, change)

	ev, err := events.New("order", id, events.TypeOrderStatusChanged, order.StatusChangedEvent{
		OrderID: id,
		From:    string(change.From),
		To:      string(change.To),
		Actor:   change.Actor,
		Reason:  change.Reason,
	})
	if err != nil {
		return err
	}
	r.s.outbox = append(r.s.outbox, ev)
	return nil
}

func (r *orderRepo) SetPaymentTransaction(_ context.Context, id, transactionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.PaymentTxID = transactionID
	return nil
}

// --- order.UnitOfWork ---

var _ order.UnitOfWork = (*Store)(nil)

// snapshot captures the state a checkout transaction may mutate.
type snapshot struct {
	products    map[string]catalog.Product
	variants    map[string]catalog.Variant
	coupons     map[string]coupon.Coupon
	redemptions int
	orderIDs    map[string]struct{}
	archived    map[string]bool
	outbox      int
}

func (s *Store) takeSnapshot() snapshot {
	snap := snapshot{
		products:    make(map[string]catalog.Product, len(s.products)),
		variants:    make(map[string]catalog.Variant, len(s.variants)),
		coupons:     make(map[string]coupon.Coupon, len(s.coupons)),
		redemptions: len(s.redemptions),
		orderIDs:    make(map[string]struct{}, len(s.orders)),
		archived:    make(map[string]bool, len(s.archived)),
		outbox:      len(s.outbox),
	}
	for id, p := range s.products {
		snap.products[id] = *p
	}
	for id, v := range s.variants {
		snap.variants[id] = *v
	}
	for code, c := range s.coupons {
		snap.coupons[code] = *c
	}
	for id := range s.orders {
		snap.orderIDs[id] = struct{}{}
	}
	for id, a := range s.archived {
		snap.archived[id] = a
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	for id, p := range snap.products {
		cp := p
		s.products[id] = &cp
	}
	for id, v := range snap.variants {
		cp := v
		s.variants[id] = &cp
	}
	for code, c := range snap.coupons {
		cp := c
		s.coupons[code] = &cp
	}
	s.redemptions = s.redemptions[:snap.redemptions]
	for id := range s.orders {
		if _, ok := snap.orderIDs[id]; !ok {
			delete(s.orders, id)
		}
	}
	s.archived = snap.archived
	s.outbox = s.outbox[:snap.outbox]
}

// RunInTx executes fn under the store mutex. On error every mutation made
// through the transaction is rolled back.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.takeSnapshot()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// memTx adapts the locked store to the checkout transaction contract. All of
// its methods run with the store mutex already held by RunInTx.
type memTx struct {
	s *Store
}

var _ order.Tx = (*memTx)(nil)

func (t *memTx) Stock() stock.Ledger      { return (*txStock)(t) }
func (t *memTx) Orders() order.Writer     { return (*txOrders)(t) }
func (t *memTx) Coupons() coupon.Redeemer { return (*txCoupons)(t) }
func (t *memTx) Carts() cart.Archiver     { return (*txCarts)(t) }
func (t *memTx) Events() events.Appender  { return (*txEvents)(t) }

type txStock memTx

func (t *txStock) Reserve(_ context.Context, lines []stock.Line) ([]stock.Backorder, error) {
	var backorders []stock.Backorder
	for _, l := range lines {
		manage, policy, qty, err := t.s.stockStateLocked(l)
		if err != nil {
			return nil, err
		}
		if !manage {
			continue
		}
		switch policy {
		case catalog.BackorderNotify:
			remaining := qty - l.Quantity
			t.s.setStockLocked(l, remaining)
			if remaining < 0 {
				backorders = append(backorders, stock.Backorder{SKU: l.SKU, Remaining: remaining})
			}
		case catalog.BackorderAllow:
			t.s.setStockLocked(l, qty-l.Quantity)
		default:
			if qty < l.Quantity {
				return nil, &stock.InsufficientStockError{
					SKU:       l.SKU,
					Requested: l.Quantity,
					Available: qty,
				}
			}
			t.s.setStockLocked(l, qty-l.Quantity)
		}
	}
	return backorders, nil
}

func (s *Store) stockStateLocked(l stock.Line) (manage bool, policy catalog.BackorderPolicy, qty int, err error) {
	if l.VariantID != "" {
		v, ok := s.variants[l.VariantID]
		if !ok {
			return false, "", 0, catalog.ErrVariantNotFound
		}
		return v.ManageStock, v.Backorders, v.StockQuantity, nil
	}
	p, ok := s.products[l.ProductID]
	if !ok {
		return false, "", 0, catalog.ErrProductNotFound
	}
	return p.ManageStock, p.Backorders, p.StockQuantity, nil
}

func (s *Store) setStockLocked(l stock.Line, qty int) {
	if l.VariantID != "" {
		s.variants[l.VariantID].StockQuantity = qty
		return
	}
	s.products[l.ProductID].StockQuantity = qty
}

type txOrders memTx

func (t *txOrders) Insert(_ context.Context, o *order.Order) error {
	cp := *o
	cp.Items = append([]order.LineItem(nil), o.Items...)
	cp.History = append([]order.StatusChange(nil), o.History...)
	t.s.orders[o.ID] = &cp
	return nil
}

type txCoupons memTx

func (t *txCoupons) Redeem(_ context.Context, code, customerID, orderID string) error {
	key := strings.ToUpper(code)
	c, ok := t.s.coupons[key]
	if !ok {
		return coupon.ErrNotFound
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return coupon.ErrExhausted
	}
	limit := c.PerCustomerLimit
	if limit <= 0 {
		limit = 1
	}
	if customerID != "" && t.s.customerRedemptionsLocked(key, customerID) >= limit {
		return coupon.ErrAlreadyUsed
	}
	c.Uses++
	t.s.redemptions = append(t.s.redemptions, redemption{
		Code:       key,
		CustomerID: customerID,
		OrderID:    orderID,
	})
	return nil
}

type txCarts memTx

func (t *txCarts) Archive(_ context.Context, cartID string) error {
	if _, ok := t.s.carts[cartID]; !ok {
		return cart.ErrNotFound
	}
	t.s.archived[cartID] = true
	return nil
}

type txEvents memTx

func (t *txEvents) Append(_ context.Context, e events.Event) error {
	t.s.outbox = append(t.s.outbox, e)
	return nil
}

// --- referral.Repository ---

type referralRepo struct{ s *Store }

var _ referral.Repository = (*referralRepo)(nil)

func (r *referralRepo) FindCodeByCode(_ context.Context, code string) (*referral.Code, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.codes[strings.ToUpper(code)]
	if !ok {
		return nil, referral.ErrCodeNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *referralRepo) RecordClick(_ context.Context, codeID, customerID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.codes {
		if c.ID == codeID {
			c.Clicks++
			r.s.clicks = append(r.s.clicks, click{CodeID: codeID, CustomerID: customerID, At: at})
			return nil
		}
	}
	return referral.ErrCodeNotFound
}

func (r *referralRepo) LatestAttribution(_ context.Context, customerID string, since time.Time) (*referral.Attribution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var latest *click
	for i := range r.s.clicks {
		c := &r.s.clicks[i]
		if c.CustomerID != customerID || c.At.Before(since) {
			continue
		}
		if latest == nil || c.At.After(latest.At) {
			latest = c
		}
	}
	if latest == nil {
		return nil, referral.ErrNoAttribution
	}
	for _, code := range r.s.codes {
		if code.ID == latest.CodeID {
			return &referral.Attribution{
				ReferralCodeID: code.ID,
				Code:           code.Code,
				CommissionType: code.CommissionType,
				Value:          code.Value,
				ClickedAt:      latest.At,
			}, nil
		}
	}
	return nil, referral.ErrNoAttribution
}

func (r *referralRepo) CommissionByOrder(_ context.Context, orderID string) (*referral.Commission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.commissions[orderID]
	if !ok {
		return nil, referral.ErrNoAttribution
	}
	cp := *c
	return &cp, nil
}

func (r *referralRepo) CreateCommission(_ context.Context, c *referral.Commission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, exists := r.s.commissions[c.OrderID]; exists {
		return referral.ErrDuplicateCommission
	}
	cp := *c
	r.s.commissions[c.OrderID] = &cp

	for _, code := range r.s.codes {
		if code.ID == c.ReferralCodeID {
			code.Conversions++
			code.TotalCommission = code.TotalCommission.Add(c.Amount)
			break
		}
	}

	ev, err := events.New("commission", c.ID, events.TypeCommissionCreated, referral.CreatedEvent{
		CommissionID:   c.ID,
		ReferralCodeID: c.ReferralCodeID,
		OrderID:        c.OrderID,
		Amount:         c.Amount,
	})
	if err != nil {
		return err
	}
	r.s.outbox = append(r.s.outbox, ev)
	return nil
}

func (r *referralRepo) UpdateCommissionStatus(_ context.Context, id string, status referral.CommissionStatus, paidAt *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.commissions {
		if c.ID == id {
			c.Status = status
			c.PaidAt = paidAt
			return nil
		}
	}
	return referral.ErrNoAttribution
}

// --- events.Source ---

var _ events.Source = (*Store)(nil)

func (s *Store) Unpublished(_ context.Context, limit int) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.outbox {
		if s.published[e.ID] {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.published[id] = true
	}
	return nil
}
