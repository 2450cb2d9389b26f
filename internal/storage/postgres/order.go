package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/events"
)

func insertOrder(ctx context.Context, q querier, o *order.Order) error {
	billing, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal billing address")
	}
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}

	if _, err := q.Exec(ctx, `
		INSERT INTO orders (id, customer_id, status, coupon_code, payment_method, payment_tx_id,
		                    subtotal, discount_total, shipping_total, tax_total, grand_total,
		                    billing_address, shipping_address, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.CustomerID, o.Status, o.CouponCode, o.PaymentMethod, o.PaymentTxID,
		o.Totals.Subtotal, o.Totals.Discount, o.Totals.Shipping, o.Totals.Tax, o.Totals.GrandTotal,
		billing, shipping, o.CreatedAt,
	); err != nil {
		return errors.Wrap(err, "insert order")
	}

	for i, it := range o.Items {
		if _, err := q.Exec(ctx, `
			INSERT INTO order_line_items (order_id, position, product_id, variant_id, name,
			                              unit_price, quantity, line_total)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8)`,
			o.ID, i, it.ProductID, it.VariantID, it.Name, it.UnitPrice, it.Quantity, it.LineTotal,
		); err != nil {
			return errors.Wrap(err, "insert line item")
		}
	}
	for _, h := range o.History {
		if err := insertStatusChange(ctx, q, o.ID, h); err != nil {
			return err
		}
	}
	return nil
}

func insertStatusChange(ctx context.Context, q querier, orderID string, h order.StatusChange) error {
	_, err := q.Exec(ctx, `
		INSERT INTO order_status_history (order_id, changed_at, from_status, to_status, actor, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID, h.At, h.From, h.To, h.Actor, h.Reason,
	)
	return errors.Wrap(err, "insert status history")
}

func appendEvent(ctx context.Context, q querier, e events.Event) error {
	_, err := q.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.AggregateType, e.AggregateID, e.Type, []byte(e.Payload), e.CreatedAt,
	)
	return errors.Wrap(err, "insert outbox event")
}

type orderRepo struct {
	pool *pgxpool.Pool
}

func (r *orderRepo) Get(ctx context.Context, id string) (*order.Order, error) {
	var (
		o          order.Order
		customerID *string
		billing    []byte
		shipping   []byte
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, status, coupon_code, payment_method, payment_tx_id,
		       subtotal, discount_total, shipping_total, tax_total, grand_total,
		       billing_address, shipping_address, created_at
		FROM orders WHERE id = $1`,
		id,
	).Scan(
		&o.ID, &customerID, &o.Status, &o.CouponCode, &o.PaymentMethod, &o.PaymentTxID,
		&o.Totals.Subtotal, &o.Totals.Discount, &o.Totals.Shipping, &o.Totals.Tax, &o.Totals.GrandTotal,
		&billing, &shipping, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}
	if customerID != nil {
		o.CustomerID = *customerID
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return nil, errors.Wrap(err, "unmarshal billing address")
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, errors.Wrap(err, "unmarshal shipping address")
	}

	if o.Items, err = r.lineItems(ctx, id); err != nil {
		return nil, err
	}
	if o.History, err = r.history(ctx, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepo) lineItems(ctx context.Context, orderID string) ([]order.LineItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, COALESCE(variant_id, ''), name, unit_price, quantity, line_total
		FROM order_line_items WHERE order_id = $1
		ORDER BY position`,
		orderID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query line items")
	}
	defer rows.Close()

	var items []order.LineItem
	for rows.Next() {
		var it order.LineItem
		if err := rows.Scan(&it.ProductID, &it.VariantID, &it.Name, &it.UnitPrice, &it.Quantity, &it.LineTotal); err != nil {
			return nil, errors.Wrap(err, "scan line item")
		}
		items = append(items, it)
	}
	return items, errors.Wrap(rows.Err(), "iterate line items")
}

func (r *orderRepo) history(ctx context.Context, orderID string) ([]order.StatusChange, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT from_status, to_status, changed_at, actor, reason
		FROM order_status_history WHERE order_id = $1
		ORDER BY changed_at`,
		orderID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query status history")
	}
	defer rows.Close()

	var history []order.StatusChange
	for rows.Next() {
		var h order.StatusChange
		if err := rows.Scan(&h.From, &h.To, &h.At, &h.Actor, &h.Reason); err != nil {
			return nil, errors.Wrap(err, "scan status change")
		}
		history = append(history, h)
	}
	return history, errors.Wrap(rows.Err(), "iterate status history")
}

// UpdateStatus applies the transition, the audit row, and the status-changed
// event in one transaction. The conditional update loses cleanly when a
// concurrent transition got there first.
func (r *orderRepo) UpdateStatus(ctx context.Context, id string, change order.StatusChange) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		change.To, id, change.From,
	)
	if err != nil {
		return errors.Wrap(err, "update status")
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT true FROM orders WHERE id = $1`, id).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return order.ErrNotFound
			}
			return errors.Wrap(err, "check order")
		}
		return order.ErrTransactionConflict
	}

	if err := insertStatusChange(ctx, tx, id, change); err != nil {
		return err
	}

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
	if err := appendEvent(ctx, tx, ev); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

func (r *orderRepo) SetPaymentTransaction(ctx context.Context, id, transactionID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE orders SET payment_tx_id = $1 WHERE id = $2`,
		transactionID, id,
	)
	if err != nil {
		return errors.Wrap(err, "set payment transaction")
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}
