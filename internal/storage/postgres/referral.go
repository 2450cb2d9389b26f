package postgres

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/referral"
	"github.com/xenking/storefront/internal/events"
)

type referralRepo struct {
	pool *pgxpool.Pool
}

func (r *referralRepo) FindCodeByCode(ctx context.Context, code string) (*referral.Code, error) {
	var c referral.Code
	err := r.pool.QueryRow(ctx, `
		SELECT id, customer_id, code, commission_type, value, clicks, conversions,
		       total_commission, created_at
		FROM referral_codes WHERE code = upper($1)`,
		code,
	).Scan(
		&c.ID, &c.CustomerID, &c.Code, &c.CommissionType, &c.Value, &c.Clicks, &c.Conversions,
		&c.TotalCommission, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, referral.ErrCodeNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query referral code")
	}
	return &c, nil
}

func (r *referralRepo) RecordClick(ctx context.Context, codeID, customerID string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE referral_codes SET clicks = clicks + 1 WHERE id = $1`, codeID,
	)
	if err != nil {
		return errors.Wrap(err, "increment clicks")
	}
	if tag.RowsAffected() == 0 {
		return referral.ErrCodeNotFound
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO referral_clicks (referral_code_id, customer_id, clicked_at) VALUES ($1, $2, $3)`,
		codeID, customerID, at,
	); err != nil {
		return errors.Wrap(err, "insert click")
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

func (r *referralRepo) LatestAttribution(ctx context.Context, customerID string, since time.Time) (*referral.Attribution, error) {
	var a referral.Attribution
	err := r.pool.QueryRow(ctx, `
		SELECT rc.id, rc.code, rc.commission_type, rc.value, cl.clicked_at
		FROM referral_clicks cl
		JOIN referral_codes rc ON rc.id = cl.referral_code_id
		WHERE cl.customer_id = $1 AND cl.clicked_at >= $2
		ORDER BY cl.clicked_at DESC
		LIMIT 1`,
		customerID, since,
	).Scan(&a.ReferralCodeID, &a.Code, &a.CommissionType, &a.Value, &a.ClickedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, referral.ErrNoAttribution
	}
	if err != nil {
		return nil, errors.Wrap(err, "query attribution")
	}
	return &a, nil
}

func (r *referralRepo) CommissionByOrder(ctx context.Context, orderID string) (*referral.Commission, error) {
	var c referral.Commission
	err := r.pool.QueryRow(ctx, `
		SELECT id, referral_code_id, order_id, amount, status, created_at, paid_at
		FROM commissions WHERE order_id = $1`,
		orderID,
	).Scan(&c.ID, &c.ReferralCodeID, &c.OrderID, &c.Amount, &c.Status, &c.CreatedAt, &c.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, referral.ErrNoAttribution
	}
	if err != nil {
		return nil, errors.Wrap(err, "query commission")
	}
	return &c, nil
}

// CreateCommission inserts the commission, bumps the code's counters, and
// appends the commission-created event in one transaction. The unique
// constraint on (referral_code_id, order_id) is the idempotency guard.
func (r *referralRepo) CreateCommission(ctx context.Context, c *referral.Commission) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO commissions (id, referral_code_id, order_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ReferralCodeID, c.OrderID, c.Amount, c.Status, c.CreatedAt,
	); err != nil {
		// 23505 is unique_violation.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return referral.ErrDuplicateCommission
		}
		return errors.Wrap(err, "insert commission")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE referral_codes
		SET conversions = conversions + 1, total_commission = total_commission + $1
		WHERE id = $2`,
		c.Amount, c.ReferralCodeID,
	); err != nil {
		return errors.Wrap(err, "update code counters")
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
	if err := appendEvent(ctx, tx, ev); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

func (r *referralRepo) UpdateCommissionStatus(ctx context.Context, id string, status referral.CommissionStatus, paidAt *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE commissions SET status = $1, paid_at = $2 WHERE id = $3`,
		status, paidAt, id,
	)
	if err != nil {
		return errors.Wrap(err, "update commission status")
	}
	if tag.RowsAffected() == 0 {
		return referral.ErrNoAttribution
	}
	return nil
}
