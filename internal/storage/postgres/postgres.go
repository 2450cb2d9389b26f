// Package postgres implements the storage contracts on PostgreSQL via pgx.
// Checkout units of work run as serializable transactions with bounded retry
// on serialization failures.
package postgres

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront/db"
	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/coupon"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/referral"
	"github.com/xenking/storefront/internal/events"
)

// querier is the intersection of pgxpool.Pool and pgx.Tx used by the
// repositories, so the same query helpers serve both.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store owns the connection pool and hands out repository views.
type Store struct {
	pool *pgxpool.Pool
	lg   *zap.Logger
}

// Connect opens a pool against dsn and verifies connectivity. Decimal columns
// scan directly into shopspring decimals.
func Connect(ctx context.Context, dsn string, lg *zap.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	cfg.AfterConnect = func(_ context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping")
	}
	return &Store{pool: pool, lg: lg}, nil
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Ping checks database connectivity, for health probes.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Migrate applies the embedded schema. Statements are idempotent, so running
// on every startup is safe.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, db.Schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

// Catalog returns the catalog repository.
func (s *Store) Catalog() catalog.Repository { return &catalogRepo{db: s.pool} }

// Carts returns the cart repository.
func (s *Store) Carts() cart.Repository { return &cartRepo{db: s.pool} }

// Coupons returns the coupon repository.
func (s *Store) Coupons() coupon.Repository { return &couponRepo{db: s.pool} }

// Orders returns the order repository.
func (s *Store) Orders() order.Repository { return &orderRepo{pool: s.pool} }

// Referrals returns the referral repository.
func (s *Store) Referrals() referral.Repository { return &referralRepo{pool: s.pool} }

// Outbox returns the outbox source consumed by the event relay.
func (s *Store) Outbox() events.Source { return &outboxSource{db: s.pool} }

const (
	txAttempts     = 3
	txBackoffBase  = 10 * time.Millisecond
	txBackoffLimit = 250 * time.Millisecond
)

var _ order.UnitOfWork = (*Store)(nil)

// RunInTx runs fn in a serializable transaction, retrying up to txAttempts
// times on serialization failures and deadlocks before reporting
// order.ErrTransactionConflict.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < txAttempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, backoff(attempt)); err != nil {
				return err
			}
			s.lg.Debug("retrying checkout transaction",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr))
		}

		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return errors.Wrap(order.ErrTransactionConflict, lastErr.Error())
}

func (s *Store) runOnce(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

// 40001 is serialization_failure, 40P01 is deadlock_detected.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func backoff(attempt int) time.Duration {
	d := txBackoffBase << uint(attempt)
	if d > txBackoffLimit {
		d = txBackoffLimit
	}
	return d + time.Duration(rand.Int63n(int64(d)))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
