// Package postgres is the pgx implementation of the booking store.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultLockWait = 2 * time.Second

// Store implements service.Store over a pgx pool.
type Store struct {
	pool     *pgxpool.Pool
	lockWait time.Duration
}

// NewStore returns a store over pool.  lockWait bounds row lock waits inside
// transactions; zero keeps the default of two seconds.
func NewStore(pool *pgxpool.Pool, lockWait time.Duration) *Store {
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &Store{pool: pool, lockWait: lockWait}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, s.lockWait, fn)
}

// Pool exposes the pool for health checks and migrations.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}
