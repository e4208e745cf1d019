package repository

import (
	"context"
	"database/sql"
	"time"
)

const defaultLockWait = 2 * time.Second

// Store bundles the table repositories over one MySQL pool and adds the
// transaction runner the booking engine needs.
type Store struct {
	*ResourceRepo
	*InventoryRepo
	*HandleRepo
	*BookingRepo

	db       *sql.DB
	lockWait time.Duration
}

// NewStore returns a store over db.  lockWait bounds row lock waits inside
// transactions; zero keeps the default of two seconds.
func NewStore(db *sql.DB, lockWait time.Duration) *Store {
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &Store{
		ResourceRepo:  NewResourceRepo(db),
		InventoryRepo: NewInventoryRepo(db),
		HandleRepo:    NewHandleRepo(db),
		BookingRepo:   NewBookingRepo(db),
		db:            db,
		lockWait:      lockWait,
	}
}

// WithTx runs fn inside a transaction.  Repository calls made with the
// context passed to fn use that transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.db, s.lockWait, fn)
}

// DB exposes the underlying pool for health checks and migrations.
func (s *Store) DB() *sql.DB { return s.db }
