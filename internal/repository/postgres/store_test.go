package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/repository/storetest"
	"github.com/iliyamo/tourism-booking/migrations"
)

const testDBLockID int64 = 604211874

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}
	cfg.MaxConns = 16

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skipping Postgres integration tests: %v", err)
	}
	t.Cleanup(pool.Close)

	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire lock conn: %v", err)
	}
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, testDBLockID); err != nil {
		conn.Release()
		t.Fatalf("acquire test lock: %v", err)
	}
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, testDBLockID)
		conn.Release()
	})

	if err := migrations.ApplyPostgres(context.Background(), pool); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	return pool
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, NewStore(newTestPool(t), time.Second))
}

func TestLockTimeoutIsTransactionConflict(t *testing.T) {
	pool := newTestPool(t)
	s := NewStore(pool, 200*time.Millisecond)
	ctx := context.Background()

	id := storetest.NewResourceID("trip")
	day := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	storetest.Provision(t, s, model.KindTrip, id, model.SingleDay(day), 3)

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithTx(ctx, func(txCtx context.Context) error {
			if _, err := s.GetUnitForUpdate(txCtx, model.KindTrip, id, day); err != nil {
				t.Errorf("lock unit: %v", err)
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked
	defer close(done)

	err := s.WithTx(ctx, func(txCtx context.Context) error {
		_, err := s.IncrementHeld(txCtx, model.KindTrip, id, day, 1)
		return err
	})
	if !apperr.Is(err, apperr.TransactionConflict) {
		t.Fatalf("expected TransactionConflict, got %v", err)
	}
}

func TestPanicInTransactionReleasesConnection(t *testing.T) {
	pool := newTestPool(t)
	s := NewStore(pool, 200*time.Millisecond)
	ctx := context.Background()

	id := storetest.NewResourceID("trip")
	day := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)
	storetest.Provision(t, s, model.KindTrip, id, model.SingleDay(day), 3)
	before := pool.Stat().AcquiredConns()

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = s.WithTx(ctx, func(txCtx context.Context) error {
			if _, err := s.GetUnitForUpdate(txCtx, model.KindTrip, id, day); err != nil {
				t.Fatalf("lock unit: %v", err)
			}
			panic("handler bug")
		})
	}()

	if got := pool.Stat().AcquiredConns(); got != before {
		t.Fatalf("acquired conns = %d after panic, want %d", got, before)
	}
	// The row lock went with the rolled back transaction.
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		_, err := s.IncrementHeld(txCtx, model.KindTrip, id, day, 1)
		return err
	})
	if err != nil {
		t.Fatalf("increment after panic: %v", err)
	}
}
