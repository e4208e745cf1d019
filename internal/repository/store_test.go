package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/repository/storetest"
	"github.com/iliyamo/tourism-booking/migrations"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set; skipping MySQL integration tests")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("skipping MySQL integration tests: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := migrations.ApplyMySQL(context.Background(), db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, NewStore(newTestDB(t), time.Second))
}

func TestLockWaitTimeoutIsTransactionConflict(t *testing.T) {
	s := NewStore(newTestDB(t), time.Second)
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

func TestTranslate(t *testing.T) {
	if translate(nil, "op") != nil {
		t.Fatalf("nil must stay nil")
	}
	kinded := apperr.New(apperr.NotProvisioned, "missing")
	if translate(kinded, "op") != kinded {
		t.Fatalf("kinded errors must pass through")
	}
	if !apperr.Is(translate(sql.ErrConnDone, "op"), apperr.Internal) {
		t.Fatalf("foreign errors must become Internal")
	}
	for _, n := range []uint16{errLockWaitTimeout, errDeadlock} {
		err := translate(&mysql.MySQLError{Number: n, Message: "busy"}, "op")
		if !apperr.Is(err, apperr.TransactionConflict) {
			t.Fatalf("mysql error %d: expected TransactionConflict, got %v", n, err)
		}
	}
	if !isDuplicateKey(&mysql.MySQLError{Number: errDuplicateKey}) {
		t.Fatalf("1062 must be a duplicate key")
	}
}
