package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iliyamo/tourism-booking/internal/apperr"
)

type txKey struct{}

// withTx runs fn in a transaction carried by the context handed to fn.  A
// nested call joins the outer transaction.  lockWait is applied with
// SET LOCAL semantics so it ends with the transaction.
func withTx(ctx context.Context, pool *pgxpool.Pool, lockWait time.Duration, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return translate(err, "begin transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if lockWait > 0 {
		ms := fmt.Sprintf("%dms", lockWait.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, ms); err != nil {
			return translate(err, "set lock timeout")
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err, "commit")
	}
	committed = true
	return nil
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

const (
	codeLockNotAvailable     = "55P03"
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeUniqueViolation      = "23505"
)

// translate maps err to an apperr error describing op.  Errors that already
// carry a kind pass through.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeLockNotAvailable:
			return apperr.Wrap(apperr.TransactionConflict, err, "%s: lock timeout", op)
		case codeDeadlockDetected:
			return apperr.Wrap(apperr.TransactionConflict, err, "%s: deadlock", op)
		case codeSerializationFailure:
			return apperr.Wrap(apperr.TransactionConflict, err, "%s: serialization failure", op)
		}
	}
	return apperr.Wrap(apperr.Internal, err, op)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
