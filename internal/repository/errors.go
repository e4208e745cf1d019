// Package repository is the MySQL implementation of the booking store.
// Driver errors are translated here so that higher layers only ever see
// apperr kinds: lock wait timeouts and deadlocks become
// TransactionConflict, anything unexpected becomes Internal.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/tourism-booking/internal/apperr"
)

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errDuplicateKey    = 1062
)

// translate maps err to an apperr error describing op.  Errors that already
// carry a kind pass through untouched.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case errLockWaitTimeout:
			return apperr.Wrap(apperr.TransactionConflict, err, "%s: lock wait timeout", op)
		case errDeadlock:
			return apperr.Wrap(apperr.TransactionConflict, err, "%s: deadlock", op)
		}
	}
	return apperr.Wrap(apperr.Internal, err, op)
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == errDuplicateKey
}
