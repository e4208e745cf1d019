package service

import "context"

type txScopeKey struct{}

// txScope collects work that must wait for the outermost transaction.
type txScope struct {
	done []func(err error)
}

// runTx runs fn in a transaction of store.  Inside another runTx the call
// joins the outer transaction, and callbacks registered with afterTx fire
// once, with the outer result, when that transaction commits or rolls back.
func runTx(ctx context.Context, store Store, fn func(ctx context.Context) error) error {
	if _, nested := ctx.Value(txScopeKey{}).(*txScope); nested {
		return store.WithTx(ctx, fn)
	}
	scope := &txScope{}
	err := store.WithTx(context.WithValue(ctx, txScopeKey{}, scope), fn)
	for _, f := range scope.done {
		f(err)
	}
	return err
}

// afterTx calls f with the result of the outermost transaction ctx belongs
// to.  Outside any runTx the transaction has already ended and f runs now
// with a nil error.
func afterTx(ctx context.Context, f func(err error)) {
	if scope, ok := ctx.Value(txScopeKey{}).(*txScope); ok {
		scope.done = append(scope.done, f)
		return
	}
	f(nil)
}
