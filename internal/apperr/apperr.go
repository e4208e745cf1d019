// Package apperr defines the typed errors returned by the booking engine.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorises an engine error.
type Kind int

const (
	// Internal is an unexpected failure, usually from the persistence layer.
	Internal Kind = iota
	// NotFound means the requested record does not exist.
	NotFound
	// Invalid means the caller supplied a malformed request.
	Invalid
	// Forbidden means the caller may not act on the record.
	Forbidden
	// NotProvisioned means no inventory is configured for the resource or date.
	NotProvisioned
	// InsufficientCapacity means inventory exists but is exhausted.
	InsufficientCapacity
	// InvalidTransition means the booking state machine rejected the change.
	InvalidTransition
	// TransactionConflict is a lock timeout or deadlock; the call may be retried.
	TransactionConflict
	// ReleaseFailure means held capacity could not be returned to the ledger.
	ReleaseFailure
)

var kindNames = map[Kind]string{
	Internal:             "internal",
	NotFound:             "not_found",
	Invalid:              "invalid",
	Forbidden:            "forbidden",
	NotProvisioned:       "not_provisioned",
	InsufficientCapacity: "insufficient_capacity",
	InvalidTransition:    "invalid_transition",
	TransactionConflict:  "transaction_conflict",
	ReleaseFailure:       "release_failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Retryable reports whether an operation failing with k may succeed if retried.
func (k Kind) Retryable() bool { return k == TransactionConflict }

// Error is the error type returned across the engine boundary.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an error of kind k.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of kind k caused by err.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...), Cause: err}
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or Internal for foreign errors.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries kind k.
func Is(err error, k Kind) bool {
	if err == nil {
		return false
	}
	e, ok := As(err)
	return ok && e.Kind == k
}
