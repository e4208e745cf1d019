package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tourism-booking/internal/model"
)

// TxRunner runs fn inside a transaction carried by the context passed to fn.
// Nested calls join the outer transaction.  Lock waits inside the transaction
// are bounded; a lock timeout or deadlock is reported as an
// apperr.TransactionConflict and the whole transaction is rolled back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ResourceRepository stores the bookable trips and hotels.
type ResourceRepository interface {
	GetResource(ctx context.Context, kind model.ResourceKind, id string) (model.Resource, error)
	UpsertResource(ctx context.Context, r model.Resource) error
}

// LedgerRepository is the inventory ledger.  IncrementHeld and DecrementHeld
// are single conditional statements; they never read and then write.
type LedgerRepository interface {
	// IncrementHeld adds qty to the held capacity of the unit for date only if
	// the result stays within total capacity.  It returns the unit id, or an
	// apperr.NotProvisioned / apperr.InsufficientCapacity error.
	IncrementHeld(ctx context.Context, kind model.ResourceKind, id string, date time.Time, qty int) (int64, error)
	// DecrementHeld subtracts qty from the unit only if held capacity stays
	// non-negative; otherwise it returns apperr.ReleaseFailure.
	DecrementHeld(ctx context.Context, unitID int64, qty int) error
	// ListUnits returns the units in r that exist, ascending by date, read in
	// a single statement.
	ListUnits(ctx context.Context, kind model.ResourceKind, id string, r model.DateRange) ([]model.InventoryUnit, error)
	// GetUnitForUpdate locks and returns the unit for date, or
	// apperr.NotProvisioned.
	GetUnitForUpdate(ctx context.Context, kind model.ResourceKind, id string, date time.Time) (model.InventoryUnit, error)
	// SaveUnitCapacity creates the unit or sets its total capacity.
	SaveUnitCapacity(ctx context.Context, kind model.ResourceKind, id string, date time.Time, total int) error
}

// HandleRepository persists reservation handles and their holds.
type HandleRepository interface {
	CreateHandle(ctx context.Context, h model.ReservationHandle) error
	GetHandleForUpdate(ctx context.Context, id uuid.UUID) (model.ReservationHandle, error)
	MarkHandleReleased(ctx context.Context, id uuid.UUID, at time.Time) error
}

// BookingRepository persists bookings.
type BookingRepository interface {
	// CreateBooking inserts b and returns the generated id.
	CreateBooking(ctx context.Context, b model.Booking) (int64, error)
	GetBooking(ctx context.Context, id int64) (model.Booking, error)
	GetBookingForUpdate(ctx context.Context, id int64) (model.Booking, error)
	// UpdateBookingStatus writes the status and lifecycle timestamps of b.
	UpdateBookingStatus(ctx context.Context, b model.Booking) error
	ListBookingsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Booking, error)
}

// Store is everything the engine needs from persistence.  The MySQL,
// Postgres and in-memory stores all implement it.
type Store interface {
	TxRunner
	ResourceRepository
	LedgerRepository
	HandleRepository
	BookingRepository
}

// Notifier receives booking events after the change has been committed.
type Notifier interface {
	Notify(ctx context.Context, ev model.BookingEvent) error
}

// IdempotencyStore remembers which booking a client supplied key produced.
// Claim returns claimed=true when the caller now owns key.  Otherwise
// bookingID is the booking recorded for key, or 0 while the owner is still
// working.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bookingID int64, claimed bool, err error)
	Complete(ctx context.Context, key string, bookingID int64) error
	Abandon(ctx context.Context, key string) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, model.BookingEvent) error { return nil }
