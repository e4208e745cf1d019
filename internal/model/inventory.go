package model

import (
	"time"

	"github.com/google/uuid"
)

// InventoryUnit is the capacity ledger row for one resource on one date.  A
// trip has one unit per departure date and a hotel one unit per night.
// HeldCapacity never exceeds TotalCapacity and never goes negative; the
// storage layer only changes it through conditional updates.
type InventoryUnit struct {
	ID            int64        // inventory_units.id
	Kind          ResourceKind // inventory_units.resource_kind
	ResourceID    string       // inventory_units.resource_id
	Date          time.Time    // inventory_units.unit_date (UTC midnight)
	TotalCapacity int          // inventory_units.total_capacity
	HeldCapacity  int          // inventory_units.held_capacity
	UpdatedAt     time.Time    // inventory_units.updated_at
}

// Remaining returns the capacity still free on this unit.
func (u InventoryUnit) Remaining() int { return u.TotalCapacity - u.HeldCapacity }

// HeldUnit records one ledger row incremented by a reservation.
type HeldUnit struct {
	UnitID int64     // reservation_holds.unit_id
	Date   time.Time // reservation_holds.unit_date
}

// ReservationHandle is the set of holds created by one reserve call.  The
// same quantity is held on every unit.  ReleasedAt is set exactly once, when
// the holds are returned to the ledger.
type ReservationHandle struct {
	ID         uuid.UUID    // reservation_handles.id
	Kind       ResourceKind // reservation_handles.resource_kind
	ResourceID string       // reservation_handles.resource_id
	Quantity   int          // reservation_handles.quantity
	Units      []HeldUnit   // reservation_holds rows, ascending by date
	CreatedAt  time.Time    // reservation_handles.created_at
	ReleasedAt *time.Time   // reservation_handles.released_at (nullable)
}

// Released reports whether the handle's holds were already returned.
func (h ReservationHandle) Released() bool { return h.ReleasedAt != nil }

// DateAvailability is the free capacity of a single date.
type DateAvailability struct {
	Date      time.Time
	Total     int
	Remaining int
}

// Availability is the answer to an availability query.  RemainingUnits is the
// smallest remaining capacity across the requested dates.
type Availability struct {
	Kind           ResourceKind
	ResourceID     string
	Available      bool
	RemainingUnits int
	Dates          []DateAvailability
}
