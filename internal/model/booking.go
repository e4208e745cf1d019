package model

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// Terminal reports whether no further transition may leave s.
func (s BookingStatus) Terminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// Guest holds the contact details captured with a booking.
type Guest struct {
	Name  string // bookings.guest_name
	Email string // bookings.guest_email
	Phone string // bookings.guest_phone
}

// Booking is a guest's claim on Quantity units of every date in Range for one
// resource.  A booking is created PENDING together with the reservation
// handle that holds its capacity.  Cancelling releases that handle; completing
// keeps the capacity consumed.
//
// Fields:
//  ID              – primary key identifier.
//  UserID          – user that owns the booking.
//  Kind            – trip or hotel.
//  ResourceID      – the booked resource.
//  Range           – departure date, or [check-in, check-out).
//  Quantity        – guests for a trip, rooms for a hotel.
//  Status          – PENDING, CONFIRMED, COMPLETED or CANCELLED.
//  BasePriceCents  – unit price at the time of booking.
//  TotalPriceCents – price charged for the whole booking.
//  HandleID        – reservation handle holding the capacity.
type Booking struct {
	ID              int64         // bookings.id
	UserID          int64         // bookings.user_id
	Kind            ResourceKind  // bookings.resource_kind
	ResourceID      string        // bookings.resource_id
	Range           DateRange     // bookings.start_date, bookings.end_date
	Quantity        int           // bookings.quantity
	Status          BookingStatus // bookings.status
	BasePriceCents  int64         // bookings.base_price_cents
	TotalPriceCents int64         // bookings.total_price_cents
	HandleID        uuid.UUID     // bookings.handle_id
	Guest           Guest
	CreatedAt       time.Time  // bookings.created_at
	UpdatedAt       time.Time  // bookings.updated_at
	ConfirmedAt     *time.Time // bookings.confirmed_at (nullable)
	CompletedAt     *time.Time // bookings.completed_at (nullable)
	CancelledAt     *time.Time // bookings.cancelled_at (nullable)
}
