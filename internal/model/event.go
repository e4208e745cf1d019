package model

import "time"

// EventType names a booking lifecycle event.
type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingCompleted EventType = "booking.completed"
	EventBookingCancelled EventType = "booking.cancelled"
)

// BookingEvent is emitted after a booking change has been committed.  It
// carries enough for downstream consumers to notify the guest without
// reading the primary database.
type BookingEvent struct {
	Type            EventType
	BookingID       int64
	UserID          int64
	Kind            ResourceKind
	ResourceID      string
	ResourceName    string
	Range           DateRange
	Quantity        int
	Status          BookingStatus
	TotalPriceCents int64
	Guest           Guest
	OccurredAt      time.Time
}

// NewBookingEvent builds the event for b.
func NewBookingEvent(t EventType, b Booking, resourceName string, at time.Time) BookingEvent {
	return BookingEvent{
		Type:            t,
		BookingID:       b.ID,
		UserID:          b.UserID,
		Kind:            b.Kind,
		ResourceID:      b.ResourceID,
		ResourceName:    resourceName,
		Range:           b.Range,
		Quantity:        b.Quantity,
		Status:          b.Status,
		TotalPriceCents: b.TotalPriceCents,
		Guest:           b.Guest,
		OccurredAt:      at,
	}
}
