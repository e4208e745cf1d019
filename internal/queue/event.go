// Package queue carries booking events over RabbitMQ: a publisher used by
// the API after each committed change and a consumer used by the notifier.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/tourism-booking/internal/model"
)

// BookingEventsQueue is the durable queue all booking events are routed to.
const BookingEventsQueue = "booking.events"

// bookingEventMessage is the JSON payload of a booking event.
type bookingEventMessage struct {
	Type            string `json:"type"`
	BookingID       int64  `json:"booking_id"`
	UserID          int64  `json:"user_id"`
	ResourceKind    string `json:"resource_kind"`
	ResourceID      string `json:"resource_id"`
	ResourceName    string `json:"resource_name"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	Quantity        int    `json:"quantity"`
	Status          string `json:"status"`
	TotalPriceCents int64  `json:"total_price_cents"`
	GuestName       string `json:"guest_name"`
	GuestEmail      string `json:"guest_email"`
	GuestPhone      string `json:"guest_phone,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}

// EncodeEvent renders ev as the queue payload.
func EncodeEvent(ev model.BookingEvent) ([]byte, error) {
	return json.Marshal(bookingEventMessage{
		Type:            string(ev.Type),
		BookingID:       ev.BookingID,
		UserID:          ev.UserID,
		ResourceKind:    string(ev.Kind),
		ResourceID:      ev.ResourceID,
		ResourceName:    ev.ResourceName,
		StartDate:       model.FormatDate(ev.Range.Start),
		EndDate:         model.FormatDate(ev.Range.End),
		Quantity:        ev.Quantity,
		Status:          string(ev.Status),
		TotalPriceCents: ev.TotalPriceCents,
		GuestName:       ev.Guest.Name,
		GuestEmail:      ev.Guest.Email,
		GuestPhone:      ev.Guest.Phone,
		OccurredAt:      ev.OccurredAt.UTC().Format(time.RFC3339),
	})
}

// DecodeEvent parses a queue payload.
func DecodeEvent(body []byte) (model.BookingEvent, error) {
	var m bookingEventMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return model.BookingEvent{}, fmt.Errorf("unmarshal: %w", err)
	}
	if m.BookingID == 0 || m.Type == "" {
		return model.BookingEvent{}, fmt.Errorf("event is missing type or booking id")
	}
	start, err := model.ParseDate(m.StartDate)
	if err != nil {
		return model.BookingEvent{}, err
	}
	end, err := model.ParseDate(m.EndDate)
	if err != nil {
		return model.BookingEvent{}, err
	}
	at, err := time.Parse(time.RFC3339, m.OccurredAt)
	if err != nil {
		return model.BookingEvent{}, fmt.Errorf("occurred_at: %w", err)
	}
	return model.BookingEvent{
		Type:            model.EventType(m.Type),
		BookingID:       m.BookingID,
		UserID:          m.UserID,
		Kind:            model.ResourceKind(m.ResourceKind),
		ResourceID:      m.ResourceID,
		ResourceName:    m.ResourceName,
		Range:           model.DateRange{Start: start, End: end},
		Quantity:        m.Quantity,
		Status:          model.BookingStatus(m.Status),
		TotalPriceCents: m.TotalPriceCents,
		Guest:           model.Guest{Name: m.GuestName, Email: m.GuestEmail, Phone: m.GuestPhone},
		OccurredAt:      at.UTC(),
	}, nil
}
