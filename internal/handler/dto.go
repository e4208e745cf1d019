package handler

import (
	"errors"
	"time"

	"github.com/iliyamo/tourism-booking/internal/model"
)

type guestJSON struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type bookingJSON struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	Kind            string     `json:"kind"`
	ResourceID      string     `json:"resource_id"`
	Start           string     `json:"start"`
	End             string     `json:"end"`
	Nights          int        `json:"nights"`
	Quantity        int        `json:"quantity"`
	Status          string     `json:"status"`
	BasePriceCents  int64      `json:"base_price_cents"`
	TotalPriceCents int64      `json:"total_price_cents"`
	Guest           guestJSON  `json:"guest"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
}

func toBookingJSON(b model.Booking) bookingJSON {
	return bookingJSON{
		ID:              b.ID,
		UserID:          b.UserID,
		Kind:            string(b.Kind),
		ResourceID:      b.ResourceID,
		Start:           model.FormatDate(b.Range.Start),
		End:             model.FormatDate(b.Range.End),
		Nights:          b.Range.Nights(),
		Quantity:        b.Quantity,
		Status:          string(b.Status),
		BasePriceCents:  b.BasePriceCents,
		TotalPriceCents: b.TotalPriceCents,
		Guest:           guestJSON{Name: b.Guest.Name, Email: b.Guest.Email, Phone: b.Guest.Phone},
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
		ConfirmedAt:     b.ConfirmedAt,
		CompletedAt:     b.CompletedAt,
		CancelledAt:     b.CancelledAt,
	}
}

type dateAvailabilityJSON struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Remaining int    `json:"remaining"`
}

type availabilityJSON struct {
	Kind           string                 `json:"kind"`
	ResourceID     string                 `json:"resource_id"`
	Available      bool                   `json:"available"`
	RemainingUnits int                    `json:"remaining_units"`
	Dates          []dateAvailabilityJSON `json:"dates"`
}

func toAvailabilityJSON(a model.Availability) availabilityJSON {
	out := availabilityJSON{
		Kind:           string(a.Kind),
		ResourceID:     a.ResourceID,
		Available:      a.Available,
		RemainingUnits: a.RemainingUnits,
		Dates:          make([]dateAvailabilityJSON, 0, len(a.Dates)),
	}
	for _, d := range a.Dates {
		out.Dates = append(out.Dates, dateAvailabilityJSON{Date: model.FormatDate(d.Date), Total: d.Total, Remaining: d.Remaining})
	}
	return out
}

type resourceJSON struct {
	Kind           string    `json:"kind"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	BasePriceCents int64     `json:"base_price_cents"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toResourceJSON(r model.Resource) resourceJSON {
	return resourceJSON{
		Kind: string(r.Kind), ID: r.ID, Name: r.Name, BasePriceCents: r.BasePriceCents,
		Status: string(r.Status), CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type unitJSON struct {
	Date      string `json:"date"`
	Total     int    `json:"total"`
	Held      int    `json:"held"`
	Remaining int    `json:"remaining"`
}

func toUnitsJSON(units []model.InventoryUnit) []unitJSON {
	out := make([]unitJSON, 0, len(units))
	for _, u := range units {
		out = append(out, unitJSON{Date: model.FormatDate(u.Date), Total: u.TotalCapacity, Held: u.HeldCapacity, Remaining: u.Remaining()})
	}
	return out
}

var errMissingEnd = errors.New("end date is required for hotel stays")

// parseRange reads start/end strings.  A trip may omit end, which then
// covers just the departure date.
func parseRange(kind model.ResourceKind, start, end string) (model.DateRange, error) {
	s, err := model.ParseDate(start)
	if err != nil {
		return model.DateRange{}, err
	}
	if end == "" {
		if kind == model.KindTrip {
			return model.SingleDay(s), nil
		}
		return model.DateRange{}, errMissingEnd
	}
	e, err := model.ParseDate(end)
	if err != nil {
		return model.DateRange{}, err
	}
	return model.NewRange(s, e)
}
