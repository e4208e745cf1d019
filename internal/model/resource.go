package model

import (
	"fmt"
	"strings"
	"time"
)

// ResourceKind identifies what sort of bookable thing a resource is.  A trip
// is sold per departure date, a hotel per night.
type ResourceKind string

const (
	KindTrip  ResourceKind = "trip"
	KindHotel ResourceKind = "hotel"
)

// ParseResourceKind normalises s and reports whether it names a known kind.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch k := ResourceKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindTrip, KindHotel:
		return k, nil
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// ResourceStatus is the lifecycle flag of a resource.  Inactive resources
// keep their history but cannot take new bookings.
type ResourceStatus string

const (
	ResourceActive   ResourceStatus = "ACTIVE"
	ResourceInactive ResourceStatus = "INACTIVE"
)

// Valid reports whether s is one of the declared statuses.
func (s ResourceStatus) Valid() bool {
	return s == ResourceActive || s == ResourceInactive
}

// Resource is a trip or a hotel that owns an availability calendar.
//
// Fields:
//  Kind           – trip or hotel; part of the primary key.
//  ID             – caller supplied identifier, unique per kind.
//  Name           – display name used in notifications and vouchers.
//  BasePriceCents – price of one unit (one seat, or one room-night).
//  Status         – ACTIVE or INACTIVE.
type Resource struct {
	Kind           ResourceKind   // resources.kind
	ID             string         // resources.id
	Name           string         // resources.name
	BasePriceCents int64          // resources.base_price_cents
	Status         ResourceStatus // resources.status
	CreatedAt      time.Time      // resources.created_at
	UpdatedAt      time.Time      // resources.updated_at
}

// Bookable reports whether new bookings may be taken against the resource.
func (r Resource) Bookable() bool { return r.Status == ResourceActive }
