package service

import (
	"context"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

// AvailabilityChecker answers read-only capacity questions.  Its answer is a
// hint for the caller; the authoritative check happens inside Reserve.
type AvailabilityChecker struct {
	ledger LedgerRepository
}

func NewAvailabilityChecker(ledger LedgerRepository) *AvailabilityChecker {
	return &AvailabilityChecker{ledger: ledger}
}

// Check reports free capacity for every date of r.  All dates come from one
// read of the ledger.  A date without a ledger row yields
// apperr.NotProvisioned rather than available=false.
func (c *AvailabilityChecker) Check(ctx context.Context, kind model.ResourceKind, id string, r model.DateRange) (model.Availability, error) {
	days := r.Days()
	if len(days) == 0 {
		return model.Availability{}, apperr.New(apperr.Invalid, "date range is empty")
	}
	units, err := c.ledger.ListUnits(ctx, kind, id, r)
	if err != nil {
		return model.Availability{}, err
	}

	byDate := make(map[string]model.InventoryUnit, len(units))
	for _, u := range units {
		byDate[model.FormatDate(u.Date)] = u
	}

	out := model.Availability{
		Kind:       kind,
		ResourceID: id,
		Available:  true,
		Dates:      make([]model.DateAvailability, 0, len(days)),
	}
	for i, d := range days {
		u, ok := byDate[model.FormatDate(d)]
		if !ok {
			return model.Availability{}, apperr.New(apperr.NotProvisioned,
				"%s %s has no inventory on %s", kind, id, model.FormatDate(d))
		}
		rem := u.Remaining()
		if rem <= 0 {
			out.Available = false
		}
		if i == 0 || rem < out.RemainingUnits {
			out.RemainingUnits = rem
		}
		out.Dates = append(out.Dates, model.DateAvailability{Date: d, Total: u.TotalCapacity, Remaining: rem})
	}
	return out, nil
}
