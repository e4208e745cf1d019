package service_test

import (
	"context"
	"testing"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/repository/memory"
	"github.com/iliyamo/tourism-booking/internal/repository/storetest"
	"github.com/iliyamo/tourism-booking/internal/service"
)

func TestInventoryService(t *testing.T) {
	store := memory.New()
	inv := service.NewInventoryService(store, clock.NewManual(now), nil)
	svc := service.NewBookingService(store, clock.NewManual(now))
	ctx := context.Background()
	id := storetest.NewResourceID("hotel")

	_, err := inv.ProvisionRange(ctx, model.KindHotel, id, model.DateRange{Start: d1, End: d3}, 2)
	expectKind(t, err, apperr.NotFound)

	r, err := inv.UpsertResource(ctx, model.Resource{Kind: model.KindHotel, ID: id, Name: "Harbour Inn", BasePriceCents: 9000})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if r.Status != model.ResourceActive || !r.CreatedAt.Equal(now) {
		t.Fatalf("resource = %+v", r)
	}

	n, err := inv.ProvisionRange(ctx, model.KindHotel, id, model.DateRange{Start: d1, End: d4}, 2)
	if err != nil || n != 3 {
		t.Fatalf("provision range: %d %v", n, err)
	}
	if _, err := svc.CreateBooking(ctx, hotelInput(id, model.SingleDay(d2))); err != nil {
		t.Fatalf("book: %v", err)
	}

	// Lowering below held is rejected and the whole update rolls back.
	_, err = inv.ProvisionCalendar(ctx, model.KindHotel, id, []service.CapacityEntry{
		{Date: d1, Total: 5},
		{Date: d2, Total: 0},
	})
	expectKind(t, err, apperr.Invalid)
	units, err := inv.Calendar(ctx, model.KindHotel, id, model.DateRange{Start: d1, End: d4})
	if err != nil || len(units) != 3 {
		t.Fatalf("calendar: %d %v", len(units), err)
	}
	if units[0].TotalCapacity != 2 {
		t.Fatalf("rolled back entry was written: %+v", units[0])
	}
	if units[1].HeldCapacity != 1 {
		t.Fatalf("held = %d, want 1", units[1].HeldCapacity)
	}

	// Raising keeps holds.
	if _, err := inv.ProvisionCalendar(ctx, model.KindHotel, id, []service.CapacityEntry{{Date: d2, Total: 4}}); err != nil {
		t.Fatalf("raise: %v", err)
	}
	if held := storetest.Held(t, store, model.KindHotel, id, d2); held != 1 {
		t.Fatalf("held = %d after raise", held)
	}

	bad := map[string][]service.CapacityEntry{
		"empty":     nil,
		"negative":  {{Date: d1, Total: -1}},
		"duplicate": {{Date: d1, Total: 1}, {Date: d1, Total: 2}},
	}
	for name, entries := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := inv.ProvisionCalendar(ctx, model.KindHotel, id, entries)
			expectKind(t, err, apperr.Invalid)
		})
	}

	_, err = inv.UpsertResource(ctx, model.Resource{Kind: model.KindTrip, ID: "x", Status: "ARCHIVED"})
	expectKind(t, err, apperr.Invalid)
	_, err = inv.UpsertResource(ctx, model.Resource{Kind: model.KindTrip, ID: "x", BasePriceCents: -1})
	expectKind(t, err, apperr.Invalid)
	_, err = inv.Calendar(ctx, model.KindHotel, id, model.DateRange{Start: d2, End: d2})
	expectKind(t, err, apperr.Invalid)
}
