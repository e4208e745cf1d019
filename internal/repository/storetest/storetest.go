// Package storetest holds the behaviour every booking store must share.
// Each store package runs Run against its own implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/service"
)

var day0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// Run exercises s.  Every subtest works on its own resource ids, so a store
// may be shared between subtests.
func Run(t *testing.T, s service.Store) {
	t.Helper()

	t.Run("resource upsert and lookup", func(t *testing.T) { testResources(t, s) })
	t.Run("increment respects capacity", func(t *testing.T) { testIncrement(t, s) })
	t.Run("decrement never goes negative", func(t *testing.T) { testDecrement(t, s) })
	t.Run("failed transaction rolls back", func(t *testing.T) { testRollback(t, s) })
	t.Run("concurrent increments never overbook", func(t *testing.T) { testConcurrentIncrement(t, s) })
	t.Run("capacity can be raised and lowered", func(t *testing.T) { testSaveCapacity(t, s) })
	t.Run("handles", func(t *testing.T) { testHandles(t, s) })
	t.Run("bookings", func(t *testing.T) { testBookings(t, s) })
}

// NewResourceID returns an id no other test uses.
func NewResourceID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// Provision creates an active resource with the given capacity on each date
// of r.
func Provision(t *testing.T, s service.Store, kind model.ResourceKind, id string, r model.DateRange, total int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	if err := s.UpsertResource(ctx, model.Resource{
		Kind: kind, ID: id, Name: "Test " + id, BasePriceCents: 10000,
		Status: model.ResourceActive, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("upsert resource: %v", err)
	}
	for _, d := range r.Days() {
		if err := s.SaveUnitCapacity(ctx, kind, id, d, total); err != nil {
			t.Fatalf("save capacity %s: %v", model.FormatDate(d), err)
		}
	}
}

// Held returns the held capacity of a unit.
func Held(t *testing.T, s service.Store, kind model.ResourceKind, id string, d time.Time) int {
	t.Helper()
	units, err := s.ListUnits(context.Background(), kind, id, model.SingleDay(d))
	if err != nil {
		t.Fatalf("list units: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected one unit on %s, got %d", model.FormatDate(d), len(units))
	}
	return units[0].HeldCapacity
}

func expectKind(t *testing.T, err error, k apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, k) {
		t.Fatalf("expected %v error, got %v", k, err)
	}
}

func testResources(t *testing.T, s service.Store) {
	ctx := context.Background()
	id := NewResourceID("hotel")
	now := time.Now().UTC().Truncate(time.Second)

	_, err := s.GetResource(ctx, model.KindHotel, id)
	expectKind(t, err, apperr.NotFound)

	r := model.Resource{Kind: model.KindHotel, ID: id, Name: "Sea View", BasePriceCents: 12000,
		Status: model.ResourceActive, CreatedAt: now, UpdatedAt: now}
	if err := s.UpsertResource(ctx, r); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	r.Name = "Sea View Deluxe"
	r.Status = model.ResourceInactive
	if err := s.UpsertResource(ctx, r); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err := s.GetResource(ctx, model.KindHotel, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Sea View Deluxe" || got.Status != model.ResourceInactive || got.BasePriceCents != 12000 {
		t.Fatalf("unexpected resource %+v", got)
	}
	if got.Bookable() {
		t.Fatalf("inactive resource must not be bookable")
	}
}

func testIncrement(t *testing.T, s service.Store) {
	ctx := context.Background()
	id := NewResourceID("trip")
	Provision(t, s, model.KindTrip, id, model.SingleDay(day0), 2)

	if _, err := s.IncrementHeld(ctx, model.KindTrip, id, day0, 2); err != nil {
		t.Fatalf("increment to capacity: %v", err)
	}
	_, err := s.IncrementHeld(ctx, model.KindTrip, id, day0, 1)
	expectKind(t, err, apperr.InsufficientCapacity)

	_, err = s.IncrementHeld(ctx, model.KindTrip, id, day0.AddDate(0, 0, 1), 1)
	expectKind(t, err, apperr.NotProvisioned)

	if got := Held(t, s, model.KindTrip, id, day0); got != 2 {
		t.Fatalf("held = %d, want 2", got)
	}
}

func testDecrement(t *testing.T, s service.Store) {
	ctx := context.Background()
	id := NewResourceID("trip")
	Provision(t, s, model.KindTrip, id, model.SingleDay(day0), 3)

	unitID, err := s.IncrementHeld(ctx, model.KindTrip, id, day0, 1)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	err = s.DecrementHeld(ctx, unitID, 2)
	expectKind(t, err, apperr.ReleaseFailure)
	if err := s.DecrementHeld(ctx, unitID, 1); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if got := Held(t, s, model.KindTrip, id, day0); got != 0 {
		t.Fatalf("held = %d, want 0", got)
	}
}

func testRollback(t *testing.T, s service.Store) {
	ctx := context.Background()
	id := NewResourceID("hotel")
	r, _ := model.NewRange(day0, day0.AddDate(0, 0, 2))
	Provision(t, s, model.KindHotel, id, r, 1)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.IncrementHeld(txCtx, model.KindHotel, id, day0, 1); err != nil {
			return err
		}
		if _, err := s.IncrementHeld(txCtx, model.KindHotel, id, day0.AddDate(0, 0, 1), 1); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	for _, d := range r.Days() {
		if got := Held(t, s, model.KindHotel, id, d); got != 0 {
			t.Fatalf("held on %s = %d after rollback, want 0", model.FormatDate(d), got)
		}
	}
}

func testConcurrentIncrement(t *testing.T, s service.Store) {
	ctx := context.Background()
	id := NewResourceID("trip")
	const capacity, workers = 3, 12
	Provision(t, s, model.KindTrip, id, model.SingleDay(day0), capacity)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.WithTx(ctx, func(txCtx context.Context) error {
				_, err := s.IncrementHeld(txCtx, model.KindTrip, id, day0, 1)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			failures = append(failures, err)
		}()
	}
	close(start)
	wg.Wait()

	if succeeded != capacity {
		t.Fatalf("succeeded = %d, want %d", succeeded, capacity)
	}
	for _, err := range failures {
		if !apperr.Is(err, apperr.InsufficientCapacity) {
			t.Fatalf("unexpected failure %v", err)
		}
	}
	if got := Held(t, s, model.KindTrip, id, day0); got != capacity {
		t.Fatalf("held = %d, want %d", got, capacity)
	}
}

func testSaveCapacity(t *testing.T, s service.Store) {
	ctx := context.Background()
	id := NewResourceID("trip")
	Provision(t, s, model.KindTrip, id, model.SingleDay(day0), 1)

	if err := s.SaveUnitCapacity(ctx, model.KindTrip, id, day0, 4); err != nil {
		t.Fatalf("raise capacity: %v", err)
	}
	if _, err := s.IncrementHeld(ctx, model.KindTrip, id, day0, 3); err != nil {
		t.Fatalf("increment: %v", err)
	}
	u, err := s.GetUnitForUpdate(ctx, model.KindTrip, id, day0)
	if err != nil {
		t.Fatalf("get unit: %v", err)
	}
	if u.TotalCapacity != 4 || u.HeldCapacity != 3 || u.Remaining() != 1 {
		t.Fatalf("unexpected unit %+v", u)
	}
	_, err = s.GetUnitForUpdate(ctx, model.KindTrip, id, day0.AddDate(0, 0, 7))
	expectKind(t, err, apperr.NotProvisioned)
}

func testHandles(t *testing.T, s service.Store) {
	ctx := context.Background()
	id := NewResourceID("hotel")
	r, _ := model.NewRange(day0, day0.AddDate(0, 0, 2))
	Provision(t, s, model.KindHotel, id, r, 5)

	h := model.ReservationHandle{ID: uuid.New(), Kind: model.KindHotel, ResourceID: id, Quantity: 2,
		CreatedAt: time.Now().UTC().Truncate(time.Second)}
	for _, d := range r.Days() {
		unitID, err := s.IncrementHeld(ctx, model.KindHotel, id, d, 2)
		if err != nil {
			t.Fatalf("increment: %v", err)
		}
		h.Units = append(h.Units, model.HeldUnit{UnitID: unitID, Date: d})
	}
	if err := s.CreateHandle(ctx, h); err != nil {
		t.Fatalf("create handle: %v", err)
	}

	got, err := s.GetHandleForUpdate(ctx, h.ID)
	if err != nil {
		t.Fatalf("get handle: %v", err)
	}
	if got.Released() || got.Quantity != 2 || len(got.Units) != 2 {
		t.Fatalf("unexpected handle %+v", got)
	}
	if !got.Units[0].Date.Before(got.Units[1].Date) {
		t.Fatalf("handle units must be ascending by date: %+v", got.Units)
	}

	at := time.Now().UTC().Truncate(time.Second)
	if err := s.MarkHandleReleased(ctx, h.ID, at); err != nil {
		t.Fatalf("mark released: %v", err)
	}
	got, err = s.GetHandleForUpdate(ctx, h.ID)
	if err != nil {
		t.Fatalf("get handle: %v", err)
	}
	if !got.Released() {
		t.Fatalf("expected handle to be released")
	}

	_, err = s.GetHandleForUpdate(ctx, uuid.New())
	expectKind(t, err, apperr.NotFound)
}

func testBookings(t *testing.T, s service.Store) {
	ctx := context.Background()
	id := NewResourceID("trip")
	Provision(t, s, model.KindTrip, id, model.SingleDay(day0), 5)
	userID := time.Now().UnixNano() % 1_000_000_000

	created := time.Now().UTC().Truncate(time.Second)
	var ids []int64
	for i := 0; i < 3; i++ {
		h := model.ReservationHandle{ID: uuid.New(), Kind: model.KindTrip, ResourceID: id, Quantity: 1, CreatedAt: created}
		if err := s.CreateHandle(ctx, h); err != nil {
			t.Fatalf("create handle: %v", err)
		}
		b := model.Booking{
			UserID: userID, Kind: model.KindTrip, ResourceID: id, Range: model.SingleDay(day0),
			Quantity: 1, Status: model.BookingPending, BasePriceCents: 10000, TotalPriceCents: 10000,
			HandleID: h.ID, Guest: model.Guest{Name: "Ada", Email: "ada@example.com"},
			CreatedAt: created.Add(time.Duration(i) * time.Second), UpdatedAt: created,
		}
		bid, err := s.CreateBooking(ctx, b)
		if err != nil {
			t.Fatalf("create booking: %v", err)
		}
		if bid == 0 {
			t.Fatalf("expected generated booking id")
		}
		ids = append(ids, bid)
	}

	b, err := s.GetBookingForUpdate(ctx, ids[0])
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if b.Status != model.BookingPending || b.Range.Nights() != 1 || b.Guest.Email != "ada@example.com" {
		t.Fatalf("unexpected booking %+v", b)
	}

	now := time.Now().UTC().Truncate(time.Second)
	b.Status = model.BookingConfirmed
	b.ConfirmedAt = &now
	b.UpdatedAt = now
	if err := s.UpdateBookingStatus(ctx, b); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err := s.GetBooking(ctx, ids[0])
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if got.Status != model.BookingConfirmed || got.ConfirmedAt == nil {
		t.Fatalf("status not persisted: %+v", got)
	}

	page, err := s.ListBookingsByUser(ctx, userID, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[1] {
		t.Fatalf("expected newest first, got %+v", page)
	}
	rest, err := s.ListBookingsByUser(ctx, userID, 2, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rest) != 1 || rest[0].ID != ids[0] {
		t.Fatalf("unexpected second page %+v", rest)
	}

	_, err = s.GetBooking(ctx, -1)
	expectKind(t, err, apperr.NotFound)
}
