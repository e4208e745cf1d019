package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/idempotency"
	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/repository/memory"
	"github.com/iliyamo/tourism-booking/internal/repository/storetest"
	"github.com/iliyamo/tourism-booking/internal/service"
)

var (
	now = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	d1  = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	d2  = d1.AddDate(0, 0, 1)
	d3  = d1.AddDate(0, 0, 2)
	d4  = d1.AddDate(0, 0, 3)
)

type recorder struct {
	mu     sync.Mutex
	events []model.BookingEvent
	err    error
}

func (r *recorder) Notify(_ context.Context, ev model.BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) types() []model.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func newService(t *testing.T, opts ...service.Option) (*service.BookingService, *memory.Store) {
	t.Helper()
	store := memory.New()
	return service.NewBookingService(store, clock.NewManual(now), opts...), store
}

func tripInput(id string, qty int) service.CreateBookingInput {
	return service.CreateBookingInput{
		UserID:     7,
		Kind:       model.KindTrip,
		ResourceID: id,
		Range:      model.SingleDay(d1),
		Quantity:   qty,
		Guest:      model.Guest{Name: "Ana Silva", Email: "ana@example.com"},
	}
}

func hotelInput(id string, r model.DateRange) service.CreateBookingInput {
	return service.CreateBookingInput{
		UserID:     7,
		Kind:       model.KindHotel,
		ResourceID: id,
		Range:      r,
		Quantity:   1,
		Guest:      model.Guest{Name: "Ana Silva", Email: "ana@example.com"},
	}
}

func expectKind(t *testing.T, err error, k apperr.Kind) {
	t.Helper()
	if !apperr.Is(err, k) {
		t.Fatalf("expected %v error, got %v", k, err)
	}
}

func TestCapacityTwoScenario(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 2)

	first, err := svc.CreateBooking(ctx, tripInput(id, 1))
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, err := svc.CreateBooking(ctx, tripInput(id, 1)); err != nil {
		t.Fatalf("second booking: %v", err)
	}
	_, err = svc.CreateBooking(ctx, tripInput(id, 1))
	expectKind(t, err, apperr.InsufficientCapacity)
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 2 {
		t.Fatalf("held = %d after rejected booking, want 2", held)
	}

	cancelled, err := svc.CancelBooking(ctx, first.Booking.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != model.BookingCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancelled booking = %+v", cancelled)
	}
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 1 {
		t.Fatalf("held = %d after cancel, want 1", held)
	}

	if _, err := svc.CreateBooking(ctx, tripInput(id, 1)); err != nil {
		t.Fatalf("booking after cancel: %v", err)
	}
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 2 {
		t.Fatalf("held = %d, want 2", held)
	}
}

func TestConcurrentBookingsNeverOverbook(t *testing.T) {
	svc, store := newService(t)
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 5)

	const workers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateBooking(context.Background(), tripInput(id, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case apperr.Is(err, apperr.InsufficientCapacity):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 5 || full != workers-5 {
		t.Fatalf("ok=%d full=%d, want 5 and %d", ok, full, workers-5)
	}
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 5 {
		t.Fatalf("held = %d, want 5", held)
	}
}

func TestStayIsAllOrNothing(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("hotel")
	stay := model.DateRange{Start: d1, End: d4}
	storetest.Provision(t, store, model.KindHotel, id, stay, 1)

	// Fill the middle night.
	if _, err := svc.CreateBooking(ctx, hotelInput(id, model.SingleDay(d2))); err != nil {
		t.Fatalf("middle night: %v", err)
	}

	_, err := svc.CreateBooking(ctx, hotelInput(id, stay))
	expectKind(t, err, apperr.InsufficientCapacity)
	for _, d := range []time.Time{d1, d3} {
		if held := storetest.Held(t, store, model.KindHotel, id, d); held != 0 {
			t.Fatalf("%s held = %d after failed stay, want 0", model.FormatDate(d), held)
		}
	}
	list, err := svc.ListUserBookings(ctx, 7, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("failed stay left a booking behind: %d bookings", len(list))
	}
}

func TestHotelPriceAndNotProvisioned(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("hotel")
	storetest.Provision(t, store, model.KindHotel, id, model.DateRange{Start: d1, End: d3}, 3)

	in := hotelInput(id, model.DateRange{Start: d1, End: d3})
	in.Quantity = 2
	res, err := svc.CreateBooking(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Booking.TotalPriceCents != 10000*2*2 || res.Booking.Status != model.BookingPending {
		t.Fatalf("booking = %+v", res.Booking)
	}

	// d3 has no ledger row.
	_, err = svc.CreateBooking(ctx, hotelInput(id, model.DateRange{Start: d2, End: d4}))
	expectKind(t, err, apperr.NotProvisioned)
	if held := storetest.Held(t, store, model.KindHotel, id, d2); held != 2 {
		t.Fatalf("held = %d, want 2", held)
	}

	_, err = svc.CreateBooking(ctx, tripInput("nowhere", 1))
	expectKind(t, err, apperr.NotProvisioned)
}

func TestInactiveResourceIsNotBookable(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 4)
	r, _ := store.GetResource(ctx, model.KindTrip, id)
	r.Status = model.ResourceInactive
	if err := store.UpsertResource(ctx, r); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	_, err := svc.CreateBooking(ctx, tripInput(id, 1))
	expectKind(t, err, apperr.NotProvisioned)
	_, err = svc.CheckAvailability(ctx, model.KindTrip, id, model.SingleDay(d1))
	expectKind(t, err, apperr.NotProvisioned)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t, service.WithLimits(3, 4))
	base := tripInput("trip-x", 1)
	cases := map[string]func(*service.CreateBookingInput){
		"no user":         func(in *service.CreateBookingInput) { in.UserID = 0 },
		"no resource":     func(in *service.CreateBookingInput) { in.ResourceID = " " },
		"zero quantity":   func(in *service.CreateBookingInput) { in.Quantity = 0 },
		"quantity cap":    func(in *service.CreateBookingInput) { in.Quantity = 5 },
		"multi-day trip":  func(in *service.CreateBookingInput) { in.Range = model.DateRange{Start: d1, End: d3} },
		"stay too long":   func(in *service.CreateBookingInput) { *in = hotelInput(in.ResourceID, model.DateRange{Start: d1, End: d1.AddDate(0, 0, 4)}) },
		"unknown kind":    func(in *service.CreateBookingInput) { in.Kind = "cruise" },
		"no guest name":   func(in *service.CreateBookingInput) { in.Guest.Name = "" },
		"bad guest email": func(in *service.CreateBookingInput) { in.Guest.Email = "not-an-email" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			_, err := svc.CreateBooking(context.Background(), in)
			expectKind(t, err, apperr.Invalid)
		})
	}
}

func TestStateMachine(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 3)

	a, _ := svc.CreateBooking(ctx, tripInput(id, 1))
	b, _ := svc.CreateBooking(ctx, tripInput(id, 1))

	confirmed, err := svc.ConfirmBooking(ctx, a.Booking.ID)
	if err != nil || confirmed.Status != model.BookingConfirmed || confirmed.ConfirmedAt == nil {
		t.Fatalf("confirm: %+v %v", confirmed, err)
	}
	_, err = svc.ConfirmBooking(ctx, a.Booking.ID)
	expectKind(t, err, apperr.InvalidTransition)

	completed, err := svc.CompleteBooking(ctx, a.Booking.ID)
	if err != nil || completed.Status != model.BookingCompleted {
		t.Fatalf("complete: %+v %v", completed, err)
	}
	// Completion keeps the capacity consumed.
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 2 {
		t.Fatalf("held = %d after complete, want 2", held)
	}
	_, err = svc.CancelBooking(ctx, a.Booking.ID)
	expectKind(t, err, apperr.InvalidTransition)
	if !strings.Contains(err.Error(), "already COMPLETED") {
		t.Fatalf("cancel of completed booking: %v", err)
	}
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 2 {
		t.Fatalf("illegal cancel changed the ledger: held = %d", held)
	}

	if _, err := svc.CancelBooking(ctx, b.Booking.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	again, err := svc.CancelBooking(ctx, b.Booking.ID)
	if err != nil || again.Status != model.BookingCancelled {
		t.Fatalf("repeat cancel: %+v %v", again, err)
	}
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 1 {
		t.Fatalf("repeat cancel released twice: held = %d", held)
	}
	_, err = svc.ConfirmBooking(ctx, b.Booking.ID)
	expectKind(t, err, apperr.InvalidTransition)
	_, err = svc.CompleteBooking(ctx, b.Booking.ID)
	expectKind(t, err, apperr.InvalidTransition)

	_, err = svc.ConfirmBooking(ctx, 9999)
	expectKind(t, err, apperr.NotFound)
}

func TestCanTransition(t *testing.T) {
	legal := [][2]model.BookingStatus{
		{model.BookingPending, model.BookingConfirmed},
		{model.BookingPending, model.BookingCompleted},
		{model.BookingPending, model.BookingCancelled},
		{model.BookingConfirmed, model.BookingCompleted},
		{model.BookingConfirmed, model.BookingCancelled},
	}
	all := []model.BookingStatus{model.BookingPending, model.BookingConfirmed, model.BookingCompleted, model.BookingCancelled}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, l := range legal {
				if l[0] == from && l[1] == to {
					want = true
				}
			}
			if got := service.CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("hotel")
	stay := model.DateRange{Start: d1, End: d3}
	storetest.Provision(t, store, model.KindHotel, id, stay, 2)

	coord := svc.Coordinator()
	h, err := coord.Reserve(ctx, service.ReserveRequest{Kind: model.KindHotel, ResourceID: id, Range: stay, Quantity: 2})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if len(h.Units) != 2 || !h.Units[0].Date.Equal(d1) || !h.Units[1].Date.Equal(d2) {
		t.Fatalf("handle units = %+v", h.Units)
	}
	for i := 0; i < 3; i++ {
		if err := coord.Release(ctx, h.ID); err != nil {
			t.Fatalf("release #%d: %v", i+1, err)
		}
	}
	for _, d := range stay.Days() {
		if held := storetest.Held(t, store, model.KindHotel, id, d); held != 0 {
			t.Fatalf("%s held = %d, want 0", model.FormatDate(d), held)
		}
	}
}

func TestReleaseFailureLeavesBookingActive(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 2)

	res, err := svc.CreateBooking(ctx, tripInput(id, 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h, err := store.GetHandleForUpdate(ctx, res.Booking.HandleID)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	// Drain the unit behind the handle's back.
	if err := store.DecrementHeld(ctx, h.Units[0].UnitID, 1); err != nil {
		t.Fatalf("drain: %v", err)
	}

	_, err = svc.CancelBooking(ctx, res.Booking.ID)
	expectKind(t, err, apperr.ReleaseFailure)
	b, err := svc.GetBooking(ctx, res.Booking.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if b.Status != model.BookingPending {
		t.Fatalf("status = %s after failed release, want PENDING", b.Status)
	}
	h, _ = store.GetHandleForUpdate(ctx, res.Booking.HandleID)
	if h.Released() {
		t.Fatal("handle marked released after failed release")
	}
}

func TestAvailability(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("hotel")
	stay := model.DateRange{Start: d1, End: d4}
	storetest.Provision(t, store, model.KindHotel, id, stay, 2)
	in := hotelInput(id, model.SingleDay(d2))
	in.Quantity = 2
	if _, err := svc.CreateBooking(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	av, err := svc.CheckAvailability(ctx, model.KindHotel, id, stay)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if av.Available || av.RemainingUnits != 0 || len(av.Dates) != 3 {
		t.Fatalf("availability = %+v", av)
	}
	if av.Dates[0].Remaining != 2 || av.Dates[1].Remaining != 0 {
		t.Fatalf("per-date = %+v", av.Dates)
	}

	av, err = svc.CheckAvailability(ctx, model.KindHotel, id, model.SingleDay(d3))
	if err != nil || !av.Available || av.RemainingUnits != 2 {
		t.Fatalf("single night: %+v %v", av, err)
	}

	_, err = svc.CheckAvailability(ctx, model.KindHotel, id, model.DateRange{Start: d3, End: d4.AddDate(0, 0, 1)})
	expectKind(t, err, apperr.NotProvisioned)
}

func TestAvailabilityWindowIsCapped(t *testing.T) {
	svc, store := newService(t, service.WithAvailabilityWindow(31))
	ctx := context.Background()
	id := storetest.NewResourceID("hotel")
	storetest.Provision(t, store, model.KindHotel, id, model.DateRange{Start: d1, End: d1.AddDate(0, 0, 31)}, 1)

	if _, err := svc.CheckAvailability(ctx, model.KindHotel, id, model.DateRange{Start: d1, End: d1.AddDate(0, 0, 31)}); err != nil {
		t.Fatalf("31 days: %v", err)
	}
	_, err := svc.CheckAvailability(ctx, model.KindHotel, id, model.DateRange{Start: d1, End: d1.AddDate(0, 0, 32)})
	expectKind(t, err, apperr.Invalid)

	// The default window still rejects centuries-long ranges before touching the store.
	svc, _ = newService(t)
	_, err = svc.CheckAvailability(ctx, model.KindHotel, id, model.DateRange{Start: d1, End: time.Date(2400, 1, 1, 0, 0, 0, 0, time.UTC)})
	expectKind(t, err, apperr.Invalid)
}

type conflictingStore struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
}

func (s *conflictingStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	fail := s.conflicts > 0
	if fail {
		s.conflicts--
	}
	s.mu.Unlock()
	if fail {
		return apperr.New(apperr.TransactionConflict, "lock wait timeout exceeded")
	}
	return s.Store.WithTx(ctx, fn)
}

func TestRetriesTransactionConflict(t *testing.T) {
	store := &conflictingStore{Store: memory.New(), conflicts: 2}
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 1)
	svc := service.NewBookingService(store, clock.NewManual(now), service.WithRetry(3, time.Millisecond))

	if _, err := svc.CreateBooking(context.Background(), tripInput(id, 1)); err != nil {
		t.Fatalf("create after conflicts: %v", err)
	}
	if store.conflicts != 0 {
		t.Fatalf("%d conflicts left unconsumed", store.conflicts)
	}

	store.conflicts = 10
	_, err := service.NewBookingService(store, clock.NewManual(now), service.WithRetry(1, time.Millisecond)).
		CreateBooking(context.Background(), tripInput(id, 1))
	expectKind(t, err, apperr.TransactionConflict)
	if !apperr.KindOf(err).Retryable() {
		t.Fatal("transaction conflicts must be retryable")
	}
}

func TestNotifications(t *testing.T) {
	rec := &recorder{}
	svc, store := newService(t, service.WithNotifier(rec))
	ctx := context.Background()
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 1)

	res, err := svc.CreateBooking(ctx, tripInput(id, 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = svc.CreateBooking(ctx, tripInput(id, 1)) // full, no event
	_, _ = svc.ConfirmBooking(ctx, res.Booking.ID)
	_, _ = svc.CancelBooking(ctx, res.Booking.ID)
	_, _ = svc.CancelBooking(ctx, res.Booking.ID) // no-op, no event

	want := []model.EventType{model.EventBookingCreated, model.EventBookingConfirmed, model.EventBookingCancelled}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if rec.events[0].ResourceName != "Test "+id || !rec.events[0].OccurredAt.Equal(now) {
		t.Fatalf("event = %+v", rec.events[0])
	}
}

func TestNotifierFailureDoesNotFailBooking(t *testing.T) {
	rec := &recorder{err: errors.New("broker down")}
	svc, store := newService(t, service.WithNotifier(rec), service.WithLogger(zap.NewNop()))
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 1)

	res, err := svc.CreateBooking(context.Background(), tripInput(id, 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if res.Booking.ID == 0 || len(rec.types()) != 1 {
		t.Fatalf("booking %+v, events %v", res.Booking, rec.types())
	}
}

func TestIdempotencyKeyReplaysBooking(t *testing.T) {
	clk := clock.NewManual(now)
	idem := idempotency.NewMemoryStore(clk, time.Hour)
	svc, store := newService(t, service.WithIdempotency(idem))
	ctx := context.Background()
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 3)

	in := tripInput(id, 1)
	in.IdempotencyKey = "req-1"
	first, err := svc.CreateBooking(ctx, in)
	if err != nil || first.Replayed {
		t.Fatalf("first: %+v %v", first, err)
	}
	second, err := svc.CreateBooking(ctx, in)
	if err != nil || !second.Replayed || second.Booking.ID != first.Booking.ID {
		t.Fatalf("replay: %+v %v", second, err)
	}
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 1 {
		t.Fatalf("replay reserved again: held = %d", held)
	}

	// The key is scoped to the user.
	other := in
	other.UserID = 8
	third, err := svc.CreateBooking(ctx, other)
	if err != nil || third.Replayed {
		t.Fatalf("other user: %+v %v", third, err)
	}

	// A failed attempt frees the key for a retry.
	big := in
	big.IdempotencyKey = "req-2"
	big.Quantity = 5
	_, err = svc.CreateBooking(ctx, big)
	expectKind(t, err, apperr.InsufficientCapacity)
	big.Quantity = 1
	if res, err := svc.CreateBooking(ctx, big); err != nil || res.Replayed {
		t.Fatalf("retry after failure: %+v %v", res, err)
	}
}

func TestPrice(t *testing.T) {
	stay := model.DateRange{Start: d1, End: d4}
	if got := service.Price(model.KindHotel, 12000, stay, 2); got != 12000*3*2 {
		t.Fatalf("hotel price = %d", got)
	}
	if got := service.Price(model.KindTrip, 4500, model.SingleDay(d1), 3); got != 4500*3 {
		t.Fatalf("trip price = %d", got)
	}
}

func TestListUserBookingsPages(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 10)
	for i := 0; i < 3; i++ {
		if _, err := svc.CreateBooking(ctx, tripInput(id, 1)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	page, err := svc.ListUserBookings(ctx, 7, 2, 0)
	if err != nil || len(page) != 2 {
		t.Fatalf("page 1: %d %v", len(page), err)
	}
	page, err = svc.ListUserBookings(ctx, 7, 2, 2)
	if err != nil || len(page) != 1 {
		t.Fatalf("page 2: %d %v", len(page), err)
	}
	page, _ = svc.ListUserBookings(ctx, 99, 0, -1)
	if len(page) != 0 {
		t.Fatalf("other user sees %d bookings", len(page))
	}
}
