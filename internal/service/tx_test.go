package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/metrics"
	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/repository/memory"
	"github.com/iliyamo/tourism-booking/internal/repository/storetest"
	"github.com/iliyamo/tourism-booking/internal/service"
)

// brokenWrites fails booking writes on demand, after the holds were taken
// in the same transaction.
type brokenWrites struct {
	*memory.Store
	failCreate bool
	failUpdate bool
}

func (s *brokenWrites) CreateBooking(ctx context.Context, b model.Booking) (int64, error) {
	if s.failCreate {
		return 0, errors.New("insert booking: disk full")
	}
	return s.Store.CreateBooking(ctx, b)
}

func (s *brokenWrites) UpdateBookingStatus(ctx context.Context, b model.Booking) error {
	if s.failUpdate {
		return errors.New("update booking: disk full")
	}
	return s.Store.UpdateBookingStatus(ctx, b)
}

func newMeteredService(t *testing.T) (*service.BookingService, *brokenWrites, *metrics.Metrics) {
	t.Helper()
	store := &brokenWrites{Store: memory.New()}
	m := metrics.New(prometheus.NewRegistry())
	svc := service.NewBookingService(store, clock.NewManual(now), service.WithMetrics(m), service.WithRetry(0, 0))
	return svc, store, m
}

func TestReserveMetricFollowsOuterTransaction(t *testing.T) {
	svc, store, m := newMeteredService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 3)

	store.failCreate = true
	if _, err := svc.CreateBooking(ctx, tripInput(id, 1)); err == nil {
		t.Fatal("expected create to fail")
	}
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 0 {
		t.Fatalf("held = %d after rolled back booking, want 0", held)
	}
	if got := testutil.ToFloat64(m.ReservationsTotal.WithLabelValues("trip", "ok")); got != 0 {
		t.Fatalf("ok reservations = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ReservationsTotal.WithLabelValues("trip", "rolled_back")); got != 1 {
		t.Fatalf("rolled back reservations = %v, want 1", got)
	}

	store.failCreate = false
	if _, err := svc.CreateBooking(ctx, tripInput(id, 1)); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := testutil.ToFloat64(m.ReservationsTotal.WithLabelValues("trip", "ok")); got != 1 {
		t.Fatalf("ok reservations = %v, want 1", got)
	}

	if _, err := svc.CreateBooking(ctx, tripInput(id, 5)); err == nil {
		t.Fatal("expected insufficient capacity")
	}
	if got := testutil.ToFloat64(m.ReservationsTotal.WithLabelValues("trip", "insufficient_capacity")); got != 1 {
		t.Fatalf("insufficient_capacity reservations = %v, want 1", got)
	}
}

func TestReleaseMetricFollowsOuterTransaction(t *testing.T) {
	svc, store, m := newMeteredService(t)
	ctx := context.Background()
	id := storetest.NewResourceID("trip")
	storetest.Provision(t, store, model.KindTrip, id, model.SingleDay(d1), 3)

	created, err := svc.CreateBooking(ctx, tripInput(id, 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	store.failUpdate = true
	if _, err := svc.CancelBooking(ctx, created.Booking.ID); err == nil {
		t.Fatal("expected cancel to fail")
	}
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 1 {
		t.Fatalf("held = %d after failed cancel, want 1", held)
	}
	if got := testutil.ToFloat64(m.ReleasesTotal.WithLabelValues("released")); got != 0 {
		t.Fatalf("released = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.ReleasesTotal.WithLabelValues("rolled_back")); got != 1 {
		t.Fatalf("rolled back releases = %v, want 1", got)
	}

	store.failUpdate = false
	if _, err := svc.CancelBooking(ctx, created.Booking.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := testutil.ToFloat64(m.ReleasesTotal.WithLabelValues("released")); got != 1 {
		t.Fatalf("released = %v, want 1", got)
	}
	if held := storetest.Held(t, store, model.KindTrip, id, d1); held != 0 {
		t.Fatalf("held = %d after cancel, want 0", held)
	}
}
