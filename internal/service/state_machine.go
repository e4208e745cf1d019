package service

import (
	"context"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/metrics"
	"github.com/iliyamo/tourism-booking/internal/model"
)

// transitions is the set of legal booking state changes.
var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.BookingPending:   {model.BookingConfirmed, model.BookingCompleted, model.BookingCancelled},
	model.BookingConfirmed: {model.BookingCompleted, model.BookingCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to model.BookingStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StateMachine applies booking transitions.  Each transition locks the
// booking row, validates the move and writes the new status in one
// transaction.  Cancelling releases the booking's holds in that same
// transaction, so a failed release leaves the booking untouched.
type StateMachine struct {
	store   Store
	coord   *Coordinator
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewStateMachine(store Store, coord *Coordinator, clk clock.Clock, m *metrics.Metrics) *StateMachine {
	return &StateMachine{store: store, coord: coord, clock: clk, metrics: m}
}

// Confirm moves a PENDING booking to CONFIRMED.
func (m *StateMachine) Confirm(ctx context.Context, id int64) (model.Booking, error) {
	b, _, err := m.transition(ctx, id, model.BookingConfirmed, nil)
	return b, err
}

// Complete moves a PENDING or CONFIRMED booking to COMPLETED.  The ledger is
// not touched: the capacity stays consumed.
func (m *StateMachine) Complete(ctx context.Context, id int64) (model.Booking, error) {
	b, _, err := m.transition(ctx, id, model.BookingCompleted, nil)
	return b, err
}

// Cancel moves a PENDING or CONFIRMED booking to CANCELLED and releases its
// holds.  Cancelling an already cancelled booking returns it unchanged with
// changed=false; cancelling a completed one is apperr.InvalidTransition.
func (m *StateMachine) Cancel(ctx context.Context, id int64) (b model.Booking, changed bool, err error) {
	return m.transition(ctx, id, model.BookingCancelled, func(txCtx context.Context, b model.Booking) error {
		return m.coord.Release(txCtx, b.HandleID)
	})
}

func (m *StateMachine) transition(ctx context.Context, id int64, to model.BookingStatus, effect func(context.Context, model.Booking) error) (model.Booking, bool, error) {
	var (
		result  model.Booking
		from    model.BookingStatus
		changed bool
	)
	err := runTx(ctx, m.store, func(txCtx context.Context) error {
		b, err := m.store.GetBookingForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if b.Status == to && to == model.BookingCancelled {
			result = b
			return nil
		}
		if b.Status.Terminal() {
			return apperr.New(apperr.InvalidTransition, "booking %d is already %s", id, b.Status)
		}
		if !CanTransition(b.Status, to) {
			return apperr.New(apperr.InvalidTransition, "booking %d cannot move from %s to %s", id, b.Status, to)
		}
		if effect != nil {
			if err := effect(txCtx, b); err != nil {
				return err
			}
		}

		now := m.clock.Now()
		from = b.Status
		b.Status = to
		b.UpdatedAt = now
		switch to {
		case model.BookingConfirmed:
			b.ConfirmedAt = &now
		case model.BookingCompleted:
			b.CompletedAt = &now
		case model.BookingCancelled:
			b.CancelledAt = &now
		}
		if err := m.store.UpdateBookingStatus(txCtx, b); err != nil {
			return err
		}
		result, changed = b, true
		return nil
	})
	if err != nil {
		return model.Booking{}, false, err
	}
	if changed {
		m.metrics.ObserveTransition(string(from), string(to))
	}
	return result, changed, nil
}
