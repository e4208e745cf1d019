package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/metrics"
	"github.com/iliyamo/tourism-booking/internal/model"
)

// ReserveRequest asks for Quantity units on every date of Range.
type ReserveRequest struct {
	Kind       model.ResourceKind
	ResourceID string
	Range      model.DateRange
	Quantity   int
}

// Coordinator turns free capacity into holds.  Every date of a request is
// incremented with a conditional update inside one transaction, in ascending
// date order, so concurrent requests over overlapping ranges take row locks
// in the same order and a failure on any date undoes the earlier ones.
type Coordinator struct {
	store   Store
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewCoordinator(store Store, clk clock.Clock, m *metrics.Metrics, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: store, clock: clk, metrics: m, log: log}
}

// Reserve holds req.Quantity units on every date of req.Range.  It either
// holds all of them and returns the handle, or holds none and returns
// apperr.InsufficientCapacity, apperr.NotProvisioned or
// apperr.TransactionConflict.  When ctx already carries a transaction the
// holds join it.
func (c *Coordinator) Reserve(ctx context.Context, req ReserveRequest) (model.ReservationHandle, error) {
	if req.Quantity <= 0 {
		return model.ReservationHandle{}, apperr.New(apperr.Invalid, "quantity must be positive")
	}
	days := req.Range.Days()
	if len(days) == 0 {
		return model.ReservationHandle{}, apperr.New(apperr.Invalid, "date range is empty")
	}

	start := time.Now()
	var handle model.ReservationHandle
	err := runTx(ctx, c.store, func(txCtx context.Context) error {
		h := model.ReservationHandle{
			ID:         uuid.New(),
			Kind:       req.Kind,
			ResourceID: req.ResourceID,
			Quantity:   req.Quantity,
			Units:      make([]model.HeldUnit, 0, len(days)),
			CreatedAt:  c.clock.Now(),
		}
		for _, d := range days {
			unitID, err := c.store.IncrementHeld(txCtx, req.Kind, req.ResourceID, d, req.Quantity)
			if err != nil {
				return err
			}
			h.Units = append(h.Units, model.HeldUnit{UnitID: unitID, Date: d})
		}
		if err := c.store.CreateHandle(txCtx, h); err != nil {
			return err
		}
		handle = h
		return nil
	})
	elapsed := time.Since(start)
	afterTx(ctx, func(outerErr error) {
		c.metrics.ObserveReserve(string(req.Kind), settled(err, outerErr, "ok"), elapsed)
	})
	if err != nil {
		return model.ReservationHandle{}, err
	}
	return handle, nil
}

// Release returns the holds of handle id to the ledger.  The handle row is
// locked and marked released in the same transaction as the decrements, so
// a second call finds it released and does nothing.  A decrement that would
// drive held capacity negative fails the whole release with
// apperr.ReleaseFailure.
func (c *Coordinator) Release(ctx context.Context, id uuid.UUID) error {
	released := false
	err := runTx(ctx, c.store, func(txCtx context.Context) error {
		h, err := c.store.GetHandleForUpdate(txCtx, id)
		if err != nil {
			return err
		}
		if h.Released() {
			return nil
		}
		for _, u := range h.Units {
			if err := c.store.DecrementHeld(txCtx, u.UnitID, h.Quantity); err != nil {
				if apperr.Is(err, apperr.TransactionConflict) {
					return err
				}
				return apperr.Wrap(apperr.ReleaseFailure, err,
					"release handle %s on %s", id, model.FormatDate(u.Date))
			}
		}
		if err := c.store.MarkHandleReleased(txCtx, id, c.clock.Now()); err != nil {
			return err
		}
		released = true
		return nil
	})
	if apperr.Is(err, apperr.ReleaseFailure) {
		c.log.Error("release failed", zap.String("handle_id", id.String()), zap.Error(err))
	}
	afterTx(ctx, func(outerErr error) {
		done := "noop"
		if released {
			done = "released"
		}
		c.metrics.ObserveRelease(settled(err, outerErr, done))
	})
	return err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}

// settled labels a step that ran inside a transaction once that transaction
// has ended.  The step's own error wins; a step that succeeded inside a
// transaction that then failed is "rolled_back".
func settled(stepErr, txErr error, ok string) string {
	switch {
	case stepErr != nil:
		return outcome(stepErr)
	case txErr != nil:
		return "rolled_back"
	default:
		return ok
	}
}
