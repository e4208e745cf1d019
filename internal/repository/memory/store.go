// Package memory is an in-process implementation of the booking store.  It
// serialises transactions behind a single lock acquired with a timeout and
// restores a snapshot when a transaction fails, which gives it the same
// all-or-nothing and bounded-wait behaviour as the SQL stores.
package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

const defaultLockTimeout = 2 * time.Second

type resourceKey struct {
	kind model.ResourceKind
	id   string
}

type unitKey struct {
	kind model.ResourceKind
	id   string
	date string
}

type state struct {
	resources     map[resourceKey]model.Resource
	units         map[unitKey]model.InventoryUnit
	unitsByID     map[int64]unitKey
	handles       map[uuid.UUID]model.ReservationHandle
	bookings      map[int64]model.Booking
	nextUnitID    int64
	nextBookingID int64
}

func newState() *state {
	return &state{
		resources: map[resourceKey]model.Resource{},
		units:     map[unitKey]model.InventoryUnit{},
		unitsByID: map[int64]unitKey{},
		handles:   map[uuid.UUID]model.ReservationHandle{},
		bookings:  map[int64]model.Booking{},
	}
}

// clone copies the maps.  Values are replaced, never mutated in place, so a
// shallow copy of each entry is enough.
func (s *state) clone() *state {
	c := &state{
		resources:     make(map[resourceKey]model.Resource, len(s.resources)),
		units:         make(map[unitKey]model.InventoryUnit, len(s.units)),
		unitsByID:     make(map[int64]unitKey, len(s.unitsByID)),
		handles:       make(map[uuid.UUID]model.ReservationHandle, len(s.handles)),
		bookings:      make(map[int64]model.Booking, len(s.bookings)),
		nextUnitID:    s.nextUnitID,
		nextBookingID: s.nextBookingID,
	}
	for k, v := range s.resources {
		c.resources[k] = v
	}
	for k, v := range s.units {
		c.units[k] = v
	}
	for k, v := range s.unitsByID {
		c.unitsByID[k] = v
	}
	for k, v := range s.handles {
		c.handles[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	return c
}

// Store keeps resources, the ledger, handles and bookings in memory.
type Store struct {
	lock        chan struct{}
	lockTimeout time.Duration
	st          *state
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for the store lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		lock:        make(chan struct{}, 1),
		lockTimeout: defaultLockTimeout,
		st:          newState(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) acquire(ctx context.Context) error {
	t := time.NewTimer(s.lockTimeout)
	defer t.Stop()
	select {
	case s.lock <- struct{}{}:
		return nil
	case <-t.C:
		return apperr.New(apperr.TransactionConflict, "lock wait timeout exceeded after %s", s.lockTimeout)
	case <-ctx.Done():
		return apperr.Wrap(apperr.TransactionConflict, ctx.Err(), "lock wait cancelled")
	}
}

func (s *Store) unlock() { <-s.lock }

// WithTx runs fn holding the store lock.  If fn fails every change it made
// is discarded.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.unlock()

	snapshot := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// run executes a single operation, taking the lock unless ctx is already
// inside a transaction.
func (s *Store) run(ctx context.Context, fn func(st *state) error) error {
	if inTx(ctx) {
		return fn(s.st)
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.unlock()
	return fn(s.st)
}

func (s *Store) GetResource(ctx context.Context, kind model.ResourceKind, id string) (model.Resource, error) {
	var out model.Resource
	err := s.run(ctx, func(st *state) error {
		r, ok := st.resources[resourceKey{kind, id}]
		if !ok {
			return apperr.New(apperr.NotFound, "%s %s not found", kind, id)
		}
		out = r
		return nil
	})
	return out, err
}

func (s *Store) UpsertResource(ctx context.Context, r model.Resource) error {
	return s.run(ctx, func(st *state) error {
		k := resourceKey{r.Kind, r.ID}
		if prev, ok := st.resources[k]; ok {
			r.CreatedAt = prev.CreatedAt
		}
		st.resources[k] = r
		return nil
	})
}

func (s *Store) IncrementHeld(ctx context.Context, kind model.ResourceKind, id string, date time.Time, qty int) (int64, error) {
	var unitID int64
	err := s.run(ctx, func(st *state) error {
		k := unitKey{kind, id, model.FormatDate(date)}
		u, ok := st.units[k]
		if !ok {
			return apperr.New(apperr.NotProvisioned, "%s %s has no inventory on %s", kind, id, k.date)
		}
		if u.HeldCapacity+qty > u.TotalCapacity {
			return apperr.New(apperr.InsufficientCapacity, "%s %s has %d left on %s, %d requested",
				kind, id, u.Remaining(), k.date, qty)
		}
		u.HeldCapacity += qty
		u.UpdatedAt = time.Now().UTC()
		st.units[k] = u
		unitID = u.ID
		return nil
	})
	return unitID, err
}

func (s *Store) DecrementHeld(ctx context.Context, unitID int64, qty int) error {
	return s.run(ctx, func(st *state) error {
		k, ok := st.unitsByID[unitID]
		if !ok {
			return apperr.New(apperr.ReleaseFailure, "inventory unit %d does not exist", unitID)
		}
		u := st.units[k]
		if u.HeldCapacity < qty {
			return apperr.New(apperr.ReleaseFailure, "inventory unit %d holds %d, cannot release %d", unitID, u.HeldCapacity, qty)
		}
		u.HeldCapacity -= qty
		u.UpdatedAt = time.Now().UTC()
		st.units[k] = u
		return nil
	})
}

func (s *Store) ListUnits(ctx context.Context, kind model.ResourceKind, id string, r model.DateRange) ([]model.InventoryUnit, error) {
	var out []model.InventoryUnit
	err := s.run(ctx, func(st *state) error {
		for _, d := range r.Days() {
			if u, ok := st.units[unitKey{kind, id, model.FormatDate(d)}]; ok {
				out = append(out, u)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) GetUnitForUpdate(ctx context.Context, kind model.ResourceKind, id string, date time.Time) (model.InventoryUnit, error) {
	var out model.InventoryUnit
	err := s.run(ctx, func(st *state) error {
		u, ok := st.units[unitKey{kind, id, model.FormatDate(date)}]
		if !ok {
			return apperr.New(apperr.NotProvisioned, "%s %s has no inventory on %s", kind, id, model.FormatDate(date))
		}
		out = u
		return nil
	})
	return out, err
}

func (s *Store) SaveUnitCapacity(ctx context.Context, kind model.ResourceKind, id string, date time.Time, total int) error {
	return s.run(ctx, func(st *state) error {
		k := unitKey{kind, id, model.FormatDate(date)}
		u, ok := st.units[k]
		if !ok {
			st.nextUnitID++
			u = model.InventoryUnit{ID: st.nextUnitID, Kind: kind, ResourceID: id, Date: model.Day(date)}
			st.unitsByID[u.ID] = k
		}
		u.TotalCapacity = total
		u.UpdatedAt = time.Now().UTC()
		st.units[k] = u
		return nil
	})
}

func (s *Store) CreateHandle(ctx context.Context, h model.ReservationHandle) error {
	return s.run(ctx, func(st *state) error {
		if _, ok := st.handles[h.ID]; ok {
			return apperr.New(apperr.Internal, "reservation handle %s already exists", h.ID)
		}
		units := make([]model.HeldUnit, len(h.Units))
		copy(units, h.Units)
		h.Units = units
		st.handles[h.ID] = h
		return nil
	})
}

func (s *Store) GetHandleForUpdate(ctx context.Context, id uuid.UUID) (model.ReservationHandle, error) {
	var out model.ReservationHandle
	err := s.run(ctx, func(st *state) error {
		h, ok := st.handles[id]
		if !ok {
			return apperr.New(apperr.NotFound, "reservation handle %s not found", id)
		}
		out = h
		return nil
	})
	return out, err
}

func (s *Store) MarkHandleReleased(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.run(ctx, func(st *state) error {
		h, ok := st.handles[id]
		if !ok {
			return apperr.New(apperr.NotFound, "reservation handle %s not found", id)
		}
		if h.ReleasedAt != nil {
			return nil
		}
		t := at
		h.ReleasedAt = &t
		st.handles[id] = h
		return nil
	})
}

func (s *Store) CreateBooking(ctx context.Context, b model.Booking) (int64, error) {
	var id int64
	err := s.run(ctx, func(st *state) error {
		st.nextBookingID++
		b.ID = st.nextBookingID
		st.bookings[b.ID] = b
		id = b.ID
		return nil
	})
	return id, err
}

func (s *Store) GetBooking(ctx context.Context, id int64) (model.Booking, error) {
	var out model.Booking
	err := s.run(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return apperr.New(apperr.NotFound, "booking %d not found", id)
		}
		out = b
		return nil
	})
	return out, err
}

func (s *Store) GetBookingForUpdate(ctx context.Context, id int64) (model.Booking, error) {
	return s.GetBooking(ctx, id)
}

func (s *Store) UpdateBookingStatus(ctx context.Context, b model.Booking) error {
	return s.run(ctx, func(st *state) error {
		prev, ok := st.bookings[b.ID]
		if !ok {
			return apperr.New(apperr.NotFound, "booking %d not found", b.ID)
		}
		prev.Status = b.Status
		prev.UpdatedAt = b.UpdatedAt
		prev.ConfirmedAt = b.ConfirmedAt
		prev.CompletedAt = b.CompletedAt
		prev.CancelledAt = b.CancelledAt
		st.bookings[b.ID] = prev
		return nil
	})
}

func (s *Store) ListBookingsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Booking, error) {
	var out []model.Booking
	err := s.run(ctx, func(st *state) error {
		for _, b := range st.bookings {
			if b.UserID == userID {
				out = append(out, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return []model.Booking{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
