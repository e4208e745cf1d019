package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/model"
)

// CapacityEntry sets the total capacity of one date.
type CapacityEntry struct {
	Date  time.Time
	Total int
}

// InventoryService provisions resources and their availability calendars.
// It is the operator-facing side of the ledger; bookings never go through it.
type InventoryService struct {
	store Store
	clock clock.Clock
	log   *zap.Logger
}

func NewInventoryService(store Store, clk clock.Clock, log *zap.Logger) *InventoryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &InventoryService{store: store, clock: clk, log: log}
}

// UpsertResource creates or updates a resource.  An empty status defaults to
// ACTIVE.
func (s *InventoryService) UpsertResource(ctx context.Context, r model.Resource) (model.Resource, error) {
	r.ID = strings.TrimSpace(r.ID)
	if r.ID == "" {
		return model.Resource{}, apperr.New(apperr.Invalid, "resource id is required")
	}
	if _, err := model.ParseResourceKind(string(r.Kind)); err != nil {
		return model.Resource{}, apperr.Wrap(apperr.Invalid, err, "invalid resource")
	}
	if r.Status == "" {
		r.Status = model.ResourceActive
	}
	if !r.Status.Valid() {
		return model.Resource{}, apperr.New(apperr.Invalid, "status must be ACTIVE or INACTIVE")
	}
	if r.BasePriceCents < 0 {
		return model.Resource{}, apperr.New(apperr.Invalid, "base price cannot be negative")
	}
	now := s.clock.Now()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := s.store.UpsertResource(ctx, r); err != nil {
		return model.Resource{}, err
	}
	return s.store.GetResource(ctx, r.Kind, r.ID)
}

// ProvisionCalendar sets total capacity for each entry.  Units are created
// when missing.  Lowering a total below what is already held is rejected and
// the whole calendar update is rolled back.
func (s *InventoryService) ProvisionCalendar(ctx context.Context, kind model.ResourceKind, id string, entries []CapacityEntry) (int, error) {
	if len(entries) == 0 {
		return 0, apperr.New(apperr.Invalid, "calendar has no entries")
	}
	sorted := make([]CapacityEntry, len(entries))
	for i, e := range entries {
		if e.Total < 0 {
			return 0, apperr.New(apperr.Invalid, "capacity for %s cannot be negative", model.FormatDate(e.Date))
		}
		sorted[i] = CapacityEntry{Date: model.Day(e.Date), Total: e.Total}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Date.Equal(sorted[i-1].Date) {
			return 0, apperr.New(apperr.Invalid, "date %s appears twice", model.FormatDate(sorted[i].Date))
		}
	}

	err := s.store.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.GetResource(txCtx, kind, id); err != nil {
			return err
		}
		for _, e := range sorted {
			u, err := s.store.GetUnitForUpdate(txCtx, kind, id, e.Date)
			switch {
			case err == nil:
				if u.HeldCapacity > e.Total {
					return apperr.New(apperr.Invalid, "%s already has %d units held, cannot lower capacity to %d",
						model.FormatDate(e.Date), u.HeldCapacity, e.Total)
				}
			case apperr.Is(err, apperr.NotProvisioned):
			default:
				return err
			}
			if err := s.store.SaveUnitCapacity(txCtx, kind, id, e.Date, e.Total); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("calendar provisioned",
		zap.String("resource", string(kind)+"/"+id),
		zap.Int("dates", len(sorted)),
		zap.String("from", model.FormatDate(sorted[0].Date)),
		zap.String("to", model.FormatDate(sorted[len(sorted)-1].Date)),
	)
	return len(sorted), nil
}

// ProvisionRange sets the same total capacity on every date of r.
func (s *InventoryService) ProvisionRange(ctx context.Context, kind model.ResourceKind, id string, r model.DateRange, total int) (int, error) {
	days := r.Days()
	entries := make([]CapacityEntry, 0, len(days))
	for _, d := range days {
		entries = append(entries, CapacityEntry{Date: d, Total: total})
	}
	return s.ProvisionCalendar(ctx, kind, id, entries)
}

// Calendar returns the ledger rows of r that exist.
func (s *InventoryService) Calendar(ctx context.Context, kind model.ResourceKind, id string, r model.DateRange) ([]model.InventoryUnit, error) {
	if r.Nights() == 0 {
		return nil, apperr.New(apperr.Invalid, "date range is empty")
	}
	if _, err := s.store.GetResource(ctx, kind, id); err != nil {
		return nil, err
	}
	return s.store.ListUnits(ctx, kind, id, r)
}
