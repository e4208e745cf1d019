package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

const unitColumns = `id, resource_kind, resource_id, unit_date, total_capacity, held_capacity, updated_at`

// IncrementHeld adds qty to the unit for date when the result stays within
// total_capacity.  The guard lives in the UPDATE itself, so two writers on
// the same row serialise on its lock and the second one re-checks against
// the first one's committed value.
func (s *Store) IncrementHeld(ctx context.Context, kind model.ResourceKind, id string, date time.Time, qty int) (int64, error) {
	const update = `
UPDATE inventory_units
SET held_capacity = held_capacity + $1, updated_at = NOW()
WHERE resource_kind = $2 AND resource_id = $3 AND unit_date = $4
  AND held_capacity + $1 <= total_capacity
RETURNING id`

	day := model.Day(date)
	var unitID int64
	err := s.queryRow(ctx, update, qty, string(kind), id, day).Scan(&unitID)
	if err == nil {
		return unitID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, translate(err, "increment held capacity")
	}

	const lookup = `
SELECT total_capacity, held_capacity
FROM inventory_units
WHERE resource_kind = $1 AND resource_id = $2 AND unit_date = $3`

	var total, held int
	err = s.queryRow(ctx, lookup, string(kind), id, day).Scan(&total, &held)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.New(apperr.NotProvisioned, "%s %s has no inventory on %s", kind, id, model.FormatDate(day))
	}
	if err != nil {
		return 0, translate(err, "read inventory unit")
	}
	return 0, apperr.New(apperr.InsufficientCapacity, "%s %s has %d left on %s, %d requested",
		kind, id, total-held, model.FormatDate(day), qty)
}

func (s *Store) DecrementHeld(ctx context.Context, unitID int64, qty int) error {
	const query = `
UPDATE inventory_units
SET held_capacity = held_capacity - $1, updated_at = NOW()
WHERE id = $2 AND held_capacity >= $1`

	tag, err := s.exec(ctx, query, qty, unitID)
	if err != nil {
		return translate(err, "decrement held capacity")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.ReleaseFailure, "inventory unit %d cannot release %d units", unitID, qty)
	}
	return nil
}

func (s *Store) ListUnits(ctx context.Context, kind model.ResourceKind, id string, dr model.DateRange) ([]model.InventoryUnit, error) {
	const query = `SELECT ` + unitColumns + `
FROM inventory_units
WHERE resource_kind = $1 AND resource_id = $2 AND unit_date >= $3 AND unit_date < $4
ORDER BY unit_date`

	rows, err := s.query(ctx, query, string(kind), id, model.Day(dr.Start), model.Day(dr.End))
	if err != nil {
		return nil, translate(err, "list inventory units")
	}
	defer rows.Close()

	var units []model.InventoryUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, translate(err, "scan inventory unit")
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list inventory units")
	}
	return units, nil
}

func (s *Store) GetUnitForUpdate(ctx context.Context, kind model.ResourceKind, id string, date time.Time) (model.InventoryUnit, error) {
	const query = `SELECT ` + unitColumns + `
FROM inventory_units
WHERE resource_kind = $1 AND resource_id = $2 AND unit_date = $3
FOR UPDATE`

	u, err := scanUnit(s.queryRow(ctx, query, string(kind), id, model.Day(date)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.InventoryUnit{}, apperr.New(apperr.NotProvisioned, "%s %s has no inventory on %s", kind, id, model.FormatDate(date))
	}
	if err != nil {
		return model.InventoryUnit{}, translate(err, "get inventory unit")
	}
	return u, nil
}

func (s *Store) SaveUnitCapacity(ctx context.Context, kind model.ResourceKind, id string, date time.Time, total int) error {
	const query = `
INSERT INTO inventory_units (resource_kind, resource_id, unit_date, total_capacity, held_capacity, updated_at)
VALUES ($1, $2, $3, $4, 0, NOW())
ON CONFLICT (resource_kind, resource_id, unit_date) DO UPDATE
SET total_capacity = EXCLUDED.total_capacity, updated_at = NOW()`

	_, err := s.exec(ctx, query, string(kind), id, model.Day(date), total)
	return translate(err, "save unit capacity")
}

func scanUnit(row pgx.Row) (model.InventoryUnit, error) {
	var u model.InventoryUnit
	var kind string
	if err := row.Scan(&u.ID, &kind, &u.ResourceID, &u.Date, &u.TotalCapacity, &u.HeldCapacity, &u.UpdatedAt); err != nil {
		return model.InventoryUnit{}, err
	}
	u.Kind = model.ResourceKind(kind)
	u.Date = model.Day(u.Date)
	return u, nil
}
