package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

// InventoryRepo provides data access to the inventory_units ledger.  Held
// capacity is only ever changed by the two conditional updates below, so
// concurrent writers serialise on the row lock and the WHERE clause is
// re-evaluated against the committed value.
type InventoryRepo struct {
	db *sql.DB
}

// NewInventoryRepo returns a new InventoryRepo bound to the provided database.
func NewInventoryRepo(db *sql.DB) *InventoryRepo { return &InventoryRepo{db: db} }

// IncrementHeld adds qty to held_capacity of the unit for date, provided the
// new value does not exceed total_capacity.  When the update matches no row
// the unit is read back to tell a missing unit (NotProvisioned) from a full
// one (InsufficientCapacity).
func (r *InventoryRepo) IncrementHeld(ctx context.Context, kind model.ResourceKind, id string, date time.Time, qty int) (int64, error) {
	q := conn(ctx, r.db)
	day := model.FormatDate(date)
	res, err := q.ExecContext(ctx,
		`UPDATE inventory_units
		    SET held_capacity = held_capacity + ?, updated_at = UTC_TIMESTAMP()
		  WHERE resource_kind = ? AND resource_id = ? AND unit_date = ?
		    AND held_capacity + ? <= total_capacity`,
		qty, string(kind), id, day, qty,
	)
	if err != nil {
		return 0, translate(err, "increment held capacity")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, translate(err, "increment held capacity")
	}

	var (
		unitID      int64
		total, held int
	)
	err = q.QueryRowContext(ctx,
		`SELECT id, total_capacity, held_capacity FROM inventory_units
		  WHERE resource_kind = ? AND resource_id = ? AND unit_date = ? FOR UPDATE`,
		string(kind), id, day,
	).Scan(&unitID, &total, &held)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.New(apperr.NotProvisioned, "%s %s has no inventory on %s", kind, id, day)
	}
	if err != nil {
		return 0, translate(err, "read inventory unit")
	}
	if affected == 0 {
		return 0, apperr.New(apperr.InsufficientCapacity, "%s %s has %d left on %s, %d requested",
			kind, id, total-held, day, qty)
	}
	return unitID, nil
}

// DecrementHeld subtracts qty from held_capacity of unitID unless that would
// make it negative, in which case it returns apperr.ReleaseFailure.
func (r *InventoryRepo) DecrementHeld(ctx context.Context, unitID int64, qty int) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE inventory_units
		    SET held_capacity = held_capacity - ?, updated_at = UTC_TIMESTAMP()
		  WHERE id = ? AND held_capacity >= ?`,
		qty, unitID, qty,
	)
	if err != nil {
		return translate(err, "decrement held capacity")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return translate(err, "decrement held capacity")
	}
	if affected == 0 {
		return apperr.New(apperr.ReleaseFailure, "inventory unit %d cannot release %d units", unitID, qty)
	}
	return nil
}

// ListUnits returns the units of [r.Start, r.End) that exist, ascending by
// date, from a single SELECT.
func (r *InventoryRepo) ListUnits(ctx context.Context, kind model.ResourceKind, id string, dr model.DateRange) ([]model.InventoryUnit, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, resource_kind, resource_id, unit_date, total_capacity, held_capacity, updated_at
		   FROM inventory_units
		  WHERE resource_kind = ? AND resource_id = ? AND unit_date >= ? AND unit_date < ?
		  ORDER BY unit_date`,
		string(kind), id, model.FormatDate(dr.Start), model.FormatDate(dr.End),
	)
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

// GetUnitForUpdate locks and returns the unit for date.
func (r *InventoryRepo) GetUnitForUpdate(ctx context.Context, kind model.ResourceKind, id string, date time.Time) (model.InventoryUnit, error) {
	row := conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, resource_kind, resource_id, unit_date, total_capacity, held_capacity, updated_at
		   FROM inventory_units
		  WHERE resource_kind = ? AND resource_id = ? AND unit_date = ? FOR UPDATE`,
		string(kind), id, model.FormatDate(date),
	)
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.InventoryUnit{}, apperr.New(apperr.NotProvisioned, "%s %s has no inventory on %s", kind, id, model.FormatDate(date))
	}
	if err != nil {
		return model.InventoryUnit{}, translate(err, "get inventory unit")
	}
	return u, nil
}

// SaveUnitCapacity inserts the unit with no holds, or sets total_capacity of
// the existing one.  Callers must check held capacity first; the table's
// CHECK constraint rejects a total below held.
func (r *InventoryRepo) SaveUnitCapacity(ctx context.Context, kind model.ResourceKind, id string, date time.Time, total int) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO inventory_units (resource_kind, resource_id, unit_date, total_capacity, held_capacity, updated_at)
		 VALUES (?, ?, ?, ?, 0, UTC_TIMESTAMP())
		 ON DUPLICATE KEY UPDATE total_capacity = VALUES(total_capacity), updated_at = VALUES(updated_at)`,
		string(kind), id, model.FormatDate(date), total,
	)
	return translate(err, "save unit capacity")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(s rowScanner) (model.InventoryUnit, error) {
	var u model.InventoryUnit
	var kind string
	if err := s.Scan(&u.ID, &kind, &u.ResourceID, &u.Date, &u.TotalCapacity, &u.HeldCapacity, &u.UpdatedAt); err != nil {
		return model.InventoryUnit{}, err
	}
	u.Kind = model.ResourceKind(kind)
	u.Date = model.Day(u.Date)
	return u, nil
}
