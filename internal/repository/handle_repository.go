package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

// HandleRepo provides data access to reservation_handles and the
// reservation_holds rows that list which units each handle incremented.
type HandleRepo struct {
	db *sql.DB
}

// NewHandleRepo returns a new HandleRepo bound to the provided database.
func NewHandleRepo(db *sql.DB) *HandleRepo { return &HandleRepo{db: db} }

// CreateHandle inserts the handle and all of its holds.  It should run in
// the same transaction as the increments it records.
func (r *HandleRepo) CreateHandle(ctx context.Context, h model.ReservationHandle) error {
	q := conn(ctx, r.db)
	_, err := q.ExecContext(ctx,
		`INSERT INTO reservation_handles (id, resource_kind, resource_id, quantity, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		h.ID.String(), string(h.Kind), h.ResourceID, h.Quantity, h.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return apperr.Wrap(apperr.Internal, err, "reservation handle %s already exists", h.ID)
		}
		return translate(err, "insert reservation handle")
	}
	if len(h.Units) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO reservation_holds (handle_id, unit_id, unit_date) VALUES `)
	args := make([]any, 0, len(h.Units)*3)
	for i, u := range h.Units {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?)")
		args = append(args, h.ID.String(), u.UnitID, model.FormatDate(u.Date))
	}
	_, err = q.ExecContext(ctx, sb.String(), args...)
	return translate(err, "insert reservation holds")
}

// GetHandleForUpdate locks the handle row and loads its holds ordered by
// date.  Two concurrent releases of the same handle serialise here.
func (r *HandleRepo) GetHandleForUpdate(ctx context.Context, id uuid.UUID) (model.ReservationHandle, error) {
	q := conn(ctx, r.db)
	var (
		h        model.ReservationHandle
		rawID    string
		kind     string
		released sql.NullTime
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, resource_kind, resource_id, quantity, created_at, released_at
		   FROM reservation_handles WHERE id = ? FOR UPDATE`,
		id.String(),
	).Scan(&rawID, &kind, &h.ResourceID, &h.Quantity, &h.CreatedAt, &released)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ReservationHandle{}, apperr.New(apperr.NotFound, "reservation handle %s not found", id)
	}
	if err != nil {
		return model.ReservationHandle{}, translate(err, "get reservation handle")
	}
	if h.ID, err = uuid.Parse(rawID); err != nil {
		return model.ReservationHandle{}, apperr.Wrap(apperr.Internal, err, "parse reservation handle id")
	}
	h.Kind = model.ResourceKind(kind)
	if released.Valid {
		t := released.Time
		h.ReleasedAt = &t
	}

	rows, err := q.QueryContext(ctx,
		`SELECT unit_id, unit_date FROM reservation_holds WHERE handle_id = ? ORDER BY unit_date`,
		id.String(),
	)
	if err != nil {
		return model.ReservationHandle{}, translate(err, "list reservation holds")
	}
	defer rows.Close()
	for rows.Next() {
		var u model.HeldUnit
		if err := rows.Scan(&u.UnitID, &u.Date); err != nil {
			return model.ReservationHandle{}, translate(err, "scan reservation hold")
		}
		u.Date = model.Day(u.Date)
		h.Units = append(h.Units, u)
	}
	if err := rows.Err(); err != nil {
		return model.ReservationHandle{}, translate(err, "list reservation holds")
	}
	return h, nil
}

// MarkHandleReleased stamps released_at once; later calls leave it alone.
func (r *HandleRepo) MarkHandleReleased(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE reservation_handles SET released_at = ? WHERE id = ? AND released_at IS NULL`,
		at, id.String(),
	)
	return translate(err, "mark reservation handle released")
}
