package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

func (s *Store) CreateHandle(ctx context.Context, h model.ReservationHandle) error {
	const insertHandle = `
INSERT INTO reservation_handles (id, resource_kind, resource_id, quantity, created_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := s.exec(ctx, insertHandle, h.ID.String(), string(h.Kind), h.ResourceID, h.Quantity, h.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.Wrap(apperr.Internal, err, "reservation handle %s already exists", h.ID)
		}
		return translate(err, "insert reservation handle")
	}
	if len(h.Units) == 0 {
		return nil
	}

	unitIDs := make([]int64, len(h.Units))
	dates := make([]time.Time, len(h.Units))
	for i, u := range h.Units {
		unitIDs[i] = u.UnitID
		dates[i] = model.Day(u.Date)
	}
	const insertHolds = `
INSERT INTO reservation_holds (handle_id, unit_id, unit_date)
SELECT $1::uuid, u.unit_id, u.unit_date
FROM UNNEST($2::bigint[], $3::date[]) AS u(unit_id, unit_date)`

	_, err = s.exec(ctx, insertHolds, h.ID.String(), unitIDs, dates)
	return translate(err, "insert reservation holds")
}

func (s *Store) GetHandleForUpdate(ctx context.Context, id uuid.UUID) (model.ReservationHandle, error) {
	const query = `
SELECT id::text, resource_kind, resource_id, quantity, created_at, released_at
FROM reservation_handles
WHERE id = $1
FOR UPDATE`

	var (
		h     model.ReservationHandle
		rawID string
		kind  string
	)
	err := s.queryRow(ctx, query, id.String()).
		Scan(&rawID, &kind, &h.ResourceID, &h.Quantity, &h.CreatedAt, &h.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ReservationHandle{}, apperr.New(apperr.NotFound, "reservation handle %s not found", id)
	}
	if err != nil {
		return model.ReservationHandle{}, translate(err, "get reservation handle")
	}
	if h.ID, err = uuid.Parse(rawID); err != nil {
		return model.ReservationHandle{}, apperr.Wrap(apperr.Internal, err, "parse reservation handle id")
	}
	h.Kind = model.ResourceKind(kind)

	const holds = `
SELECT unit_id, unit_date
FROM reservation_holds
WHERE handle_id = $1
ORDER BY unit_date`

	rows, err := s.query(ctx, holds, id.String())
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

func (s *Store) MarkHandleReleased(ctx context.Context, id uuid.UUID, at time.Time) error {
	const query = `UPDATE reservation_handles SET released_at = $1 WHERE id = $2 AND released_at IS NULL`
	_, err := s.exec(ctx, query, at, id.String())
	return translate(err, "mark reservation handle released")
}
