package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

const bookingColumns = `id, user_id, resource_kind, resource_id, start_date, end_date, quantity, status,
base_price_cents, total_price_cents, handle_id::text, guest_name, guest_email, guest_phone,
created_at, updated_at, confirmed_at, completed_at, cancelled_at`

func (s *Store) CreateBooking(ctx context.Context, b model.Booking) (int64, error) {
	const query = `
INSERT INTO bookings (user_id, resource_kind, resource_id, start_date, end_date, quantity, status,
  base_price_cents, total_price_cents, handle_id, guest_name, guest_email, guest_phone, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
RETURNING id`

	var id int64
	err := s.queryRow(ctx, query,
		b.UserID, string(b.Kind), b.ResourceID, model.Day(b.Range.Start), model.Day(b.Range.End),
		b.Quantity, string(b.Status), b.BasePriceCents, b.TotalPriceCents, b.HandleID.String(),
		b.Guest.Name, b.Guest.Email, b.Guest.Phone, b.CreatedAt, b.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, translate(err, "insert booking")
	}
	return id, nil
}

func (s *Store) GetBooking(ctx context.Context, id int64) (model.Booking, error) {
	return s.getBooking(ctx, id, false)
}

func (s *Store) GetBookingForUpdate(ctx context.Context, id int64) (model.Booking, error) {
	return s.getBooking(ctx, id, true)
}

func (s *Store) getBooking(ctx context.Context, id int64, lock bool) (model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(s.queryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Booking{}, apperr.New(apperr.NotFound, "booking %d not found", id)
	}
	if err != nil {
		return model.Booking{}, translate(err, "get booking")
	}
	return b, nil
}

func (s *Store) UpdateBookingStatus(ctx context.Context, b model.Booking) error {
	const query = `
UPDATE bookings
SET status = $1, updated_at = $2, confirmed_at = $3, completed_at = $4, cancelled_at = $5
WHERE id = $6`

	tag, err := s.exec(ctx, query, string(b.Status), b.UpdatedAt, b.ConfirmedAt, b.CompletedAt, b.CancelledAt, b.ID)
	if err != nil {
		return translate(err, "update booking status")
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.NotFound, "booking %d not found", b.ID)
	}
	return nil
}

func (s *Store) ListBookingsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Booking, error) {
	const query = `SELECT ` + bookingColumns + `
FROM bookings
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`

	rows, err := s.query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, translate(err, "list bookings")
	}
	defer rows.Close()

	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, translate(err, "scan booking")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err, "list bookings")
	}
	return out, nil
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b                      model.Booking
		kind, status, handleID string
	)
	err := row.Scan(&b.ID, &b.UserID, &kind, &b.ResourceID, &b.Range.Start, &b.Range.End, &b.Quantity, &status,
		&b.BasePriceCents, &b.TotalPriceCents, &handleID, &b.Guest.Name, &b.Guest.Email, &b.Guest.Phone,
		&b.CreatedAt, &b.UpdatedAt, &b.ConfirmedAt, &b.CompletedAt, &b.CancelledAt)
	if err != nil {
		return model.Booking{}, err
	}
	b.Kind = model.ResourceKind(kind)
	b.Status = model.BookingStatus(status)
	b.Range.Start, b.Range.End = model.Day(b.Range.Start), model.Day(b.Range.End)
	if b.HandleID, err = uuid.Parse(handleID); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}
