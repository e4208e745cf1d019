package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/model"
)

// BookingRepo provides data access to the bookings table.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the provided database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `id, user_id, resource_kind, resource_id, start_date, end_date, quantity, status,
	base_price_cents, total_price_cents, handle_id, guest_name, guest_email, guest_phone,
	created_at, updated_at, confirmed_at, completed_at, cancelled_at`

// CreateBooking inserts b and returns the auto-increment id.
func (r *BookingRepo) CreateBooking(ctx context.Context, b model.Booking) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`INSERT INTO bookings (user_id, resource_kind, resource_id, start_date, end_date, quantity, status,
		   base_price_cents, total_price_cents, handle_id, guest_name, guest_email, guest_phone, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, string(b.Kind), b.ResourceID, model.FormatDate(b.Range.Start), model.FormatDate(b.Range.End),
		b.Quantity, string(b.Status), b.BasePriceCents, b.TotalPriceCents, b.HandleID.String(),
		b.Guest.Name, b.Guest.Email, b.Guest.Phone, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return 0, translate(err, "insert booking")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, translate(err, "insert booking")
	}
	return id, nil
}

// GetBooking fetches a booking by id without locking it.
func (r *BookingRepo) GetBooking(ctx context.Context, id int64) (model.Booking, error) {
	return r.getBooking(ctx, id, false)
}

// GetBookingForUpdate fetches a booking and holds its row lock until the
// surrounding transaction ends.
func (r *BookingRepo) GetBookingForUpdate(ctx context.Context, id int64) (model.Booking, error) {
	return r.getBooking(ctx, id, true)
}

func (r *BookingRepo) getBooking(ctx context.Context, id int64, lock bool) (model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	if lock {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, apperr.New(apperr.NotFound, "booking %d not found", id)
	}
	if err != nil {
		return model.Booking{}, translate(err, "get booking")
	}
	return b, nil
}

// UpdateBookingStatus writes status, updated_at and the lifecycle timestamps.
func (r *BookingRepo) UpdateBookingStatus(ctx context.Context, b model.Booking) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE bookings
		    SET status = ?, updated_at = ?, confirmed_at = ?, completed_at = ?, cancelled_at = ?
		  WHERE id = ?`,
		string(b.Status), b.UpdatedAt, b.ConfirmedAt, b.CompletedAt, b.CancelledAt, b.ID,
	)
	if err != nil {
		return translate(err, "update booking status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.New(apperr.NotFound, "booking %d not found", b.ID)
	}
	return nil
}

// ListBookingsByUser returns a page of the user's bookings, newest first.
func (r *BookingRepo) ListBookingsByUser(ctx context.Context, userID int64, limit, offset int) ([]model.Booking, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings
		  WHERE user_id = ?
		  ORDER BY created_at DESC, id DESC
		  LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
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

func scanBooking(s rowScanner) (model.Booking, error) {
	var (
		b                               model.Booking
		kind, status, handleID          string
		confirmed, completed, cancelled sql.NullTime
	)
	err := s.Scan(&b.ID, &b.UserID, &kind, &b.ResourceID, &b.Range.Start, &b.Range.End, &b.Quantity, &status,
		&b.BasePriceCents, &b.TotalPriceCents, &handleID, &b.Guest.Name, &b.Guest.Email, &b.Guest.Phone,
		&b.CreatedAt, &b.UpdatedAt, &confirmed, &completed, &cancelled)
	if err != nil {
		return model.Booking{}, err
	}
	b.Kind = model.ResourceKind(kind)
	b.Status = model.BookingStatus(status)
	b.Range.Start, b.Range.End = model.Day(b.Range.Start), model.Day(b.Range.End)
	if b.HandleID, err = uuid.Parse(handleID); err != nil {
		return model.Booking{}, err
	}
	b.ConfirmedAt = nullTime(confirmed)
	b.CompletedAt = nullTime(completed)
	b.CancelledAt = nullTime(cancelled)
	return b, nil
}

func nullTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
