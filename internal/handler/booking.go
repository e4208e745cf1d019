package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/middleware"
	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/service"
)

// BookingHandler exposes the booking lifecycle to authenticated callers.
// JWTAuth must run before every method.
type BookingHandler struct {
	Bookings *service.BookingService
	Log      *zap.Logger
}

// NewBookingHandler panics on a nil service, like the other constructors.
func NewBookingHandler(svc *service.BookingService, log *zap.Logger) *BookingHandler {
	if svc == nil {
		panic("nil booking service passed to NewBookingHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{Bookings: svc, Log: log}
}

type createBookingRequest struct {
	Kind       string    `json:"kind"`
	ResourceID string    `json:"resource_id"`
	Start      string    `json:"start"`
	End        string    `json:"end"`
	Quantity   int       `json:"quantity"`
	Guest      guestJSON `json:"guest"`
}

// Create handles POST /v1/bookings.  It answers 201 with the new booking,
// or 200 with the original booking when the Idempotency-Key was already
// used by this caller.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	kind, err := model.ParseResourceKind(body.Kind)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if strings.TrimSpace(body.ResourceID) == "" {
		return badRequest(c, "resource_id is required")
	}
	r, err := parseRange(kind, body.Start, body.End)
	if err != nil {
		return badRequest(c, err.Error())
	}

	res, err := h.Bookings.CreateBooking(c.Request().Context(), service.CreateBookingInput{
		UserID:         userID,
		Kind:           kind,
		ResourceID:     strings.TrimSpace(body.ResourceID),
		Range:          r,
		Quantity:       body.Quantity,
		Guest:          model.Guest{Name: body.Guest.Name, Email: body.Guest.Email, Phone: body.Guest.Phone},
		IdempotencyKey: strings.TrimSpace(c.Request().Header.Get("Idempotency-Key")),
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if res.Replayed {
		c.Response().Header().Set("Idempotent-Replayed", "true")
		return c.JSON(http.StatusOK, toBookingJSON(res.Booking))
	}
	return c.JSON(http.StatusCreated, toBookingJSON(res.Booking))
}

// Get handles GET /v1/bookings/:id.  Customers only see their own bookings;
// anything else reads as not found.
func (h *BookingHandler) Get(c echo.Context) error {
	b, ok, err := h.owned(c)
	if !ok {
		return err
	}
	return c.JSON(http.StatusOK, toBookingJSON(b))
}

// Mine handles GET /v1/my-bookings?page=&page_size=.
func (h *BookingHandler) Mine(c echo.Context) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.QueryParam("page_size"))
	if size < 1 {
		size = 20
	}
	list, err := h.Bookings.ListUserBookings(c.Request().Context(), userID, size, (page-1)*size)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	items := make([]bookingJSON, 0, len(list))
	for _, b := range list {
		items = append(items, toBookingJSON(b))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "page": page, "page_size": size})
}

// Cancel handles PATCH /v1/bookings/:id/cancel for the owner or an admin.
// Cancelling an already cancelled booking returns it unchanged.
func (h *BookingHandler) Cancel(c echo.Context) error {
	b, ok, err := h.owned(c)
	if !ok {
		return err
	}
	b, err = h.Bookings.CancelBooking(c.Request().Context(), b.ID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingJSON(b))
}

// Confirm handles PATCH /v1/bookings/:id/confirm (ADMIN).
func (h *BookingHandler) Confirm(c echo.Context) error {
	id, ok := bookingID(c)
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Bookings.ConfirmBooking(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingJSON(b))
}

// Complete handles PATCH /v1/bookings/:id/complete (ADMIN).
func (h *BookingHandler) Complete(c echo.Context) error {
	id, ok := bookingID(c)
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Bookings.CompleteBooking(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toBookingJSON(b))
}

// owned loads the booking named by :id and checks the caller may see it.
// When ok is false the response has already been written and err is what
// the handler should return.
func (h *BookingHandler) owned(c echo.Context) (b model.Booking, ok bool, err error) {
	userID, ok := middleware.UserID(c)
	if !ok {
		return model.Booking{}, false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := bookingID(c)
	if !ok {
		return model.Booking{}, false, badRequest(c, "invalid booking id")
	}
	b, err = h.Bookings.GetBooking(c.Request().Context(), id)
	if err != nil {
		return model.Booking{}, false, respondError(c, h.Log, err)
	}
	if b.UserID != userID && !middleware.IsAdmin(c) {
		return model.Booking{}, false, c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found", "code": "not_found"})
	}
	return b, true, nil
}

func bookingID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}
