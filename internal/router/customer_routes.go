package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tourism-booking/internal/handler"
	"github.com/iliyamo/tourism-booking/internal/middleware"
)

// RegisterBookings registers the booking endpoints shared by customers and
// admins under /v1.  Ownership of a booking is checked in the handler.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin),
	)
	g.POST("/bookings", h.Create)
	g.GET("/bookings/:id", h.Get)
	g.GET("/my-bookings", h.Mine)
	g.PATCH("/bookings/:id/cancel", h.Cancel)
}
