package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tourism-booking/internal/handler"
	"github.com/iliyamo/tourism-booking/internal/middleware"
)

// RegisterAdmin registers ADMIN-scoped endpoints under /v1: booking
// confirmation and completion, resource upserts and calendar provisioning.
func RegisterAdmin(e *echo.Echo, b *handler.BookingHandler, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)

	// ---- Booking lifecycle ----
	g.PATCH("/bookings/:id/confirm", b.Confirm)
	g.PATCH("/bookings/:id/complete", b.Complete)

	// ---- Resources and inventory ----
	g.PUT("/admin/resources/:kind/:id", a.UpsertResource)
	g.PUT("/admin/inventory", a.Provision)
	g.GET("/admin/inventory/:kind/:id", a.Calendar)
}
