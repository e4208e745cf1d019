package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/tourism-booking/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication: the
// health check and the availability queries.  cache wraps only the GET
// variant of the availability query.
func RegisterRoutes(e *echo.Echo, pingers map[string]handler.Pinger, a *handler.AvailabilityHandler, cache echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health(pingers))

	g := e.Group("/v1")
	g.POST("/availability", a.Check)
	if cache != nil {
		g.GET("/availability", a.Query, cache)
	} else {
		g.GET("/availability", a.Query)
	}
}
