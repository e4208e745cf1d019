package handler // declare the package name; contains HTTP handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

// Health returns 200 "ok" while every pinger succeeds and 503 naming the
// first failing dependency otherwise.  With no pingers it is a liveness
// check.
func Health(pingers map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		for name, ping := range pingers {
			if err := ping(ctx); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable", "dependency": name})
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
