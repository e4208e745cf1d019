package handler // handler defines http handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/apperr"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.NotFound, apperr.NotProvisioned:
		return http.StatusNotFound
	case apperr.Invalid:
		return http.StatusBadRequest
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.InsufficientCapacity, apperr.InvalidTransition:
		return http.StatusConflict
	case apperr.TransactionConflict:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": message, "code": kind}.  Internal
// errors and release failures are logged and reported without detail.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	rid := c.Response().Header().Get(echo.HeaderXRequestID)

	switch kind {
	case apperr.TransactionConflict:
		c.Response().Header().Set("Retry-After", "1")
	case apperr.Internal, apperr.ReleaseFailure:
		log.Error("request failed",
			zap.String("route", c.Path()),
			zap.String("request_id", rid),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
		return c.JSON(status, echo.Map{"error": "internal error", "code": kind.String(), "request_id": rid})
	}

	msg := err.Error()
	if e, ok := apperr.As(err); ok {
		msg = e.Message
	}
	return c.JSON(status, echo.Map{"error": msg, "code": kind.String()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": apperr.Invalid.String()})
}
