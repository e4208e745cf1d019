package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/service"
)

// AvailabilityHandler answers public availability queries.  The answer is a
// hint; POST /v1/bookings re-checks capacity atomically.
type AvailabilityHandler struct {
	Bookings *service.BookingService
	Log      *zap.Logger
}

func NewAvailabilityHandler(svc *service.BookingService, log *zap.Logger) *AvailabilityHandler {
	if svc == nil {
		panic("nil booking service passed to NewAvailabilityHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AvailabilityHandler{Bookings: svc, Log: log}
}

type availabilityRequest struct {
	Kind       string `json:"kind" query:"kind"`
	ResourceID string `json:"resource_id" query:"resource_id"`
	Start      string `json:"start" query:"start"`
	End        string `json:"end" query:"end"`
}

// Check handles POST /v1/availability with a JSON body.
func (h *AvailabilityHandler) Check(c echo.Context) error {
	var body availabilityRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	return h.check(c, body)
}

// Query handles GET /v1/availability?kind=&resource_id=&start=&end=.  This
// variant sits behind the response cache.
func (h *AvailabilityHandler) Query(c echo.Context) error {
	return h.check(c, availabilityRequest{
		Kind:       c.QueryParam("kind"),
		ResourceID: c.QueryParam("resource_id"),
		Start:      c.QueryParam("start"),
		End:        c.QueryParam("end"),
	})
}

func (h *AvailabilityHandler) check(c echo.Context, req availabilityRequest) error {
	kind, err := model.ParseResourceKind(req.Kind)
	if err != nil {
		return badRequest(c, err.Error())
	}
	id := strings.TrimSpace(req.ResourceID)
	if id == "" {
		return badRequest(c, "resource_id is required")
	}
	r, err := parseRange(kind, req.Start, req.End)
	if err != nil {
		return badRequest(c, err.Error())
	}
	a, err := h.Bookings.CheckAvailability(c.Request().Context(), kind, id, r)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toAvailabilityJSON(a))
}
