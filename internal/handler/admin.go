package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/service"
)

// AdminHandler manages resources and their capacity calendars.  Every route
// requires the ADMIN role.
type AdminHandler struct {
	Inventory *service.InventoryService
	Log       *zap.Logger
}

func NewAdminHandler(inv *service.InventoryService, log *zap.Logger) *AdminHandler {
	if inv == nil {
		panic("nil inventory service passed to NewAdminHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{Inventory: inv, Log: log}
}

type upsertResourceRequest struct {
	Name           string `json:"name"`
	BasePriceCents int64  `json:"base_price_cents"`
	Status         string `json:"status"`
}

// UpsertResource handles PUT /v1/admin/resources/:kind/:id.
func (h *AdminHandler) UpsertResource(c echo.Context) error {
	kind, err := model.ParseResourceKind(c.Param("kind"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	var body upsertResourceRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	res, err := h.Inventory.UpsertResource(c.Request().Context(), model.Resource{
		Kind:           kind,
		ID:             c.Param("id"),
		Name:           body.Name,
		BasePriceCents: body.BasePriceCents,
		Status:         model.ResourceStatus(strings.ToUpper(strings.TrimSpace(body.Status))),
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toResourceJSON(res))
}

type capacityEntryJSON struct {
	Date  string `json:"date"`
	Total int    `json:"total"`
}

type provisionRequest struct {
	Kind       string              `json:"kind"`
	ResourceID string              `json:"resource_id"`
	Start      string              `json:"start"`
	End        string              `json:"end"`
	Total      *int                `json:"total"`
	Dates      []capacityEntryJSON `json:"dates"`
}

// Provision handles PUT /v1/admin/inventory.  The body either sets one
// total over [start, end) or lists per-date totals in "dates".
func (h *AdminHandler) Provision(c echo.Context) error {
	var body provisionRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	kind, err := model.ParseResourceKind(body.Kind)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.Request().Context()

	var n int
	switch {
	case len(body.Dates) > 0:
		entries := make([]service.CapacityEntry, 0, len(body.Dates))
		for _, d := range body.Dates {
			day, err := model.ParseDate(d.Date)
			if err != nil {
				return badRequest(c, err.Error())
			}
			entries = append(entries, service.CapacityEntry{Date: day, Total: d.Total})
		}
		n, err = h.Inventory.ProvisionCalendar(ctx, kind, body.ResourceID, entries)
	case body.Total != nil:
		r, rerr := parseRange(kind, body.Start, body.End)
		if rerr != nil {
			return badRequest(c, rerr.Error())
		}
		n, err = h.Inventory.ProvisionRange(ctx, kind, body.ResourceID, r, *body.Total)
	default:
		return badRequest(c, "either dates or total with start/end is required")
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"kind": string(kind), "resource_id": body.ResourceID, "dates_saved": n})
}

// Calendar handles GET /v1/admin/inventory/:kind/:id?start=&end=.
func (h *AdminHandler) Calendar(c echo.Context) error {
	kind, err := model.ParseResourceKind(c.Param("kind"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	r, err := parseRange(kind, c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	units, err := h.Inventory.Calendar(c.Request().Context(), kind, c.Param("id"), r)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"kind": string(kind), "resource_id": c.Param("id"), "units": toUnitsJSON(units)})
}
