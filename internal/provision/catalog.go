// Package provision loads resource catalogs from YAML and applies them to
// the inventory ledger.
package provision

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/service"
)

// Catalog is the top level of a provisioning file:
//
//	resources:
//	  - kind: hotel
//	    id: sea-view
//	    name: Sea View
//	    base_price_cents: 12000
//	    calendar:
//	      - {start: 2025-06-01, end: 2025-07-01, total: 10}
//	      - {date: 2025-06-15, total: 4}
type Catalog struct {
	Resources []ResourceSpec `yaml:"resources"`
}

// ResourceSpec describes one resource and its calendar.
type ResourceSpec struct {
	Kind           string         `yaml:"kind"`
	ID             string         `yaml:"id"`
	Name           string         `yaml:"name"`
	BasePriceCents int64          `yaml:"base_price_cents"`
	Status         string         `yaml:"status"`
	Calendar       []CalendarSpec `yaml:"calendar"`
}

// CalendarSpec sets Total either on a single Date or on every date of
// [Start, End).
type CalendarSpec struct {
	Date  string `yaml:"date"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Total int    `yaml:"total"`
}

// Parse decodes a catalog.  Unknown keys are rejected.
func Parse(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		if err == io.EOF {
			return Catalog{}, fmt.Errorf("catalog is empty")
		}
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if len(c.Resources) == 0 {
		return Catalog{}, fmt.Errorf("catalog lists no resources")
	}
	return c, nil
}

// Entries expands the calendar into one entry per date.  Later lines win
// over earlier ones for the same date, so a range can be followed by
// single-date overrides.
func (r ResourceSpec) Entries() ([]service.CapacityEntry, error) {
	byDate := map[string]int{}
	var order []string
	set := func(d string, total int) {
		if _, ok := byDate[d]; !ok {
			order = append(order, d)
		}
		byDate[d] = total
	}
	for i, c := range r.Calendar {
		switch {
		case c.Date != "" && (c.Start != "" || c.End != ""):
			return nil, fmt.Errorf("%s/%s calendar[%d]: use either date or start/end", r.Kind, r.ID, i)
		case c.Date != "":
			d, err := model.ParseDate(c.Date)
			if err != nil {
				return nil, fmt.Errorf("%s/%s calendar[%d]: %w", r.Kind, r.ID, i, err)
			}
			set(model.FormatDate(d), c.Total)
		default:
			start, err := model.ParseDate(c.Start)
			if err != nil {
				return nil, fmt.Errorf("%s/%s calendar[%d]: %w", r.Kind, r.ID, i, err)
			}
			end, err := model.ParseDate(c.End)
			if err != nil {
				return nil, fmt.Errorf("%s/%s calendar[%d]: %w", r.Kind, r.ID, i, err)
			}
			dr, err := model.NewRange(start, end)
			if err != nil {
				return nil, fmt.Errorf("%s/%s calendar[%d]: %w", r.Kind, r.ID, i, err)
			}
			for _, d := range dr.Days() {
				set(model.FormatDate(d), c.Total)
			}
		}
	}
	out := make([]service.CapacityEntry, 0, len(order))
	for _, d := range order {
		t, _ := model.ParseDate(d)
		out = append(out, service.CapacityEntry{Date: t, Total: byDate[d]})
	}
	return out, nil
}

// Result counts what Apply wrote.
type Result struct {
	Resources int
	Dates     int
}

// Apply upserts every resource and then its calendar.  It stops at the first
// failing resource; resources before it stay applied.
func Apply(ctx context.Context, inv *service.InventoryService, c Catalog, log *zap.Logger) (Result, error) {
	var res Result
	for _, spec := range c.Resources {
		kind, err := model.ParseResourceKind(spec.Kind)
		if err != nil {
			return res, err
		}
		entries, err := spec.Entries()
		if err != nil {
			return res, err
		}
		r, err := inv.UpsertResource(ctx, model.Resource{
			Kind:           kind,
			ID:             spec.ID,
			Name:           spec.Name,
			BasePriceCents: spec.BasePriceCents,
			Status:         model.ResourceStatus(strings.ToUpper(spec.Status)),
		})
		if err != nil {
			return res, fmt.Errorf("upsert %s/%s: %w", kind, spec.ID, err)
		}
		res.Resources++
		if len(entries) == 0 {
			log.Info("resource has no calendar", zap.String("resource", string(r.Kind)+"/"+r.ID))
			continue
		}
		n, err := inv.ProvisionCalendar(ctx, r.Kind, r.ID, entries)
		if err != nil {
			return res, fmt.Errorf("calendar %s/%s: %w", r.Kind, r.ID, err)
		}
		res.Dates += n
	}
	return res, nil
}
