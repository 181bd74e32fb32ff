package http

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/service"
)

// Handler contains all HTTP handlers
type Handler struct {
	querySvc *service.QueryService
	loc      *time.Location
}

// NewHandler creates a new handler. Dates without an offset are read in loc.
func NewHandler(querySvc *service.QueryService, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{querySvc: querySvc, loc: loc}
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	status := h.querySvc.CacheStatus(c.Context())
	return c.JSON(fiber.Map{
		"status":       "ok",
		"service":      "mobility-etl",
		"version":      "1.0.0",
		"ready":        h.querySvc.Health(c.Context()) == nil,
		"data_version": status.DataVersion,
	})
}

// GetSummary returns trip counts, distributions and performance metrics
func (h *Handler) GetSummary(c *fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return err
	}
	res, err := h.querySvc.Summary(c.Context(), q)
	if err != nil {
		return queryError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": res.Data, "meta": res.Meta})
}

// GetHeatmap returns an hour/weekday or location grid
func (h *Handler) GetHeatmap(c *fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return err
	}
	kind, err := service.ParseHeatmapKind(c.Query("kind"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	ep, err := parseEndpoint(c.Query("endpoint"))
	if err != nil {
		return err
	}

	res, err := h.querySvc.Heatmap(c.Context(), service.HeatmapQuery{Query: q, Kind: kind, Endpoint: ep})
	if err != nil {
		return queryError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": res.Data, "meta": res.Meta})
}

// GetClusters returns congestion clusters for the selected trips
func (h *Handler) GetClusters(c *fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return err
	}
	ep, err := parseEndpoint(c.Query("endpoint"))
	if err != nil {
		return err
	}
	eps := c.QueryFloat("eps", 0)
	minPts := c.QueryInt("min_pts", 0)
	if eps < 0 || eps > 5000 || minPts < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "eps must be within 0..5000 meters and min_pts non-negative")
	}

	res, err := h.querySvc.Clusters(c.Context(), service.ClusterQuery{
		Query:     q,
		Endpoint:  ep,
		EpsMeters: eps,
		MinPts:    minPts,
	})
	if err != nil {
		return queryError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": res.Data, "meta": res.Meta})
}

// GetHotspots returns the per-hour hotspots of one mode from the last run
func (h *Handler) GetHotspots(c *fiber.Ctx) error {
	mode, err := domain.ParseMode(c.Query("mode", string(domain.ModeTaxiYellow)))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	res, err := h.querySvc.HourlyHotspots(c.Context(), mode)
	if err != nil {
		return queryError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": res.Data, "meta": res.Meta})
}

// GetCrossModal returns the hourly profile of each selected mode
func (h *Handler) GetCrossModal(c *fiber.Ctx) error {
	q, err := h.parseQuery(c)
	if err != nil {
		return err
	}
	res, err := h.querySvc.CrossModal(c.Context(), q)
	if err != nil {
		return queryError(err)
	}
	return c.JSON(fiber.Map{"success": true, "data": res.Data, "meta": res.Meta})
}

// GetStations returns bike docks and transit stops
func (h *Handler) GetStations(c *fiber.Ctx) error {
	var mode *domain.Mode
	if raw := c.Query("mode"); raw != "" {
		m, err := domain.ParseMode(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		mode = &m
	}
	res, err := h.querySvc.Stations(c.Context(), mode)
	if err != nil {
		return queryError(err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    res.Data,
		"count":   len(res.Data),
		"meta":    res.Meta,
	})
}

// GetCacheStatus returns aggregation cache counters and the last run
func (h *Handler) GetCacheStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.querySvc.CacheStatus(c.Context()),
	})
}

// Refresh requests an ETL run
func (h *Handler) Refresh(c *fiber.Ctx) error {
	accepted := h.querySvc.Refresh(c.Context())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"success":  true,
		"accepted": accepted,
	})
}

// parseQuery reads ?modes=yellow,subway&from=...&to=...
func (h *Handler) parseQuery(c *fiber.Ctx) (domain.Query, error) {
	var q domain.Query
	if raw := c.Query("modes"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			m, err := domain.ParseMode(part)
			if err != nil {
				return q, fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			q.Modes = append(q.Modes, m)
		}
	}

	var err error
	if q.Window.From, err = h.parseTime(c.Query("from")); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, "invalid from: "+err.Error())
	}
	if q.Window.To, err = h.parseTime(c.Query("to")); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, "invalid to: "+err.Error())
	}
	if q.Window.From != nil && q.Window.To != nil && !q.Window.From.Before(*q.Window.To) {
		return q, fiber.NewError(fiber.StatusBadRequest, "from must be before to")
	}
	return q, nil
}

func (h *Handler) parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, h.loc); err == nil {
			return &t, nil
		}
	}
	return nil, errors.New("expected RFC 3339 or YYYY-MM-DD")
}

func parseEndpoint(raw string) (domain.Endpoint, error) {
	switch domain.Endpoint(raw) {
	case "", domain.EndpointPickup:
		return domain.EndpointPickup, nil
	case domain.EndpointDropoff:
		return domain.EndpointDropoff, nil
	}
	return "", fiber.NewError(fiber.StatusBadRequest, "endpoint must be pickup or dropoff")
}

// queryError maps facade errors onto HTTP status codes
func queryError(err error) error {
	switch {
	case errors.Is(err, domain.ErrNoSnapshot):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Data is still loading")
	case errors.Is(err, domain.ErrDataSourceUnavailable):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Data source unavailable")
	case errors.Is(err, domain.ErrNoValidRecords):
		return fiber.NewError(fiber.StatusServiceUnavailable, "No valid records loaded")
	case errors.Is(err, domain.ErrVersionSuperseded):
		return fiber.NewError(fiber.StatusServiceUnavailable, "Data is being refreshed, retry")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "Failed to compute aggregate")
}
