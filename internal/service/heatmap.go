package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/pipeline"
)

// HeatmapKind selects the axes of a heatmap grid
type HeatmapKind string

const (
	// HeatmapHourWeekday counts pickups by weekday (rows) and hour (columns)
	HeatmapHourWeekday HeatmapKind = "hour_weekday"
	// HeatmapLocation counts endpoints by latitude (rows) and longitude (columns) cells
	HeatmapLocation HeatmapKind = "location"
)

// ParseHeatmapKind accepts the heatmap kind names used by the API
func ParseHeatmapKind(s string) (HeatmapKind, error) {
	switch HeatmapKind(s) {
	case "", HeatmapHourWeekday:
		return HeatmapHourWeekday, nil
	case HeatmapLocation:
		return HeatmapLocation, nil
	}
	return "", fmt.Errorf("unknown heatmap kind %q", s)
}

// HeatmapQuery selects trips and the grid to aggregate them into
type HeatmapQuery struct {
	domain.Query
	Kind     HeatmapKind
	Endpoint domain.Endpoint
}

func (q HeatmapQuery) key() string {
	ep := q.Endpoint
	if ep == "" {
		ep = domain.EndpointPickup
	}
	return string(q.Kind) + "|" + string(ep) + "|" + q.Query.Key()
}

// weekdays in Monday-first row order
var weekdays = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Heatmap aggregates the selected trips into a 2D grid
func (s *QueryService) Heatmap(ctx context.Context, q HeatmapQuery) (domain.Result[domain.HeatmapGrid], error) {
	if q.Kind == "" {
		q.Kind = HeatmapHourWeekday
	}
	return cached[domain.HeatmapGrid](ctx, s, "heatmap", q.Query, q.key(), func(ctx context.Context, snap *pipeline.Snapshot) (domain.HeatmapGrid, int, error) {
		trips := selectTrips(snap, q.Query)
		switch q.Kind {
		case HeatmapHourWeekday:
			return hourWeekdayGrid(trips), len(trips), nil
		case HeatmapLocation:
			grid := locationGrid(trips, q.Endpoint, s.opts.Bounds, s.opts.CellDeg)
			return grid, grid.Total, nil
		}
		return domain.HeatmapGrid{}, 0, fmt.Errorf("service: unknown heatmap kind %q", q.Kind)
	})
}

func hourWeekdayGrid(trips []*domain.EnrichedTrip) domain.HeatmapGrid {
	grid := domain.HeatmapGrid{
		Kind:      string(HeatmapHourWeekday),
		RowLabels: make([]string, len(weekdays)),
		ColLabels: make([]string, 24),
		Values:    make([][]float64, len(weekdays)),
	}
	row := make(map[time.Weekday]int, len(weekdays))
	for i, d := range weekdays {
		grid.RowLabels[i] = d.String()
		grid.Values[i] = make([]float64, 24)
		row[d] = i
	}
	for h := range grid.ColLabels {
		grid.ColLabels[h] = strconv.Itoa(h)
	}

	for _, t := range trips {
		v := &grid.Values[row[t.Features.Weekday]][t.Features.Hour]
		*v++
		if *v > grid.Max {
			grid.Max = *v
		}
		grid.Total++
	}
	return grid
}

// locationGrid bins endpoints into cellDeg cells over bounds. Endpoints
// without a coordinate or outside bounds are not counted.
func locationGrid(trips []*domain.EnrichedTrip, ep domain.Endpoint, bounds domain.BoundingBox, cellDeg float64) domain.HeatmapGrid {
	rows := int(math.Ceil((bounds.MaxLat - bounds.MinLat) / cellDeg))
	cols := int(math.Ceil((bounds.MaxLon - bounds.MinLon) / cellDeg))
	b := bounds
	grid := domain.HeatmapGrid{
		Kind:      string(HeatmapLocation),
		RowLabels: make([]string, rows),
		ColLabels: make([]string, cols),
		Values:    make([][]float64, rows),
		Bounds:    &b,
	}
	for r := range grid.Values {
		grid.Values[r] = make([]float64, cols)
		grid.RowLabels[r] = strconv.FormatFloat(bounds.MinLat+float64(r)*cellDeg, 'f', 4, 64)
	}
	for c := range grid.ColLabels {
		grid.ColLabels[c] = strconv.FormatFloat(bounds.MinLon+float64(c)*cellDeg, 'f', 4, 64)
	}

	for _, t := range trips {
		loc := t.Location(ep)
		if loc == nil || !bounds.Contains(loc.Lat, loc.Lon) {
			continue
		}
		r := min(int((loc.Lat-bounds.MinLat)/cellDeg), rows-1)
		c := min(int((loc.Lon-bounds.MinLon)/cellDeg), cols-1)
		grid.Values[r][c]++
		if grid.Values[r][c] > grid.Max {
			grid.Max = grid.Values[r][c]
		}
		grid.Total++
	}
	return grid
}
