package domain

import (
	"sort"
	"strings"
	"time"
)

// BoundingBox represents a geographic rectangle
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Contains checks if a point is within the bounding box
func (bb *BoundingBox) Contains(lat, lon float64) bool {
	return lat >= bb.MinLat && lat <= bb.MaxLat &&
		lon >= bb.MinLon && lon <= bb.MaxLon
}

// NYCBoundingBox is the default validation box
var NYCBoundingBox = BoundingBox{
	MinLat: 40.4774,
	MaxLat: 40.9176,
	MinLon: -74.2591,
	MaxLon: -73.7004,
}

// MinHeatmapCellDeg is the smallest location heatmap cell, about 55 m
const MinHeatmapCellDeg = 0.0005

// Window is a half-open time interval [From, To); nil bounds are open
type Window struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Contains reports whether t falls inside the window
func (w Window) Contains(t time.Time) bool {
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && !t.Before(*w.To) {
		return false
	}
	return true
}

func (w Window) key() string {
	from, to := "*", "*"
	if w.From != nil {
		from = w.From.UTC().Format(time.RFC3339Nano)
	}
	if w.To != nil {
		to = w.To.UTC().Format(time.RFC3339Nano)
	}
	return from + ".." + to
}

// Query selects trips by mode and pickup time window. An empty mode list
// means every mode.
type Query struct {
	Modes  []Mode `json:"modes,omitempty"`
	Window Window `json:"window"`
}

// Includes reports whether the query selects the given mode
func (q Query) Includes(m Mode) bool {
	if len(q.Modes) == 0 {
		return true
	}
	for _, qm := range q.Modes {
		if qm == m {
			return true
		}
	}
	return false
}

// Key returns a canonical cache key fragment for the query
func (q Query) Key() string {
	modes := make([]string, 0, len(q.Modes))
	for _, m := range q.Modes {
		modes = append(modes, string(m))
	}
	sort.Strings(modes)
	m := "all"
	if len(modes) > 0 {
		m = strings.Join(modes, ",")
	}
	return m + "|" + q.Window.key()
}

// ResultStatus tells the presentation layer how to read a response
type ResultStatus string

const (
	// StatusOK means the data comes from the latest successful run
	StatusOK ResultStatus = "ok"
	// StatusStale means the last refresh failed and older data is served
	StatusStale ResultStatus = "stale"
	// StatusNoActivity means the data is current and the window holds no trips
	StatusNoActivity ResultStatus = "no_activity"
)

// Meta describes the provenance of a facade response
type Meta struct {
	Status           ResultStatus `json:"status"`
	DataVersion      uint64       `json:"data_version"`
	RunID            string       `json:"run_id"`
	DataLoadedAt     time.Time    `json:"data_loaded_at"`
	ComputedAt       time.Time    `json:"computed_at"`
	CacheHit         bool         `json:"cache_hit"`
	RefreshError     string       `json:"refresh_error,omitempty"`
	UnavailableModes []Mode       `json:"unavailable_modes,omitempty"`
}

// Result wraps facade output with its provenance
type Result[T any] struct {
	Data T    `json:"data"`
	Meta Meta `json:"meta"`
}

// ZoneCount is the number of trip endpoints in one zone
type ZoneCount struct {
	ZoneID  int    `json:"zone_id"`
	Name    string `json:"name,omitempty"`
	Borough string `json:"borough,omitempty"`
	Count   int    `json:"count"`
}

// NameCount is a labelled counter
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ModeSummary holds per-mode counts and performance metrics.
// Metrics are nil when no selected trip carries the underlying field.
type ModeSummary struct {
	Trips             int      `json:"trips"`
	Passengers        int      `json:"passengers"`
	AvgDurationMin    *float64 `json:"avg_duration_min,omitempty"`
	MedianDurationMin *float64 `json:"median_duration_min,omitempty"`
	AvgFare           *float64 `json:"avg_fare,omitempty"`
	MedianFare        *float64 `json:"median_fare,omitempty"`
	AvgSpeedMPH       *float64 `json:"avg_speed_mph,omitempty"`
	AvgDistance       *float64 `json:"avg_distance_mi,omitempty"`
	TotalRevenue      float64  `json:"total_revenue"`
}

// Summary aggregates the selected valid trips
type Summary struct {
	TotalTrips          int                  `json:"total_trips"`
	ByMode              map[Mode]ModeSummary `json:"by_mode"`
	HourlyDistribution  []int                `json:"hourly_distribution"`
	DailyDistribution   map[string]int       `json:"daily_distribution"`
	MonthlyDistribution map[int]int          `json:"monthly_distribution"`
	TopPickupZones      []ZoneCount          `json:"top_pickup_zones"`
	TopDropoffZones     []ZoneCount          `json:"top_dropoff_zones"`
	SubwayLines         []NameCount          `json:"subway_lines,omitempty"`
	SubwayStations      []NameCount          `json:"subway_stations,omitempty"`
	SubwayEntries       int                  `json:"subway_entries"`
	InvalidByReason     map[Reason]int       `json:"invalid_by_reason"`
	InvalidTrips        int                  `json:"invalid_trips"`
}

// HeatmapGrid is a 2D matrix ready for heatmap rendering
type HeatmapGrid struct {
	Kind      string       `json:"kind"`
	RowLabels []string     `json:"row_labels"`
	ColLabels []string     `json:"col_labels"`
	Values    [][]float64  `json:"values"`
	Max       float64      `json:"max"`
	Total     int          `json:"total"`
	Bounds    *BoundingBox `json:"bounds,omitempty"`
}

// CrossModal compares the hourly pickup profile of each mode
type CrossModal struct {
	Hourly map[Mode][]int `json:"hourly"`
}

// ModeLoad describes what one ETL run did with one mode's table
type ModeLoad struct {
	Rows             int    `json:"rows"`
	SchemaMismatches int    `json:"schema_mismatches"`
	Valid            int    `json:"valid"`
	Invalid          int    `json:"invalid"`
	Error            string `json:"error,omitempty"`
}

// RunStatus is the outcome of one ETL run
type RunStatus string

const (
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunSuperseded RunStatus = "superseded"
)

// RunReport records the counters and outcome of one ETL run
type RunReport struct {
	RunID       string            `json:"run_id"`
	Sequence    uint64            `json:"sequence"`
	Status      RunStatus         `json:"status"`
	StartedAt   time.Time         `json:"started_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Modes       map[Mode]ModeLoad `json:"modes"`
	Valid       int               `json:"valid"`
	Invalid     map[Reason]int    `json:"invalid"`
	Dropped     int               `json:"dropped"`
	Zones       int               `json:"zones"`
	Stations    int               `json:"stations"`
	Error       string            `json:"error,omitempty"`
	DataVersion uint64            `json:"data_version,omitempty"`
}

// CacheStatus reports aggregation cache health for the dashboard
type CacheStatus struct {
	Entries          int        `json:"entries"`
	Hits             uint64     `json:"hits"`
	Misses           uint64     `json:"misses"`
	Computations     uint64     `json:"computations"`
	Discarded        uint64     `json:"discarded"`
	DataVersion      uint64     `json:"data_version"`
	FreshnessSeconds float64    `json:"freshness_seconds"`
	SnapshotAgeSec   float64    `json:"snapshot_age_seconds"`
	Stale            bool       `json:"stale"`
	LastRun          *RunReport `json:"last_run,omitempty"`
}
