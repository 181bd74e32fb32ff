package domain

import "github.com/paulmach/orb"

// Zone is a named polygon region with a stable identifier
type Zone struct {
	ID          int          `json:"id"`
	Borough     string       `json:"borough"`
	Name        string       `json:"name"`
	ServiceZone string       `json:"service_zone,omitempty"`
	Geometry    orb.Geometry `json:"-"`
}

// Station is a fixed point location such as a bike dock or subway stop
type Station struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Mode         Mode   `json:"mode"`
	Location     LatLon `json:"location"`
	Capacity     *int   `json:"capacity,omitempty"`
	ZoneID       *int   `json:"zone_id,omitempty"`
	City         string `json:"city,omitempty"`
	SystemName   string `json:"system_name,omitempty"`
	StationType  string `json:"station_type,omitempty"`
	Year         *int   `json:"year,omitempty"`
	YearCategory string `json:"year_category,omitempty"`
}

// YearCategory buckets a station by the year it was recorded
func YearCategory(year int) string {
	switch {
	case year >= 2020:
		return "Recent"
	case year >= 2015:
		return "Historical"
	default:
		return "Legacy"
	}
}
