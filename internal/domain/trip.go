package domain

import "time"

// LatLon is a WGS84 coordinate pair
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// LocalTime is a timestamp read from a column without a time zone. Its
// clock fields are wall-clock time in the city's zone, whatever location
// the driver attached.
type LocalTime time.Time

// Reason classifies why a record failed validation
type Reason string

const (
	ReasonOutOfBounds               Reason = "out_of_bounds"
	ReasonBadTimeOrder              Reason = "bad_time_order"
	ReasonImplausibleDuration       Reason = "implausible_duration"
	ReasonImplausibleDistance       Reason = "implausible_distance"
	ReasonImplausibleFare           Reason = "implausible_fare"
	ReasonImplausiblePassengerCount Reason = "implausible_passenger_count"
)

// AllReasons lists reasons in the order the validator reports them
var AllReasons = []Reason{
	ReasonOutOfBounds,
	ReasonBadTimeOrder,
	ReasonImplausibleDuration,
	ReasonImplausibleDistance,
	ReasonImplausibleFare,
	ReasonImplausiblePassengerCount,
}

// TripRecord is the unified representation of one movement event.
// Absent measures are nil, never zero.
type TripRecord struct {
	Mode      Mode   `json:"mode"`
	SourceKey string `json:"source_key,omitempty"`

	PickupTime  time.Time  `json:"pickup_time"`
	DropoffTime *time.Time `json:"dropoff_time,omitempty"`

	PickupLocation  *LatLon `json:"pickup_location,omitempty"`
	DropoffLocation *LatLon `json:"dropoff_location,omitempty"`
	PickupZoneID    *int    `json:"pickup_zone_id,omitempty"`
	DropoffZoneID   *int    `json:"dropoff_zone_id,omitempty"`

	PassengerCount *int     `json:"passenger_count,omitempty"`
	TripDistance   *float64 `json:"trip_distance,omitempty"`
	FareAmount     *float64 `json:"fare_amount,omitempty"`
	TotalAmount    *float64 `json:"total_amount,omitempty"`

	StationName string `json:"station_name,omitempty"`
	LineName    string `json:"line_name,omitempty"`
	BaseNumber  string `json:"base_number,omitempty"`
	RiderType   string `json:"rider_type,omitempty"`

	Valid   bool     `json:"valid"`
	Reason  Reason   `json:"reason,omitempty"`
	Reasons []Reason `json:"reasons,omitempty"`
}

// Duration returns the trip duration when both timestamps are present
func (t *TripRecord) Duration() (time.Duration, bool) {
	if t.DropoffTime == nil {
		return 0, false
	}
	return t.DropoffTime.Sub(t.PickupTime), true
}

// Features are values derived from a validated record
type Features struct {
	Hour        int           `json:"hour"`
	Weekday     time.Weekday  `json:"weekday"`
	DayName     string        `json:"day_name"`
	Weekend     bool          `json:"weekend"`
	Month       time.Month    `json:"month"`
	Duration    time.Duration `json:"duration"`
	HasDuration bool          `json:"has_duration"`

	StraightLineMiles *float64 `json:"straight_line_miles,omitempty"`
	AvgSpeedMPH       *float64 `json:"avg_speed_mph,omitempty"`
	RevenuePerMile    *float64 `json:"revenue_per_mile,omitempty"`
}

// EnrichedTrip layers derived features and resolved zones over a validated
// record. The record itself is shared and never modified.
type EnrichedTrip struct {
	Record   *TripRecord `json:"record"`
	Features Features    `json:"features"`

	PickupZone  *int `json:"pickup_zone,omitempty"`
	DropoffZone *int `json:"dropoff_zone,omitempty"`
}

// Endpoint selects the pickup or dropoff side of a trip
type Endpoint string

const (
	EndpointPickup  Endpoint = "pickup"
	EndpointDropoff Endpoint = "dropoff"
)

// Location returns the coordinate of the selected endpoint
func (e *EnrichedTrip) Location(ep Endpoint) *LatLon {
	if ep == EndpointDropoff {
		return e.Record.DropoffLocation
	}
	return e.Record.PickupLocation
}

// Zone returns the effective zone of the selected endpoint
func (e *EnrichedTrip) Zone(ep Endpoint) *int {
	if ep == EndpointDropoff {
		return e.DropoffZone
	}
	return e.PickupZone
}
