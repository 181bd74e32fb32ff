package normalize

import "github.com/smartcity/mobility/internal/domain"

// Schema maps one source table's columns onto TripRecord fields.
// Empty column names are unmapped; the record field stays absent.
type Schema struct {
	Mode  domain.Mode
	Table string

	// KeyColumn is the mode's identifying column, required when set
	KeyColumn string
	// PickupTime is always required
	PickupTime  string
	DropoffTime string

	PickupLat  string
	PickupLon  string
	DropoffLat string
	DropoffLon string

	PickupZone  string
	DropoffZone string

	Passengers string
	Distance   string
	Fare       string
	Total      string

	Station string
	Line    string
	Base    string
	Rider   string
}

// Required lists the columns that must exist in the table shape
func (s Schema) Required() []string {
	if s.KeyColumn != "" {
		return []string{s.KeyColumn, s.PickupTime}
	}
	return []string{s.PickupTime}
}

// Columns lists every mapped column, required ones first
func (s Schema) Columns() []string {
	cols := s.Required()
	for _, c := range []string{
		s.DropoffTime,
		s.PickupLat, s.PickupLon, s.DropoffLat, s.DropoffLon,
		s.PickupZone, s.DropoffZone,
		s.Passengers, s.Distance, s.Fare, s.Total,
		s.Station, s.Line, s.Base, s.Rider,
	} {
		if c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// DefaultSchemas is the mapping table for the NYC TLC, MTA and Citi Bike
// tables. Yellow and green taxis differ only in their timestamp prefix.
func DefaultSchemas() map[domain.Mode]Schema {
	taxi := func(mode domain.Mode, table, prefix string) Schema {
		return Schema{
			Mode:        mode,
			Table:       table,
			PickupTime:  prefix + "_pickup_datetime",
			DropoffTime: prefix + "_dropoff_datetime",
			PickupLat:   "pickup_latitude",
			PickupLon:   "pickup_longitude",
			DropoffLat:  "dropoff_latitude",
			DropoffLon:  "dropoff_longitude",
			PickupZone:  "PULocationID",
			DropoffZone: "DOLocationID",
			Passengers:  "passenger_count",
			Distance:    "trip_distance",
			Fare:        "fare_amount",
			Total:       "total_amount",
		}
	}

	return map[domain.Mode]Schema{
		domain.ModeTaxiYellow: taxi(domain.ModeTaxiYellow, "yellow_tripdata", "tpep"),
		domain.ModeTaxiGreen:  taxi(domain.ModeTaxiGreen, "green_tripdata", "lpep"),
		domain.ModeFHV: {
			Mode:        domain.ModeFHV,
			Table:       "fhv_tripdata",
			KeyColumn:   "dispatching_base_num",
			PickupTime:  "pickup_datetime",
			DropoffTime: "dropOff_datetime",
			PickupZone:  "PUlocationID",
			DropoffZone: "DOlocationID",
			Base:        "dispatching_base_num",
		},
		domain.ModeSubway: {
			Mode:       domain.ModeSubway,
			Table:      "subway_ridership",
			KeyColumn:  "station_complex_id",
			PickupTime: "transit_timestamp",
			PickupLat:  "latitude",
			PickupLon:  "longitude",
			Passengers: "ridership",
			Station:    "station_complex",
			Line:       "line",
		},
		domain.ModeBikeshare: {
			Mode:        domain.ModeBikeshare,
			Table:       "citibike_tripdata",
			KeyColumn:   "ride_id",
			PickupTime:  "started_at",
			DropoffTime: "ended_at",
			PickupLat:   "start_lat",
			PickupLon:   "start_lng",
			DropoffLat:  "end_lat",
			DropoffLon:  "end_lng",
			Station:     "start_station_name",
			Rider:       "member_casual",
		},
	}
}
