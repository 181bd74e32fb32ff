package postgres

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/paulmach/orb"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/pkg/utils"
)

const mockTimeLayout = "2006-01-02 15:04:05"

// hotspot is a synthetic activity centre
type hotspot struct {
	lat, lon float64
	name     string
	borough  string
	weight   float64
}

// Key areas in New York City with higher activity
var mockHotspots = []hotspot{
	{40.7580, -73.9855, "Times Square", "Manhattan", 1.3},
	{40.7506, -73.9935, "Penn Station", "Manhattan", 1.2},
	{40.7527, -73.9772, "Grand Central", "Manhattan", 1.2},
	{40.7359, -73.9911, "Union Square", "Manhattan", 1.0},
	{40.7069, -74.0113, "Financial District", "Manhattan", 0.9},
	{40.7081, -73.9571, "Williamsburg", "Brooklyn", 0.8},
	{40.6928, -73.9903, "Downtown Brooklyn", "Brooklyn", 0.8},
	{40.7447, -73.9485, "Long Island City", "Queens", 0.7},
	{40.7769, -73.8740, "LaGuardia Airport", "Queens", 0.9},
	{40.6413, -73.7781, "JFK Airport", "Queens", 0.9},
}

// MockRepository serves deterministic synthetic NYC data for demo mode
type MockRepository struct {
	seed    int64
	perMode int
	start   time.Time
}

// NewMockRepository creates a mock repository producing perMode rows per table
func NewMockRepository(seed int64, perMode int) *MockRepository {
	if perMode <= 0 {
		perMode = 2000
	}
	return &MockRepository{
		seed:    seed,
		perMode: perMode,
		start:   time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
	}
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}

// Zones returns one square zone around each hotspot, ids in hotspot order
func (r *MockRepository) Zones(ctx context.Context) ([]domain.Zone, error) {
	const half = 0.006
	zones := make([]domain.Zone, 0, len(mockHotspots))
	for i, h := range mockHotspots {
		ring := orb.Ring{
			{h.lon - half, h.lat - half},
			{h.lon + half, h.lat - half},
			{h.lon + half, h.lat + half},
			{h.lon - half, h.lat + half},
			{h.lon - half, h.lat - half},
		}
		zones = append(zones, domain.Zone{
			ID:          i + 1,
			Borough:     h.borough,
			Name:        h.name,
			ServiceZone: "Yellow Zone",
			Geometry:    orb.Polygon{ring},
		})
	}
	return zones, nil
}

// Stations returns a bike dock and a subway stop per hotspot
func (r *MockRepository) Stations(ctx context.Context) ([]domain.Station, error) {
	stations := make([]domain.Station, 0, 2*len(mockHotspots))
	for i, h := range mockHotspots {
		capacity := 20 + 5*i
		year := 2013 + i
		stations = append(stations,
			domain.Station{
				ID:          fmt.Sprintf("CB%03d", i+1),
				Name:        h.name + " Dock",
				Mode:        domain.ModeBikeshare,
				Location:    domain.LatLon{Lat: h.lat + 0.001, Lon: h.lon},
				Capacity:    &capacity,
				City:        "New York",
				SystemName:  "Citi Bike",
				StationType: "classic",
				Year:        &year,
			},
			domain.Station{
				ID:          fmt.Sprintf("MTA%03d", i+1),
				Name:        h.name,
				Mode:        domain.ModeSubway,
				Location:    domain.LatLon{Lat: h.lat, Lon: h.lon + 0.001},
				City:        "New York",
				SystemName:  "MTA New York City Transit",
				StationType: "subway",
			},
		)
	}
	return stations, nil
}

// FetchTrips generates the mode's raw table in its source column layout
func (r *MockRepository) FetchTrips(ctx context.Context, mode domain.Mode) (domain.Table, error) {
	if err := ctx.Err(); err != nil {
		return domain.Table{}, err
	}
	offset := int64(0)
	for i, m := range domain.AllModes {
		if m == mode {
			offset = int64(i+1) * 7919
		}
	}
	rng := rand.New(rand.NewSource(r.seed + offset))

	switch mode {
	case domain.ModeTaxiYellow:
		return r.taxiTable(rng, "tpep", 1.0), nil
	case domain.ModeTaxiGreen:
		return r.taxiTable(rng, "lpep", 0.3), nil
	case domain.ModeFHV:
		return r.fhvTable(rng), nil
	case domain.ModeSubway:
		return r.subwayTable(rng), nil
	case domain.ModeBikeshare:
		return r.bikeTable(rng), nil
	}
	return domain.Table{}, fmt.Errorf("mock: unknown mode %s", mode)
}

// pickupTime draws a timestamp within the week, weighted towards rush hours
func (r *MockRepository) pickupTime(rng *rand.Rand) time.Time {
	day := rng.Intn(7)
	var hour int
	for {
		hour = rng.Intn(24)
		if rng.Float64()*100 < hourlyActivity(hour, time.Weekday((int(time.Monday)+day)%7)) {
			break
		}
	}
	return r.start.Add(time.Duration(day)*24*time.Hour +
		time.Duration(hour)*time.Hour +
		time.Duration(rng.Intn(3600))*time.Second)
}

// hourlyActivity returns 0-100 based on time patterns
func hourlyActivity(hour int, weekday time.Weekday) float64 {
	if weekday == time.Saturday || weekday == time.Sunday {
		return 35
	}
	switch {
	case hour >= 7 && hour <= 9:
		return 90
	case hour >= 17 && hour <= 19:
		return 95
	case hour >= 12 && hour <= 14:
		return 60
	case hour >= 22 || hour <= 5:
		return 15
	default:
		return 45
	}
}

// point draws a coordinate near a weighted hotspot, within ~400m
func point(rng *rand.Rand) (lat, lon float64, zoneID int) {
	var total float64
	for _, h := range mockHotspots {
		total += h.weight
	}
	pick := rng.Float64() * total
	idx := 0
	for i, h := range mockHotspots {
		pick -= h.weight
		if pick <= 0 {
			idx = i
			break
		}
	}
	h := mockHotspots[idx]
	return h.lat + (rng.Float64()-0.5)*0.008, h.lon + (rng.Float64()-0.5)*0.008, idx + 1
}

func (r *MockRepository) taxiTable(rng *rand.Rand, prefix string, share float64) domain.Table {
	n := int(float64(r.perMode) * share)
	t := domain.Table{Columns: []string{
		prefix + "_pickup_datetime", prefix + "_dropoff_datetime",
		"passenger_count", "trip_distance", "PULocationID", "DOLocationID",
		"fare_amount", "total_amount",
		"pickup_latitude", "pickup_longitude", "dropoff_latitude", "dropoff_longitude",
	}}
	for i := 0; i < n; i++ {
		pickup := r.pickupTime(rng)
		pLat, pLon, pZone := point(rng)
		dLat, dLon, dZone := point(rng)
		distance := 0.5 + rng.Float64()*8
		minutes := distance*3 + rng.Float64()*10
		dropoff := pickup.Add(time.Duration(minutes * float64(time.Minute)))
		fare := 3 + distance*2.5
		passengers := any(int64(1 + rng.Intn(4)))

		// a few rows carry the data quality problems seen in the raw feeds
		switch i % 97 {
		case 13:
			pLon = -75.5
		case 41:
			dropoff = pickup.Add(-5 * time.Minute)
		case 67:
			fare = 5000
		case 89:
			passengers = nil
		}

		t.Rows = append(t.Rows, []any{
			pickup.Format(mockTimeLayout), dropoff.Format(mockTimeLayout),
			passengers, utils.RoundTo(distance, 2), int64(pZone), int64(dZone),
			utils.RoundTo(fare, 2), utils.RoundTo(fare*1.25, 2),
			pLat, pLon, dLat, dLon,
		})
	}
	return t
}

func (r *MockRepository) fhvTable(rng *rand.Rand) domain.Table {
	n := r.perMode / 2
	bases := []string{"B02510", "B02617", "B02682", "B02764", "B02835"}
	t := domain.Table{Columns: []string{
		"dispatching_base_num", "pickup_datetime", "dropOff_datetime", "PUlocationID", "DOlocationID",
	}}
	for i := 0; i < n; i++ {
		pickup := r.pickupTime(rng)
		dropoff := pickup.Add(time.Duration(5+rng.Intn(40)) * time.Minute)
		var base any = bases[rng.Intn(len(bases))]
		if i%113 == 7 {
			base = nil
		}
		t.Rows = append(t.Rows, []any{
			base, pickup.Format(mockTimeLayout), dropoff.Format(mockTimeLayout),
			int64(1 + rng.Intn(len(mockHotspots))), int64(1 + rng.Intn(len(mockHotspots))),
		})
	}
	return t
}

func (r *MockRepository) subwayTable(rng *rand.Rand) domain.Table {
	lines := []string{"1", "2", "3", "4", "5", "6", "7", "A", "C", "E", "L", "N", "Q", "R"}
	t := domain.Table{Columns: []string{
		"station_complex_id", "transit_timestamp", "station_complex", "line", "ridership", "latitude", "longitude",
	}}
	for i := 0; i < r.perMode/4; i++ {
		idx := rng.Intn(len(mockHotspots))
		h := mockHotspots[idx]
		ts := r.pickupTime(rng).Truncate(time.Hour)
		ridership := int64(float64(50+rng.Intn(400)) * h.weight * hourlyActivity(ts.Hour(), ts.Weekday()) / 50)
		t.Rows = append(t.Rows, []any{
			fmt.Sprintf("MTA%03d", idx+1), ts.Format(mockTimeLayout), h.name,
			lines[rng.Intn(len(lines))], ridership, h.lat, h.lon + 0.001,
		})
	}
	return t
}

func (r *MockRepository) bikeTable(rng *rand.Rand) domain.Table {
	t := domain.Table{Columns: []string{
		"ride_id", "started_at", "ended_at", "start_station_name", "member_casual",
		"start_lat", "start_lng", "end_lat", "end_lng",
	}}
	riders := []string{"member", "member", "member", "casual"}
	for i := 0; i < r.perMode/2; i++ {
		started := r.pickupTime(rng)
		ended := started.Add(time.Duration(3+rng.Intn(30)) * time.Minute)
		sLat, sLon, sZone := point(rng)
		eLat, eLon, _ := point(rng)
		var endLat, endLon any = eLat, eLon
		if i%71 == 11 {
			// docked elsewhere without a recorded end position
			endLat, endLon = nil, nil
		}
		t.Rows = append(t.Rows, []any{
			fmt.Sprintf("R%08X", rng.Uint32()), started.Format(mockTimeLayout), ended.Format(mockTimeLayout),
			mockHotspots[sZone-1].name + " Dock", riders[rng.Intn(len(riders))],
			sLat, sLon, endLat, endLon,
		})
	}
	return t
}
