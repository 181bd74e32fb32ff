package zone

import (
	"testing"

	"github.com/paulmach/orb"

	"github.com/smartcity/mobility/internal/domain"
)

func square(minLon, minLat, maxLon, maxLat float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}
}

func testZones() []domain.Zone {
	return []domain.Zone{
		{ID: 7, Name: "East", Geometry: square(-73.95, 40.70, -73.90, 40.75)},
		{ID: 3, Name: "West", Geometry: square(-74.00, 40.70, -73.95, 40.75)},
		// overlaps West, higher id loses
		{ID: 12, Name: "Overlap", Geometry: square(-73.99, 40.71, -73.96, 40.74)},
		{ID: 20, Name: "Islands", Geometry: orb.MultiPolygon{
			square(-73.80, 40.60, -73.79, 40.61),
			square(-73.78, 40.60, -73.77, 40.61),
		}},
		{ID: 99, Name: "Unknown"},
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(testZones())
	if r.Len() != 4 {
		t.Fatalf("Len() = %d, want 4 zones with geometry", r.Len())
	}

	tests := []struct {
		name string
		p    domain.LatLon
		want int
	}{
		{"inside east", domain.LatLon{Lat: 40.72, Lon: -73.92}, 7},
		{"inside west only", domain.LatLon{Lat: 40.705, Lon: -73.995}, 3},
		{"overlap goes to lowest id", domain.LatLon{Lat: 40.72, Lon: -73.97}, 3},
		{"second part of multipolygon", domain.LatLon{Lat: 40.605, Lon: -73.775}, 20},
		{"just outside east falls back to nearest centroid", domain.LatLon{Lat: 40.7505, Lon: -73.9001}, 7},
		{"far away still resolves", domain.LatLon{Lat: 40.59, Lon: -73.70}, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.p)
			if !ok || got != tt.want {
				t.Errorf("Resolve(%v) = %d, %v; want %d", tt.p, got, ok, tt.want)
			}
		})
	}
}

func TestResolveEmpty(t *testing.T) {
	r := NewResolver(nil)
	if _, ok := r.Resolve(domain.LatLon{Lat: 40.7, Lon: -73.9}); ok {
		t.Error("Resolve() ok with no zones")
	}
}

func TestResolveIdempotent(t *testing.T) {
	r := NewResolver(testZones())
	s := r.NewSession(4, 100)
	points := []domain.LatLon{
		{Lat: 40.72, Lon: -73.97},
		{Lat: 40.7500, Lon: -73.9500},
		{Lat: 40.65, Lon: -73.85},
	}
	for _, p := range points {
		first, _ := r.Resolve(p)
		second, _ := r.Resolve(p)
		viaSession1, _ := s.Resolve(p)
		viaSession2, _ := s.Resolve(p)
		if first != second || viaSession1 != viaSession2 || first != viaSession1 {
			t.Errorf("Resolve(%v) not idempotent: %d %d %d %d", p, first, second, viaSession1, viaSession2)
		}
	}
}

func TestSessionMemoizesBuckets(t *testing.T) {
	r := NewResolver(testZones())
	s := r.NewSession(4, 100)

	s.Resolve(domain.LatLon{Lat: 40.72001, Lon: -73.92001})
	s.Resolve(domain.LatLon{Lat: 40.72004, Lon: -73.92003})
	s.Resolve(domain.LatLon{Lat: 40.73, Lon: -73.92})

	hits, misses := s.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("Stats() = %d hits, %d misses; want 1, 2", hits, misses)
	}
}

func TestResolveTrip(t *testing.T) {
	r := NewResolver(testZones())
	s := r.NewSession(4, 100)
	source := 161

	trips := []domain.EnrichedTrip{
		{
			Record: &domain.TripRecord{
				PickupLocation:  &domain.LatLon{Lat: 40.72, Lon: -73.92},
				DropoffLocation: &domain.LatLon{Lat: 40.72, Lon: -73.99},
			},
			PickupZone: &source,
		},
		{Record: &domain.TripRecord{}},
	}

	got := s.ResolveAll(trips)
	if got[0].Pickup == nil || *got[0].Pickup != 161 {
		t.Errorf("source zone should be kept, got %v", got[0].Pickup)
	}
	if got[0].Dropoff == nil || *got[0].Dropoff != 3 {
		t.Errorf("dropoff zone = %v, want 3", got[0].Dropoff)
	}
	if got[1].Pickup != nil || got[1].Dropoff != nil {
		t.Error("trip without coordinates should stay unresolved")
	}
	if trips[0].DropoffZone != nil {
		t.Error("ResolveAll modified the enriched trip")
	}
}
