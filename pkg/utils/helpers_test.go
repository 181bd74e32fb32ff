package utils

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		wantMeters             float64
		tolerance              float64
	}{
		{"same point", 40.7128, -74.0060, 40.7128, -74.0060, 0, 0.001},
		{"times square to empire state", 40.7580, -73.9855, 40.7484, -73.9857, 1067, 15},
		{"one degree of latitude", 40.0, -74.0, 41.0, -74.0, 111195, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.wantMeters) > tt.tolerance {
				t.Errorf("Haversine() = %v, want %v ± %v", got, tt.wantMeters, tt.tolerance)
			}
		})
	}
}

func TestHaversineMiles(t *testing.T) {
	got := HaversineMiles(40.0, -74.0, 41.0, -74.0)
	if math.Abs(got-69.09) > 0.1 {
		t.Errorf("HaversineMiles() = %v, want ~69.09", got)
	}
}

func TestRoundTo(t *testing.T) {
	if got := RoundTo(12.345678, 2); got != 12.35 {
		t.Errorf("RoundTo() = %v, want 12.35", got)
	}
	if got := RoundTo(40.7847782, 4); got != 40.7848 {
		t.Errorf("RoundTo() = %v, want 40.7848", got)
	}
}

func TestProjectorMatchesHaversine(t *testing.T) {
	p := NewProjector(40.75, -73.98)
	x, y := p.Project(40.76, -73.97)
	planar := math.Hypot(x, y)
	sphere := Haversine(40.75, -73.98, 40.76, -73.97)
	if math.Abs(planar-sphere)/sphere > 0.005 {
		t.Errorf("projected distance %v differs from great-circle %v", planar, sphere)
	}

	if x, y := p.Project(40.75, -73.98); x != 0 || y != 0 {
		t.Errorf("origin projects to (%v, %v), want (0, 0)", x, y)
	}
}
