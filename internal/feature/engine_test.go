package feature

import (
	"math"
	"testing"
	"time"

	"github.com/smartcity/mobility/internal/config"
	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/normalize"
	"github.com/smartcity/mobility/internal/validate"
)

func ptr[T any](v T) *T { return &v }

func TestEnrichTemporal(t *testing.T) {
	e := New(time.Second)
	rec := domain.TripRecord{
		Mode:       domain.ModeSubway,
		PickupTime: time.Date(2024, 6, 8, 17, 45, 0, 0, time.UTC),
	}

	got := e.Enrich(&rec)
	f := got.Features
	if f.Hour != 17 || f.Weekday != time.Saturday || f.DayName != "Saturday" || !f.Weekend || f.Month != time.June {
		t.Errorf("unexpected temporal features %+v", f)
	}
	if f.HasDuration || f.AvgSpeedMPH != nil || f.StraightLineMiles != nil || f.RevenuePerMile != nil {
		t.Errorf("features without inputs should be undefined, got %+v", f)
	}
	if got.Record != &rec {
		t.Error("enriched trip should reference the validated record")
	}
}

func TestEnrichSpeed(t *testing.T) {
	e := New(time.Second)
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		duration  time.Duration
		distance  *float64
		wantSpeed *float64
	}{
		{"half hour", 30 * time.Minute, ptr(6.0), ptr(12.0)},
		{"zero duration", 0, ptr(1.0), nil},
		{"sub-second duration", 500 * time.Millisecond, ptr(0.1), nil},
		{"one second", time.Second, ptr(0.01), ptr(36.0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := start.Add(tt.duration)
			rec := domain.TripRecord{PickupTime: start, DropoffTime: &end, TripDistance: tt.distance}
			got := e.Enrich(&rec).Features.AvgSpeedMPH
			switch {
			case tt.wantSpeed == nil && got != nil:
				t.Errorf("AvgSpeedMPH = %v, want undefined", *got)
			case tt.wantSpeed != nil && got == nil:
				t.Errorf("AvgSpeedMPH undefined, want %v", *tt.wantSpeed)
			case tt.wantSpeed != nil && math.Abs(*got-*tt.wantSpeed) > 1e-9:
				t.Errorf("AvgSpeedMPH = %v, want %v", *got, *tt.wantSpeed)
			}
		})
	}
}

func TestEnrichStraightLineFallback(t *testing.T) {
	e := New(time.Second)
	start := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rec := domain.TripRecord{
		Mode:            domain.ModeBikeshare,
		PickupTime:      start,
		DropoffTime:     &end,
		PickupLocation:  &domain.LatLon{Lat: 40.70, Lon: -74.00},
		DropoffLocation: &domain.LatLon{Lat: 40.80, Lon: -74.00},
	}

	f := e.Enrich(&rec).Features
	if f.StraightLineMiles == nil {
		t.Fatal("StraightLineMiles undefined")
	}
	if math.Abs(*f.StraightLineMiles-6.91) > 0.05 {
		t.Errorf("StraightLineMiles = %v, want ~6.91", *f.StraightLineMiles)
	}
	if f.AvgSpeedMPH == nil || math.Abs(*f.AvgSpeedMPH-*f.StraightLineMiles) > 1e-9 {
		t.Errorf("AvgSpeedMPH = %v, want straight-line miles per hour", f.AvgSpeedMPH)
	}
}

func TestEnrichRevenuePerMile(t *testing.T) {
	e := New(time.Second)
	rec := domain.TripRecord{PickupTime: time.Now(), FareAmount: ptr(20.0), TripDistance: ptr(4.0)}
	if rpm := e.Enrich(&rec).Features.RevenuePerMile; rpm == nil || *rpm != 5 {
		t.Errorf("RevenuePerMile = %v, want 5", rpm)
	}

	rec.TripDistance = ptr(0.0)
	if rpm := e.Enrich(&rec).Features.RevenuePerMile; rpm != nil {
		t.Errorf("RevenuePerMile = %v for zero distance, want undefined", *rpm)
	}
}

func TestEnrichCarriesSourceZones(t *testing.T) {
	e := New(time.Second)
	rec := domain.TripRecord{PickupTime: time.Now(), PickupZoneID: ptr(161)}
	got := e.Enrich(&rec)
	if got.PickupZone == nil || *got.PickupZone != 161 || got.DropoffZone != nil {
		t.Errorf("zones = %v, %v", got.PickupZone, got.DropoffZone)
	}
}

// A synthetic yellow-taxi row flows through normalization, validation and
// enrichment with a derived speed equal to distance over duration.
func TestYellowTaxiRoundTrip(t *testing.T) {
	n := normalize.New(normalize.DefaultSchemas(), time.UTC)
	table := domain.Table{
		Columns: []string{
			"tpep_pickup_datetime", "tpep_dropoff_datetime", "passenger_count",
			"trip_distance", "fare_amount", "total_amount",
			"pickup_latitude", "pickup_longitude", "dropoff_latitude", "dropoff_longitude",
		},
		Rows: [][]any{{
			"2024-03-04 08:15:00", "2024-03-04 08:39:00", int64(1),
			"4.2", 19.1, 24.6,
			40.7505, -73.9934, 40.7812, -73.9665,
		}},
	}

	res := n.Normalize(domain.ModeTaxiYellow, table)
	if len(res.Records) != 1 {
		t.Fatalf("normalize: %d records, err %v", len(res.Records), res.Err)
	}

	v := validate.New(config.ValidationConfig{
		Bounds:            domain.NYCBoundingBox,
		MaxDuration:       24 * time.Hour,
		MinDuration:       time.Second,
		MaxSpeedMPH:       100,
		MaxTaxiDistanceMi: 100,
		MaxFare:           1000,
		MaxPassengers:     9,
	})
	rec := v.Validate(res.Records[0])
	if !rec.Valid {
		t.Fatalf("validate: %v", rec.Reasons)
	}

	enriched := New(time.Second).Enrich(&rec)
	want := 4.2 / (24.0 / 60.0)
	got := enriched.Features.AvgSpeedMPH
	if got == nil || math.Abs(*got-want) > 1e-9 {
		t.Fatalf("AvgSpeedMPH = %v, want %v", got, want)
	}
	if enriched.Features.Duration != 24*time.Minute {
		t.Errorf("Duration = %s", enriched.Features.Duration)
	}
}

func TestEnrichAll(t *testing.T) {
	e := New(0)
	recs := []domain.TripRecord{
		{PickupTime: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)},
		{PickupTime: time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)},
	}
	out := e.EnrichAll(recs)
	if len(out) != 2 || out[1].Features.Hour != 2 || out[1].Record != &recs[1] {
		t.Errorf("EnrichAll mismatch: %+v", out)
	}
}
