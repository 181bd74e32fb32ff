package validate

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/smartcity/mobility/internal/config"
	"github.com/smartcity/mobility/internal/domain"
)

func testConfig() config.ValidationConfig {
	return config.ValidationConfig{
		Bounds:            domain.NYCBoundingBox,
		MaxDuration:       24 * time.Hour,
		MinDuration:       time.Second,
		MaxSpeedMPH:       100,
		MaxTaxiDistanceMi: 100,
		MaxFare:           1000,
		MaxPassengers:     9,
	}
}

func ptr[T any](v T) *T { return &v }

var pickup = time.Date(2024, 3, 4, 8, 15, 0, 0, time.UTC)

func taxiTrip() domain.TripRecord {
	dropoff := pickup.Add(20 * time.Minute)
	return domain.TripRecord{
		Mode:            domain.ModeTaxiYellow,
		PickupTime:      pickup,
		DropoffTime:     &dropoff,
		PickupLocation:  &domain.LatLon{Lat: 40.7580, Lon: -73.9855},
		DropoffLocation: &domain.LatLon{Lat: 40.7794, Lon: -73.9632},
		PassengerCount:  ptr(1),
		TripDistance:    ptr(2.1),
		FareAmount:      ptr(12.5),
		TotalAmount:     ptr(16.0),
	}
}

func TestValidate(t *testing.T) {
	v := New(testConfig())

	tests := []struct {
		name   string
		mutate func(r *domain.TripRecord)
		want   []domain.Reason
	}{
		{"valid trip", func(r *domain.TripRecord) {}, nil},
		{"longitude west of the box", func(r *domain.TripRecord) {
			r.PickupLocation = &domain.LatLon{Lat: 40.75, Lon: -75.5}
		}, []domain.Reason{domain.ReasonOutOfBounds}},
		{"dropoff north of the box", func(r *domain.TripRecord) {
			r.DropoffLocation = &domain.LatLon{Lat: 41.2, Lon: -73.9}
		}, []domain.Reason{domain.ReasonOutOfBounds}},
		{"NaN coordinate", func(r *domain.TripRecord) {
			r.PickupLocation = &domain.LatLon{Lat: math.NaN(), Lon: -73.9}
		}, []domain.Reason{domain.ReasonOutOfBounds}},
		{"no coordinates is fine for taxis", func(r *domain.TripRecord) {
			r.PickupLocation, r.DropoffLocation = nil, nil
		}, nil},
		{"dropoff before pickup", func(r *domain.TripRecord) {
			d := pickup.Add(-time.Minute)
			r.DropoffTime = &d
		}, []domain.Reason{domain.ReasonBadTimeOrder}},
		{"zero duration", func(r *domain.TripRecord) {
			d := pickup
			r.DropoffTime = &d
		}, nil},
		{"longer than a day", func(r *domain.TripRecord) {
			d := pickup.Add(25 * time.Hour)
			r.DropoffTime = &d
		}, []domain.Reason{domain.ReasonImplausibleDuration}},
		{"missing dropoff time", func(r *domain.TripRecord) {
			r.DropoffTime = nil
		}, nil},
		{"negative distance", func(r *domain.TripRecord) {
			r.TripDistance = ptr(-1.0)
		}, []domain.Reason{domain.ReasonImplausibleDistance}},
		{"distance over the mode bound", func(r *domain.TripRecord) {
			r.TripDistance = ptr(150.0)
			d := pickup.Add(3 * time.Hour)
			r.DropoffTime = &d
		}, []domain.Reason{domain.ReasonImplausibleDistance}},
		{"faster than the speed limit", func(r *domain.TripRecord) {
			r.TripDistance = ptr(50.0)
		}, []domain.Reason{domain.ReasonImplausibleDistance}},
		{"fare too high", func(r *domain.TripRecord) {
			r.FareAmount = ptr(5000.0)
		}, []domain.Reason{domain.ReasonImplausibleFare}},
		{"negative total", func(r *domain.TripRecord) {
			r.TotalAmount = ptr(-3.0)
		}, []domain.Reason{domain.ReasonImplausibleFare}},
		{"too many passengers", func(r *domain.TripRecord) {
			r.PassengerCount = ptr(12)
		}, []domain.Reason{domain.ReasonImplausiblePassengerCount}},
		{"zero passengers measured", func(r *domain.TripRecord) {
			r.PassengerCount = ptr(0)
		}, nil},
		{"several failures keep a stable order", func(r *domain.TripRecord) {
			r.PassengerCount = ptr(-1)
			r.FareAmount = ptr(-1.0)
			r.PickupLocation = &domain.LatLon{Lat: 0, Lon: 0}
		}, []domain.Reason{domain.ReasonOutOfBounds, domain.ReasonImplausibleFare, domain.ReasonImplausiblePassengerCount}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := taxiTrip()
			tt.mutate(&rec)
			got := v.Validate(rec)

			if !reflect.DeepEqual(got.Reasons, tt.want) {
				t.Fatalf("Reasons = %v, want %v", got.Reasons, tt.want)
			}
			if got.Valid != (len(tt.want) == 0) {
				t.Errorf("Valid = %v", got.Valid)
			}
			if len(tt.want) > 0 && got.Reason != tt.want[0] {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.want[0])
			}
		})
	}
}

func TestValidateBikeshareRequiresBothEndpoints(t *testing.T) {
	v := New(testConfig())
	end := pickup.Add(12 * time.Minute)
	rec := domain.TripRecord{
		Mode:           domain.ModeBikeshare,
		PickupTime:     pickup,
		DropoffTime:    &end,
		PickupLocation: &domain.LatLon{Lat: 40.72, Lon: -73.99},
	}

	got := v.Validate(rec)
	if got.Valid || got.Reason != domain.ReasonOutOfBounds {
		t.Fatalf("Valid = %v Reason = %q, want out_of_bounds", got.Valid, got.Reason)
	}

	rec.DropoffLocation = &domain.LatLon{Lat: 40.73, Lon: -73.98}
	if got := v.Validate(rec); !got.Valid {
		t.Errorf("bike trip with both endpoints rejected: %v", got.Reasons)
	}
}

func TestValidateSubwayRidershipUnbounded(t *testing.T) {
	v := New(testConfig())
	rec := domain.TripRecord{
		Mode:           domain.ModeSubway,
		PickupTime:     pickup,
		PickupLocation: &domain.LatLon{Lat: 40.7527, Lon: -73.9772},
		PassengerCount: ptr(4200),
	}
	if got := v.Validate(rec); !got.Valid {
		t.Errorf("subway ridership rejected: %v", got.Reasons)
	}
}

func TestValidateDoesNotAliasInput(t *testing.T) {
	v := New(testConfig())
	rec := taxiTrip()
	rec.FareAmount = ptr(-1.0)
	_ = v.Validate(rec)
	if rec.Valid || rec.Reasons != nil {
		t.Error("Validate modified its argument")
	}
}

func TestValidateRevalidationClearsReasons(t *testing.T) {
	v := New(testConfig())
	rec := taxiTrip()
	rec.Reasons = []domain.Reason{domain.ReasonImplausibleFare}
	rec.Reason = domain.ReasonImplausibleFare
	got := v.Validate(rec)
	if !got.Valid || got.Reason != "" || got.Reasons != nil {
		t.Errorf("stale reasons kept: %+v", got)
	}
}

// Every record marked valid has ordered timestamps and in-box coordinates.
func TestValidInvariantHolds(t *testing.T) {
	v := New(testConfig())
	bb := domain.NYCBoundingBox
	rng := rand.New(rand.NewSource(42))

	randPoint := func() *domain.LatLon {
		if rng.Intn(4) == 0 {
			return nil
		}
		return &domain.LatLon{Lat: 40.2 + rng.Float64()*1.0, Lon: -74.6 + rng.Float64()*1.2}
	}

	for i := 0; i < 5000; i++ {
		rec := domain.TripRecord{
			Mode:            domain.AllModes[rng.Intn(len(domain.AllModes))],
			PickupTime:      pickup.Add(time.Duration(rng.Intn(3600)) * time.Second),
			PickupLocation:  randPoint(),
			DropoffLocation: randPoint(),
		}
		if rng.Intn(3) > 0 {
			d := rec.PickupTime.Add(time.Duration(rng.Intn(7200)-1800) * time.Second)
			rec.DropoffTime = &d
		}
		if rng.Intn(2) == 0 {
			rec.TripDistance = ptr(rng.Float64()*30 - 2)
		}

		got := v.Validate(rec)
		if !got.Valid {
			if len(got.Reasons) == 0 {
				t.Fatalf("invalid record without reasons: %+v", got)
			}
			continue
		}
		if got.DropoffTime != nil && got.DropoffTime.Before(got.PickupTime) {
			t.Fatalf("valid record with dropoff before pickup: %+v", got)
		}
		for _, p := range []*domain.LatLon{got.PickupLocation, got.DropoffLocation} {
			if p != nil && !bb.Contains(p.Lat, p.Lon) {
				t.Fatalf("valid record with coordinate %v outside the box", *p)
			}
		}
	}
}

func TestPartition(t *testing.T) {
	v := New(testConfig())
	good := taxiTrip()
	bad := taxiTrip()
	bad.PickupLocation = &domain.LatLon{Lat: 40.75, Lon: -75.5}

	valid, invalid := v.Partition([]domain.TripRecord{good, bad, good})
	if len(valid) != 2 || len(invalid) != 1 {
		t.Fatalf("got %d valid, %d invalid; want 2, 1", len(valid), len(invalid))
	}
	if invalid[0].Reason != domain.ReasonOutOfBounds {
		t.Errorf("Reason = %q", invalid[0].Reason)
	}
}
