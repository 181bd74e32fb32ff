package feature

import (
	"time"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/pkg/utils"
)

// Engine derives temporal, spatial and performance features from
// validated records. It performs no I/O.
type Engine struct {
	minDuration time.Duration
}

// New creates a feature engine. Durations shorter than minDuration leave
// the average speed undefined.
func New(minDuration time.Duration) *Engine {
	if minDuration <= 0 {
		minDuration = time.Second
	}
	return &Engine{minDuration: minDuration}
}

// Enrich layers derived features over rec. The record is referenced, not
// copied, and must not be modified afterwards.
func (e *Engine) Enrich(rec *domain.TripRecord) domain.EnrichedTrip {
	pt := rec.PickupTime
	f := domain.Features{
		Hour:    pt.Hour(),
		Weekday: pt.Weekday(),
		DayName: pt.Weekday().String(),
		Weekend: pt.Weekday() == time.Saturday || pt.Weekday() == time.Sunday,
		Month:   pt.Month(),
	}

	if d, ok := rec.Duration(); ok && d >= 0 {
		f.Duration = d
		f.HasDuration = true
	}

	if rec.PickupLocation != nil && rec.DropoffLocation != nil {
		miles := utils.HaversineMiles(rec.PickupLocation.Lat, rec.PickupLocation.Lon,
			rec.DropoffLocation.Lat, rec.DropoffLocation.Lon)
		f.StraightLineMiles = &miles
	}

	distance := rec.TripDistance
	if distance == nil {
		distance = f.StraightLineMiles
	}
	if distance != nil && f.HasDuration && f.Duration >= e.minDuration {
		speed := *distance / f.Duration.Hours()
		f.AvgSpeedMPH = &speed
	}

	if rec.FareAmount != nil && rec.TripDistance != nil && *rec.TripDistance > 0 {
		rpm := *rec.FareAmount / *rec.TripDistance
		f.RevenuePerMile = &rpm
	}

	return domain.EnrichedTrip{
		Record:      rec,
		Features:    f,
		PickupZone:  rec.PickupZoneID,
		DropoffZone: rec.DropoffZoneID,
	}
}

// EnrichAll enriches every record in place order
func (e *Engine) EnrichAll(records []domain.TripRecord) []domain.EnrichedTrip {
	out := make([]domain.EnrichedTrip, len(records))
	for i := range records {
		out[i] = e.Enrich(&records[i])
	}
	return out
}
