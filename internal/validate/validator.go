package validate

import (
	"math"
	"time"

	"github.com/smartcity/mobility/internal/config"
	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/pkg/utils"
)

// Limits are the mode-specific plausibility bounds. A zero upper bound
// means the measure is not bounded above for the mode.
type Limits struct {
	// RequireEndpoints marks modes whose records must carry both coordinates
	RequireEndpoints bool
	MaxDistanceMi    float64
	MaxFare          float64
	MaxPassengers    int
}

// DefaultLimits derives per-mode limits from the configured thresholds.
// Subway passenger counts are ridership totals and only need to be
// non-negative.
func DefaultLimits(cfg config.ValidationConfig) map[domain.Mode]Limits {
	taxi := Limits{
		MaxDistanceMi: cfg.MaxTaxiDistanceMi,
		MaxFare:       cfg.MaxFare,
		MaxPassengers: cfg.MaxPassengers,
	}
	return map[domain.Mode]Limits{
		domain.ModeTaxiYellow: taxi,
		domain.ModeTaxiGreen:  taxi,
		domain.ModeFHV:        taxi,
		domain.ModeSubway:     {},
		domain.ModeBikeshare: {
			RequireEndpoints: true,
			MaxDistanceMi:    cfg.MaxTaxiDistanceMi,
			MaxFare:          cfg.MaxFare,
			MaxPassengers:    1,
		},
	}
}

// Validator classifies TripRecords against the bounding box and the
// plausibility thresholds. It holds no mutable state and is safe for
// concurrent use.
type Validator struct {
	bounds      domain.BoundingBox
	maxDuration time.Duration
	minDuration time.Duration
	maxSpeedMPH float64
	limits      map[domain.Mode]Limits
}

// New creates a validator with the default per-mode limits
func New(cfg config.ValidationConfig) *Validator {
	return NewWithLimits(cfg, DefaultLimits(cfg))
}

// NewWithLimits creates a validator with explicit per-mode limits
func NewWithLimits(cfg config.ValidationConfig, limits map[domain.Mode]Limits) *Validator {
	copied := make(map[domain.Mode]Limits, len(limits))
	for m, l := range limits {
		copied[m] = l
	}
	return &Validator{
		bounds:      cfg.Bounds,
		maxDuration: cfg.MaxDuration,
		minDuration: cfg.MinDuration,
		maxSpeedMPH: cfg.MaxSpeedMPH,
		limits:      copied,
	}
}

// Validate returns a copy of rec with Valid, Reason and Reasons set.
// Any failed rule makes the whole record invalid.
func (v *Validator) Validate(rec domain.TripRecord) domain.TripRecord {
	found := make(map[domain.Reason]bool, 2)
	lim := v.limits[rec.Mode]

	if !v.inBounds(rec.PickupLocation, lim.RequireEndpoints) ||
		!v.inBounds(rec.DropoffLocation, lim.RequireEndpoints) {
		found[domain.ReasonOutOfBounds] = true
	}

	d, hasDuration := rec.Duration()
	if hasDuration {
		if d < 0 {
			found[domain.ReasonBadTimeOrder] = true
		} else if v.maxDuration > 0 && d > v.maxDuration {
			found[domain.ReasonImplausibleDuration] = true
		}
	}

	if rec.TripDistance != nil && !withinRange(*rec.TripDistance, lim.MaxDistanceMi) {
		found[domain.ReasonImplausibleDistance] = true
	}
	if v.tooFast(&rec, d, hasDuration) {
		found[domain.ReasonImplausibleDistance] = true
	}

	if rec.FareAmount != nil && !withinRange(*rec.FareAmount, lim.MaxFare) {
		found[domain.ReasonImplausibleFare] = true
	}
	if rec.TotalAmount != nil && !withinRange(*rec.TotalAmount, lim.MaxFare) {
		found[domain.ReasonImplausibleFare] = true
	}

	if rec.PassengerCount != nil {
		p := *rec.PassengerCount
		if p < 0 || (lim.MaxPassengers > 0 && p > lim.MaxPassengers) {
			found[domain.ReasonImplausiblePassengerCount] = true
		}
	}

	rec.Reasons = nil
	rec.Reason = ""
	for _, r := range domain.AllReasons {
		if found[r] {
			rec.Reasons = append(rec.Reasons, r)
		}
	}
	rec.Valid = len(rec.Reasons) == 0
	if !rec.Valid {
		rec.Reason = rec.Reasons[0]
	}
	return rec
}

// Partition validates every record and splits the results
func (v *Validator) Partition(records []domain.TripRecord) (valid, invalid []domain.TripRecord) {
	valid = make([]domain.TripRecord, 0, len(records))
	for _, rec := range records {
		out := v.Validate(rec)
		if out.Valid {
			valid = append(valid, out)
		} else {
			invalid = append(invalid, out)
		}
	}
	return valid, invalid
}

func (v *Validator) inBounds(p *domain.LatLon, required bool) bool {
	if p == nil {
		return !required
	}
	return v.bounds.Contains(p.Lat, p.Lon)
}

// tooFast flags distances that cannot be covered in the recorded time
func (v *Validator) tooFast(rec *domain.TripRecord, d time.Duration, hasDuration bool) bool {
	if v.maxSpeedMPH <= 0 || !hasDuration || d <= 0 || d < v.minDuration {
		return false
	}
	var miles float64
	switch {
	case rec.TripDistance != nil:
		miles = *rec.TripDistance
	case rec.PickupLocation != nil && rec.DropoffLocation != nil:
		miles = utils.HaversineMiles(rec.PickupLocation.Lat, rec.PickupLocation.Lon,
			rec.DropoffLocation.Lat, rec.DropoffLocation.Lon)
	default:
		return false
	}
	return miles/d.Hours() > v.maxSpeedMPH
}

func withinRange(value, max float64) bool {
	if math.IsNaN(value) || value < 0 {
		return false
	}
	return max <= 0 || value <= max
}
