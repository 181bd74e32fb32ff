package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/smartcity/mobility/internal/domain"
)

// Normalizer maps raw rows of each source table into TripRecords through
// an explicit per-mode mapping table fixed at construction.
type Normalizer struct {
	schemas map[domain.Mode]Schema
	loc     *time.Location
}

// New creates a normalizer. Timestamps are normalized into loc.
func New(schemas map[domain.Mode]Schema, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	copied := make(map[domain.Mode]Schema, len(schemas))
	for m, s := range schemas {
		copied[m] = s
	}
	return &Normalizer{schemas: copied, loc: loc}
}

// Result is the outcome of normalizing one table
type Result struct {
	Records []domain.TripRecord
	// Dropped counts rows rejected as schema mismatches
	Dropped int
	// Err is set when the table shape itself lacks a required column
	Err error
}

// Normalize maps every row of table. Rows with a missing or unusable
// identifying value are dropped and counted.
func (n *Normalizer) Normalize(mode domain.Mode, table domain.Table) Result {
	b, err := n.Bind(mode, table.Columns)
	if err != nil {
		return Result{Dropped: len(table.Rows), Err: err}
	}

	res := Result{Records: make([]domain.TripRecord, 0, len(table.Rows))}
	for _, row := range table.Rows {
		rec, err := b.Row(row)
		if err != nil {
			res.Dropped++
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

// Binding is a schema resolved against one table's column order
type Binding struct {
	schema Schema
	loc    *time.Location
	index  map[string]int
}

// Bind resolves the mode's column names to positions once per table.
// Column names match case-insensitively.
func (n *Normalizer) Bind(mode domain.Mode, columns []string) (*Binding, error) {
	s, ok := n.schemas[mode]
	if !ok {
		return nil, fmt.Errorf("normalize: no schema for mode %s: %w", mode, domain.ErrSchemaMismatch)
	}

	index := make(map[string]int, len(columns))
	for i, c := range columns {
		key := strings.ToLower(strings.TrimSpace(c))
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	var missing []string
	for _, req := range s.Required() {
		if _, ok := index[strings.ToLower(req)]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("normalize: %s table lacks %s: %w", mode, strings.Join(missing, ", "), domain.ErrSchemaMismatch)
	}

	return &Binding{schema: s, loc: n.loc, index: index}, nil
}

func (b *Binding) value(row []any, column string) any {
	if column == "" {
		return nil
	}
	i, ok := b.index[strings.ToLower(column)]
	if !ok || i >= len(row) {
		return nil
	}
	return row[i]
}

// Row maps one raw row. It fails with ErrSchemaMismatch when the
// identifying key or pickup timestamp is absent or unparseable.
func (b *Binding) Row(row []any) (domain.TripRecord, error) {
	s := b.schema
	rec := domain.TripRecord{Mode: s.Mode}

	if s.KeyColumn != "" {
		key, ok := asString(b.value(row, s.KeyColumn))
		if !ok {
			return domain.TripRecord{}, fmt.Errorf("normalize: %s row without %s: %w", s.Mode, s.KeyColumn, domain.ErrSchemaMismatch)
		}
		rec.SourceKey = key
	}

	pickup, ok := asTime(b.value(row, s.PickupTime), b.loc)
	if !ok {
		return domain.TripRecord{}, fmt.Errorf("normalize: %s row without %s: %w", s.Mode, s.PickupTime, domain.ErrSchemaMismatch)
	}
	rec.PickupTime = pickup

	if t, ok := asTime(b.value(row, s.DropoffTime), b.loc); ok {
		rec.DropoffTime = &t
	}

	rec.PickupLocation = b.latLon(row, s.PickupLat, s.PickupLon)
	rec.DropoffLocation = b.latLon(row, s.DropoffLat, s.DropoffLon)

	if z, ok := asInt(b.value(row, s.PickupZone)); ok {
		rec.PickupZoneID = &z
	}
	if z, ok := asInt(b.value(row, s.DropoffZone)); ok {
		rec.DropoffZoneID = &z
	}

	if p, ok := asInt(b.value(row, s.Passengers)); ok {
		rec.PassengerCount = &p
	}
	if d, ok := asFloat(b.value(row, s.Distance)); ok {
		rec.TripDistance = &d
	}
	if f, ok := asFloat(b.value(row, s.Fare)); ok {
		rec.FareAmount = &f
	}
	if f, ok := asFloat(b.value(row, s.Total)); ok {
		rec.TotalAmount = &f
	}

	rec.StationName, _ = asString(b.value(row, s.Station))
	rec.LineName, _ = asString(b.value(row, s.Line))
	rec.BaseNumber, _ = asString(b.value(row, s.Base))
	rec.RiderType, _ = asString(b.value(row, s.Rider))

	return rec, nil
}

func (b *Binding) latLon(row []any, latCol, lonCol string) *domain.LatLon {
	lat, okLat := asFloat(b.value(row, latCol))
	lon, okLon := asFloat(b.value(row, lonCol))
	if !okLat || !okLon {
		return nil
	}
	return &domain.LatLon{Lat: lat, Lon: lon}
}
