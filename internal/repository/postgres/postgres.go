package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/normalize"
	"github.com/smartcity/mobility/internal/repository"
)

// PostgresRepository implements domain.DataRepository
type PostgresRepository struct {
	pool       *pgxpool.Pool
	schemas    map[domain.Mode]normalize.Schema
	fetchLimit int
}

// NewPostgresRepository creates a new PostgreSQL repository. Each trip
// query returns at most fetchLimit rows, the most recent first.
func NewPostgresRepository(pool *pgxpool.Pool, schemas map[domain.Mode]normalize.Schema, fetchLimit int) *PostgresRepository {
	return &PostgresRepository{pool: pool, schemas: schemas, fetchLimit: fetchLimit}
}

// FetchTrips returns the raw rows of the mode's source table
func (r *PostgresRepository) FetchTrips(ctx context.Context, mode domain.Mode) (domain.Table, error) {
	s, ok := r.schemas[mode]
	if !ok {
		return domain.Table{}, fmt.Errorf("postgres: no source table for mode %s", mode)
	}

	query := fmt.Sprintf(
		`SELECT * FROM %s ORDER BY %s DESC LIMIT $1`,
		pgx.Identifier{s.Table}.Sanitize(),
		pgx.Identifier{s.PickupTime}.Sanitize(),
	)

	rows, err := r.pool.Query(ctx, query, r.fetchLimit)
	if err != nil {
		return domain.Table{}, fmt.Errorf("postgres: failed to query %s: %w: %w", s.Table, domain.ErrDataSourceUnavailable, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	table := domain.Table{Columns: make([]string, len(fields))}
	for i, f := range fields {
		table.Columns[i] = f.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return domain.Table{}, fmt.Errorf("postgres: failed to scan %s row: %w", s.Table, err)
		}
		convertRow(values, fields)
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return domain.Table{}, fmt.Errorf("postgres: failed to read %s: %w: %w", s.Table, domain.ErrDataSourceUnavailable, err)
	}

	return table, nil
}

// convertRow rewrites values in place into plain Go values. Columns of
// type timestamp without time zone are tagged as domain.LocalTime.
func convertRow(values []any, fields []pgconn.FieldDescription) {
	for i, v := range values {
		if t, ok := v.(time.Time); ok && fields[i].DataTypeOID == pgtype.TimestampOID {
			values[i] = domain.LocalTime(t)
			continue
		}
		values[i] = plain(v)
	}
}

// plain converts driver-specific values into the plain Go values the
// normalizer understands
func plain(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(x).String()
	}
	return v
}

// Zones loads the zone lookup with GeoJSON boundaries
func (r *PostgresRepository) Zones(ctx context.Context) ([]domain.Zone, error) {
	query := `
		SELECT location_id, borough, zone, service_zone, geometry
		FROM taxi_zones
		ORDER BY location_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query zones: %w", err)
	}
	defer rows.Close()

	var results []domain.Zone
	for rows.Next() {
		var (
			z           domain.Zone
			serviceZone *string
			geometry    *string
		)
		if err := rows.Scan(&z.ID, &z.Borough, &z.Name, &serviceZone, &geometry); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan zone row: %w", err)
		}
		if serviceZone != nil {
			z.ServiceZone = *serviceZone
		}
		if geometry != nil {
			z.Geometry, err = repository.DecodeGeometry([]byte(*geometry))
			if err != nil {
				return nil, fmt.Errorf("postgres: zone %d: %w", z.ID, err)
			}
		}
		results = append(results, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read zones: %w", err)
	}

	return results, nil
}

// Stations loads fixed bike docks and transit stops
func (r *PostgresRepository) Stations(ctx context.Context) ([]domain.Station, error) {
	query := `
		SELECT station_id, name, mode, latitude, longitude,
			   capacity, city, system_name, station_type, year
		FROM stations
		ORDER BY station_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query stations: %w", err)
	}
	defer rows.Close()

	var results []domain.Station
	for rows.Next() {
		var (
			s                             domain.Station
			mode                          string
			capacity, year                *int32
			city, systemName, stationType *string
		)
		err := rows.Scan(
			&s.ID, &s.Name, &mode, &s.Location.Lat, &s.Location.Lon,
			&capacity, &city, &systemName, &stationType, &year,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan station row: %w", err)
		}
		if s.Mode, err = domain.ParseMode(mode); err != nil {
			return nil, fmt.Errorf("postgres: station %s: %w", s.ID, err)
		}
		s.Capacity = intPtr(capacity)
		s.Year = intPtr(year)
		s.City = deref(city)
		s.SystemName = deref(systemName)
		s.StationType = deref(stationType)
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to read stations: %w", err)
	}

	return results, nil
}

// Health checks database connectivity
func (r *PostgresRepository) Health(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
