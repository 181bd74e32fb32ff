package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/normalize"
	"github.com/smartcity/mobility/internal/repository"
)

// Repository reads trip tables from a local SQLite extract. It implements
// domain.DataRepository.
type Repository struct {
	db         *sql.DB
	schemas    map[domain.Mode]normalize.Schema
	fetchLimit int
}

// Open opens the database at path. ":memory:" keeps everything on one
// connection so every query sees the same database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open %s: %w", path, err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: failed to enable WAL: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to connect: %w", err)
	}
	return db, nil
}

// New creates a repository over an open database
func New(db *sql.DB, schemas map[domain.Mode]normalize.Schema, fetchLimit int) *Repository {
	return &Repository{db: db, schemas: schemas, fetchLimit: fetchLimit}
}

// Close closes the underlying database
func (r *Repository) Close() error {
	return r.db.Close()
}

// FetchTrips returns the raw rows of the mode's source table
func (r *Repository) FetchTrips(ctx context.Context, mode domain.Mode) (domain.Table, error) {
	s, ok := r.schemas[mode]
	if !ok {
		return domain.Table{}, fmt.Errorf("sqlite: no source table for mode %s", mode)
	}

	query := fmt.Sprintf(`SELECT * FROM %s ORDER BY %s DESC LIMIT ?`, quote(s.Table), quote(s.PickupTime))
	rows, err := r.db.QueryContext(ctx, query, r.fetchLimit)
	if err != nil {
		return domain.Table{}, fmt.Errorf("sqlite: failed to query %s: %w: %w", s.Table, domain.ErrDataSourceUnavailable, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return domain.Table{}, fmt.Errorf("sqlite: failed to read columns of %s: %w", s.Table, err)
	}
	table := domain.Table{Columns: columns}

	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return domain.Table{}, fmt.Errorf("sqlite: failed to scan %s row: %w", s.Table, err)
		}
		for i, v := range values {
			// DATETIME text without an offset comes back labelled UTC
			if t, ok := v.(time.Time); ok && t.Location() == time.UTC {
				values[i] = domain.LocalTime(t)
			}
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return domain.Table{}, fmt.Errorf("sqlite: failed to read %s: %w: %w", s.Table, domain.ErrDataSourceUnavailable, err)
	}

	return table, nil
}

// Zones loads the zone lookup with GeoJSON boundaries
func (r *Repository) Zones(ctx context.Context) ([]domain.Zone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT location_id, borough, zone, service_zone, geometry
		FROM taxi_zones
		ORDER BY location_id
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query zones: %w", err)
	}
	defer rows.Close()

	var results []domain.Zone
	for rows.Next() {
		var (
			z           domain.Zone
			serviceZone sql.NullString
			geometry    sql.NullString
		)
		if err := rows.Scan(&z.ID, &z.Borough, &z.Name, &serviceZone, &geometry); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan zone row: %w", err)
		}
		z.ServiceZone = serviceZone.String
		if geometry.Valid {
			z.Geometry, err = repository.DecodeGeometry([]byte(geometry.String))
			if err != nil {
				return nil, fmt.Errorf("sqlite: zone %d: %w", z.ID, err)
			}
		}
		results = append(results, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to read zones: %w", err)
	}
	return results, nil
}

// Stations loads fixed bike docks and transit stops
func (r *Repository) Stations(ctx context.Context) ([]domain.Station, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT station_id, name, mode, latitude, longitude,
			   capacity, city, system_name, station_type, year
		FROM stations
		ORDER BY station_id
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query stations: %w", err)
	}
	defer rows.Close()

	var results []domain.Station
	for rows.Next() {
		var (
			s                             domain.Station
			mode                          string
			capacity, year                sql.NullInt64
			city, systemName, stationType sql.NullString
		)
		err := rows.Scan(
			&s.ID, &s.Name, &mode, &s.Location.Lat, &s.Location.Lon,
			&capacity, &city, &systemName, &stationType, &year,
		)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan station row: %w", err)
		}
		if s.Mode, err = domain.ParseMode(mode); err != nil {
			return nil, fmt.Errorf("sqlite: station %s: %w", s.ID, err)
		}
		s.Capacity = nullInt(capacity)
		s.Year = nullInt(year)
		s.City = city.String
		s.SystemName = systemName.String
		s.StationType = stationType.String
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to read stations: %w", err)
	}
	return results, nil
}

// Health checks database connectivity
func (r *Repository) Health(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: health check failed: %w", err)
	}
	return nil
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
