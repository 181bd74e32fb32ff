package domain

import (
	"context"
)

// Table is a raw result set: the source table's column names and its rows
// in column order. Values are whatever the driver produced.
type Table struct {
	Columns []string
	Rows    [][]any
}

// TripSource yields raw trip rows per mode
type TripSource interface {
	// FetchTrips returns the rows of the mode's source table
	FetchTrips(ctx context.Context, mode Mode) (Table, error)

	// Health checks source connectivity
	Health(ctx context.Context) error
}

// ReferenceSource yields immutable reference data
type ReferenceSource interface {
	// Zones returns the zone polygons
	Zones(ctx context.Context) ([]Zone, error)

	// Stations returns fixed station locations
	Stations(ctx context.Context) ([]Station, error)
}

// DataRepository defines the interface for the relational store.
// This follows the Dependency Inversion Principle - domain defines the interface
type DataRepository interface {
	TripSource
	ReferenceSource
}
