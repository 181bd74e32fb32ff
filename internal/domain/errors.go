package domain

import "errors"

var (
	// ErrSchemaMismatch marks a row missing a required identifying column
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrDataSourceUnavailable marks a failed query against the store
	ErrDataSourceUnavailable = errors.New("data source unavailable")

	// ErrNoValidRecords marks a run in which validation left nothing to aggregate
	ErrNoValidRecords = errors.New("no valid records after validation")

	// ErrVersionSuperseded marks a computation whose data version was replaced while it ran
	ErrVersionSuperseded = errors.New("data version superseded")

	// ErrNoSnapshot is returned before the first ETL run has completed
	ErrNoSnapshot = errors.New("no data loaded yet")
)
