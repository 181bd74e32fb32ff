package postgres

import (
	"context"
	"math/big"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/normalize"
)

func TestPlain(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ts := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"numeric", pgtype.Numeric{Int: big.NewInt(1234), Exp: -2, Valid: true}, 12.34},
		{"null numeric", pgtype.Numeric{}, nil},
		{"uuid", [16]byte(id), id.String()},
		{"timestamp passes through", ts, ts},
		{"int passes through", int32(7), int32(7)},
		{"nil", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := plain(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("plain(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestConvertRowTagsNaiveTimestamps(t *testing.T) {
	ts := time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	fields := []pgconn.FieldDescription{
		{Name: "tpep_pickup_datetime", DataTypeOID: pgtype.TimestampOID},
		{Name: "updated_at", DataTypeOID: pgtype.TimestamptzOID},
		{Name: "fare_amount", DataTypeOID: pgtype.NumericOID},
	}
	values := []any{ts, ts, pgtype.Numeric{Int: big.NewInt(950), Exp: -2, Valid: true}}

	convertRow(values, fields)

	if got, ok := values[0].(domain.LocalTime); !ok || !time.Time(got).Equal(ts) {
		t.Errorf("timestamp column = %#v, want domain.LocalTime", values[0])
	}
	if got, ok := values[1].(time.Time); !ok || !got.Equal(ts) {
		t.Errorf("timestamptz column = %#v, want time.Time", values[1])
	}
	if values[2] != 9.5 {
		t.Errorf("numeric column = %#v, want 9.5", values[2])
	}
}

func TestMockTablesMatchSchemas(t *testing.T) {
	repo := NewMockRepository(1, 400)
	n := normalize.New(normalize.DefaultSchemas(), time.UTC)

	for _, mode := range domain.AllModes {
		t.Run(string(mode), func(t *testing.T) {
			table, err := repo.FetchTrips(context.Background(), mode)
			if err != nil {
				t.Fatalf("FetchTrips() error = %v", err)
			}
			if len(table.Rows) == 0 {
				t.Fatal("no rows")
			}
			res := n.Normalize(mode, table)
			if res.Err != nil {
				t.Fatalf("Normalize() error = %v", res.Err)
			}
			if len(res.Records)+res.Dropped != len(table.Rows) {
				t.Errorf("records %d + dropped %d != rows %d", len(res.Records), res.Dropped, len(table.Rows))
			}
		})
	}
}

func TestMockIsDeterministic(t *testing.T) {
	a, _ := NewMockRepository(9, 100).FetchTrips(context.Background(), domain.ModeTaxiGreen)
	b, _ := NewMockRepository(9, 100).FetchTrips(context.Background(), domain.ModeTaxiGreen)
	if !reflect.DeepEqual(a, b) {
		t.Error("same seed produced different tables")
	}
}

func TestMockReferenceData(t *testing.T) {
	repo := NewMockRepository(1, 10)

	zones, err := repo.Zones(context.Background())
	if err != nil || len(zones) != len(mockHotspots) {
		t.Fatalf("Zones() = %d, %v", len(zones), err)
	}
	for i, z := range zones {
		if z.ID != i+1 || z.Geometry == nil {
			t.Errorf("zone %d = %+v", i, z)
		}
	}

	stations, err := repo.Stations(context.Background())
	if err != nil || len(stations) != 2*len(mockHotspots) {
		t.Fatalf("Stations() = %d, %v", len(stations), err)
	}
}
