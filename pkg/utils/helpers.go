package utils

import (
	"math"

	"github.com/golang/geo/s2"
)

const (
	// EarthRadiusMeters is the mean Earth radius
	EarthRadiusMeters = 6371008.8
	// MetersPerMile converts statute miles
	MetersPerMile = 1609.344
)

// Haversine calculates the great-circle distance between two points in meters
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// HaversineMiles is Haversine in statute miles
func HaversineMiles(lat1, lon1, lat2, lon2 float64) float64 {
	return Haversine(lat1, lon1, lat2, lon2) / MetersPerMile
}

// RoundTo rounds a float to specified decimal places
func RoundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(value*factor) / factor
}

// Projector maps coordinates onto a local plane in meters around an origin.
// Equirectangular; accurate to well under 1% across a city.
type Projector struct {
	originLat float64
	originLon float64
	cosLat    float64
}

// NewProjector creates a projector centred on the given origin
func NewProjector(originLat, originLon float64) Projector {
	return Projector{
		originLat: originLat,
		originLon: originLon,
		cosLat:    math.Cos(originLat * math.Pi / 180),
	}
}

// Project returns planar x (east) and y (north) offsets in meters
func (p Projector) Project(lat, lon float64) (x, y float64) {
	const metersPerDegree = EarthRadiusMeters * math.Pi / 180
	x = (lon - p.originLon) * metersPerDegree * p.cosLat
	y = (lat - p.originLat) * metersPerDegree
	return x, y
}
