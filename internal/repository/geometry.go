package repository

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DecodeGeometry parses a zone boundary stored as GeoJSON text. Only
// polygons and multipolygons are accepted.
func DecodeGeometry(raw []byte) (orb.Geometry, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to decode zone geometry: %w", err)
	}
	geom := g.Geometry()
	switch geom.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return geom, nil
	}
	return nil, fmt.Errorf("repository: zone geometry is a %s, want a polygon", geom.GeoJSONType())
}
