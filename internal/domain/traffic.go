package domain

import "time"

// HeatmapPoint represents a single point for Deck.gl visualization
type HeatmapPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Intensity float64 `json:"intensity"`
}

// Cluster is a density-connected group of trip endpoints
type Cluster struct {
	Label           int     `json:"label"`
	Members         []int   `json:"members"`
	Count           int     `json:"count"`
	Centroid        LatLon  `json:"centroid"`
	HullAreaKm2     float64 `json:"hull_area_km2"`
	Density         float64 `json:"density"`
	CongestionLevel string  `json:"congestion_level"`
}

// ClusterParams are the density thresholds used for clustering
type ClusterParams struct {
	EpsMeters float64 `json:"eps_meters"`
	MinPts    int     `json:"min_pts"`
}

// ClusterSet is the result of clustering one point set
type ClusterSet struct {
	Params     ClusterParams `json:"params"`
	Clusters   []Cluster     `json:"clusters"`
	Noise      []int         `json:"noise"`
	PointCount int           `json:"point_count"`
	Degenerate bool          `json:"degenerate"`
}

// HeatmapPoints renders cluster centroids weighted by relative density
func (s ClusterSet) HeatmapPoints() []HeatmapPoint {
	points := make([]HeatmapPoint, 0, len(s.Clusters))
	var maxDensity float64
	for _, c := range s.Clusters {
		if c.Density > maxDensity {
			maxDensity = c.Density
		}
	}
	for _, c := range s.Clusters {
		intensity := 0.0
		if maxDensity > 0 {
			intensity = c.Density / maxDensity
		}
		points = append(points, HeatmapPoint{
			Latitude:  c.Centroid.Lat,
			Longitude: c.Centroid.Lon,
			Intensity: intensity,
		})
	}
	return points
}

// BucketClusters holds the hotspots of one mode in one hour-of-day bucket
type BucketClusters struct {
	Mode      Mode       `json:"mode"`
	StartHour int        `json:"start_hour"`
	EndHour   int        `json:"end_hour"`
	Set       ClusterSet `json:"clusters"`
}

// HotspotReport is the precomputed per-bucket clustering of one ETL run
type HotspotReport struct {
	DataVersion uint64           `json:"data_version"`
	ComputedAt  time.Time        `json:"computed_at"`
	Buckets     []BucketClusters `json:"buckets"`
}
