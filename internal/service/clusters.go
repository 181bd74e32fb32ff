package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/smartcity/mobility/internal/cluster"
	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/pipeline"
)

// ClusterQuery selects the trip endpoints to cluster. Zero parameters use
// the configured defaults.
type ClusterQuery struct {
	domain.Query
	Endpoint  domain.Endpoint
	EpsMeters float64
	MinPts    int
}

func (q ClusterQuery) key(p domain.ClusterParams) string {
	ep := q.Endpoint
	if ep == "" {
		ep = domain.EndpointPickup
	}
	return string(ep) + "|" +
		strconv.FormatFloat(p.EpsMeters, 'f', -1, 64) + "|" +
		strconv.Itoa(p.MinPts) + "|" + q.Query.Key()
}

// ClusterReport is a clustering result ready for map rendering
type ClusterReport struct {
	domain.ClusterSet
	HeatmapPoints []domain.HeatmapPoint `json:"heatmap_points"`
}

// Clusters runs density clustering over the selected trip endpoints
func (s *QueryService) Clusters(ctx context.Context, q ClusterQuery) (domain.Result[ClusterReport], error) {
	clusterer := s.clusterer
	params := clusterer.Params()
	if (q.EpsMeters > 0 && q.EpsMeters != params.EpsMeters) || (q.MinPts > 0 && q.MinPts != params.MinPts) {
		if q.EpsMeters > 0 {
			params.EpsMeters = q.EpsMeters
		}
		if q.MinPts > 0 {
			params.MinPts = q.MinPts
		}
		var err error
		if clusterer, err = cluster.New(params); err != nil {
			return domain.Result[ClusterReport]{}, fmt.Errorf("service: %w", err)
		}
	}

	return cached[ClusterReport](ctx, s, "clusters", q.Query, q.key(params), func(ctx context.Context, snap *pipeline.Snapshot) (ClusterReport, int, error) {
		trips := selectTrips(snap, q.Query)
		points := make([]domain.LatLon, 0, len(trips))
		for _, t := range trips {
			if loc := t.Location(q.Endpoint); loc != nil {
				points = append(points, *loc)
			}
		}
		set, err := clusterer.Cluster(ctx, points)
		if err != nil {
			return ClusterReport{}, 0, fmt.Errorf("service: failed to cluster %d points: %w", len(points), err)
		}
		return ClusterReport{ClusterSet: set, HeatmapPoints: set.HeatmapPoints()}, len(points), nil
	})
}

// HourlyHotspots returns the hotspots precomputed by the last ETL run for
// one mode, one entry per hour-of-day bucket with pickups
func (s *QueryService) HourlyHotspots(ctx context.Context, mode domain.Mode) (domain.Result[[]domain.BucketClusters], error) {
	snap, err := s.snapshot()
	if err != nil {
		return domain.Result[[]domain.BucketClusters]{}, err
	}
	var buckets []domain.BucketClusters
	for _, b := range snap.Hotspots.Buckets {
		if b.Mode == mode {
			buckets = append(buckets, b)
		}
	}
	m := s.meta(snap, domain.Query{Modes: []domain.Mode{mode}})
	m.ComputedAt = snap.Hotspots.ComputedAt
	if len(buckets) == 0 && m.Status == domain.StatusOK {
		m.Status = domain.StatusNoActivity
	}
	return domain.Result[[]domain.BucketClusters]{Data: buckets, Meta: m}, nil
}
