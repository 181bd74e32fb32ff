package cluster

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/smartcity/mobility/internal/domain"
)

const (
	unvisited = -2
	noise     = -1

	// degenerate hulls below one square meter fall back to the member count
	minHullAreaM2 = 1.0
)

// Clusterer groups points into density-connected hotspots (DBSCAN over a
// grid index). It holds no mutable state and is safe for concurrent use.
type Clusterer struct {
	params domain.ClusterParams
}

// New creates a clusterer
func New(params domain.ClusterParams) (*Clusterer, error) {
	if params.EpsMeters <= 0 || params.MinPts < 1 {
		return nil, fmt.Errorf("cluster: invalid parameters eps=%v minPts=%d", params.EpsMeters, params.MinPts)
	}
	return &Clusterer{params: params}, nil
}

// Params returns the clustering parameters
func (c *Clusterer) Params() domain.ClusterParams {
	return c.params
}

// Cluster partitions points into clusters and noise. A point is core when
// its eps-neighbourhood, itself included, holds at least MinPts points.
// Member and noise indices refer to positions in points. Fewer points
// than MinPts (or none) yield zero clusters with Degenerate set.
func (c *Clusterer) Cluster(ctx context.Context, points []domain.LatLon) (domain.ClusterSet, error) {
	set := domain.ClusterSet{
		Params:     c.params,
		Clusters:   []domain.Cluster{},
		Noise:      []int{},
		PointCount: len(points),
	}
	if len(points) == 0 || len(points) < c.params.MinPts {
		set.Degenerate = true
		for i := range points {
			set.Noise = append(set.Noise, i)
		}
		return set, nil
	}

	idx := newGrid(points, c.params.EpsMeters)
	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = unvisited
	}

	var (
		nb     []int
		queue  []int
		next   int
		minPts = c.params.MinPts
	)
	claim := func(neighbors []int, label int) {
		for _, k := range neighbors {
			switch labels[k] {
			case unvisited:
				labels[k] = label
				queue = append(queue, k)
			case noise:
				labels[k] = label
			}
		}
	}

	for i := range points {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return domain.ClusterSet{}, err
			}
		}
		if labels[i] != unvisited {
			continue
		}
		nb = idx.neighbors(i, nb[:0])
		if len(nb) < minPts {
			labels[i] = noise
			continue
		}

		label := next
		next++
		labels[i] = label
		queue = queue[:0]
		claim(nb, label)
		for q := 0; q < len(queue); q++ {
			nb = idx.neighbors(queue[q], nb[:0])
			if len(nb) >= minPts {
				claim(nb, label)
			}
		}
	}

	members := make([][]int, next)
	for i, l := range labels {
		if l == noise {
			set.Noise = append(set.Noise, i)
			continue
		}
		members[l] = append(members[l], i)
	}

	var maxDensity float64
	for label, m := range members {
		cl := describe(label, m, points, idx)
		if cl.Density > maxDensity {
			maxDensity = cl.Density
		}
		set.Clusters = append(set.Clusters, cl)
	}
	for i := range set.Clusters {
		index := 0.0
		if maxDensity > 0 {
			index = 100 * set.Clusters[i].Density / maxDensity
		}
		set.Clusters[i].CongestionLevel = CongestionLevel(index)
	}
	return set, nil
}

func describe(label int, members []int, points []domain.LatLon, idx *grid) domain.Cluster {
	var sumLat, sumLon float64
	planarPts := make([]orb.Point, len(members))
	for k, i := range members {
		sumLat += points[i].Lat
		sumLon += points[i].Lon
		planarPts[k] = orb.Point{idx.xs[i], idx.ys[i]}
	}
	n := float64(len(members))

	cl := domain.Cluster{
		Label:    label,
		Members:  members,
		Count:    len(members),
		Centroid: domain.LatLon{Lat: sumLat / n, Lon: sumLon / n},
	}
	if area := hullArea(planarPts); area >= minHullAreaM2 {
		cl.HullAreaKm2 = area / 1e6
		cl.Density = n / cl.HullAreaKm2
	} else {
		cl.Density = n
	}
	return cl
}

// CongestionLevel returns the human-readable level of a 0-100 index
func CongestionLevel(index float64) string {
	switch {
	case index >= 80:
		return "Severe"
	case index >= 60:
		return "Heavy"
	case index >= 40:
		return "Moderate"
	case index >= 20:
		return "Light"
	default:
		return "Free Flow"
	}
}
