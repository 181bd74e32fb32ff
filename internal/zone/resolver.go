package zone

import (
	"math"
	"sort"

	"github.com/bluele/gcache"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/pkg/utils"
)

type indexedZone struct {
	id       int
	geom     orb.Geometry
	bound    orb.Bound
	centroid orb.Point
}

// Resolver maps coordinates to zone ids. It is immutable after
// construction and safe for concurrent use.
type Resolver struct {
	zones []indexedZone
}

// NewResolver indexes the polygonal zones. Zones without a polygon or
// multipolygon geometry cannot be resolved to and are skipped.
func NewResolver(zones []domain.Zone) *Resolver {
	indexed := make([]indexedZone, 0, len(zones))
	for _, z := range zones {
		switch z.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		centroid, _ := planar.CentroidArea(z.Geometry)
		indexed = append(indexed, indexedZone{
			id:       z.ID,
			geom:     z.Geometry,
			bound:    z.Geometry.Bound(),
			centroid: centroid,
		})
	}
	sort.Slice(indexed, func(i, j int) bool { return indexed[i].id < indexed[j].id })
	return &Resolver{zones: indexed}
}

// Len returns the number of resolvable zones
func (r *Resolver) Len() int {
	return len(r.zones)
}

// Resolve returns the lowest-id zone whose polygon contains p, or the zone
// with the nearest centroid when none does. It reports false only when the
// resolver holds no zones.
func (r *Resolver) Resolve(p domain.LatLon) (int, bool) {
	if len(r.zones) == 0 {
		return 0, false
	}
	pt := orb.Point{p.Lon, p.Lat}

	// zones are sorted by id so the first hit wins ties
	for _, z := range r.zones {
		if !z.bound.Contains(pt) {
			continue
		}
		if contains(z.geom, pt) {
			return z.id, true
		}
	}

	best, bestDist := 0, math.Inf(1)
	for _, z := range r.zones {
		d := utils.Haversine(p.Lat, p.Lon, z.centroid.Lat(), z.centroid.Lon())
		if d < bestDist {
			best, bestDist = z.id, d
		}
	}
	return best, true
}

func contains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	}
	return false
}

type bucketKey struct {
	lat, lon int64
}

type resolution struct {
	id int
	ok bool
}

// Session memoizes resolutions per coordinate bucket for the duration of
// one pipeline run.
type Session struct {
	resolver *Resolver
	memo     gcache.Cache
	scale    float64
}

// NewSession creates a per-run memo. Coordinates are bucketed to the given
// number of decimal places; size bounds the memo.
func (r *Resolver) NewSession(precision, size int) *Session {
	if size <= 0 {
		size = 10000
	}
	return &Session{
		resolver: r,
		memo:     gcache.New(size).LRU().Build(),
		scale:    math.Pow(10, float64(precision)),
	}
}

func (s *Session) key(p domain.LatLon) bucketKey {
	return bucketKey{
		lat: int64(math.Round(p.Lat * s.scale)),
		lon: int64(math.Round(p.Lon * s.scale)),
	}
}

// Resolve resolves p through the memo
func (s *Session) Resolve(p domain.LatLon) (int, bool) {
	k := s.key(p)
	if cached, err := s.memo.Get(k); err == nil {
		res := cached.(resolution)
		return res.id, res.ok
	}
	id, ok := s.resolver.Resolve(p)
	_ = s.memo.Set(k, resolution{id: id, ok: ok})
	return id, ok
}

// Assignment holds the zones resolved for one trip's endpoints
type Assignment struct {
	Pickup  *int
	Dropoff *int
}

// ResolveTrip keeps source-supplied zone ids and resolves the endpoints
// that only carry coordinates.
func (s *Session) ResolveTrip(t *domain.EnrichedTrip) Assignment {
	return Assignment{
		Pickup:  s.endpoint(t.PickupZone, t.Record.PickupLocation),
		Dropoff: s.endpoint(t.DropoffZone, t.Record.DropoffLocation),
	}
}

func (s *Session) endpoint(known *int, loc *domain.LatLon) *int {
	if known != nil {
		return known
	}
	if loc == nil {
		return nil
	}
	id, ok := s.Resolve(*loc)
	if !ok {
		return nil
	}
	return &id
}

// ResolveAll resolves every trip in order
func (s *Session) ResolveAll(trips []domain.EnrichedTrip) []Assignment {
	out := make([]Assignment, len(trips))
	for i := range trips {
		out[i] = s.ResolveTrip(&trips[i])
	}
	return out
}

// Stats returns memo hit and miss counts
func (s *Session) Stats() (hits, misses uint64) {
	return s.memo.HitCount(), s.memo.MissCount()
}
