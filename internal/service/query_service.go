package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/smartcity/mobility/internal/cache"
	"github.com/smartcity/mobility/internal/cluster"
	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/pipeline"
)

// Trigger requests an ETL run without waiting for it
type Trigger interface {
	Trigger() bool
}

// Options tunes the query service
type Options struct {
	// Bounds are the extents of location heatmaps
	Bounds domain.BoundingBox
	// CellDeg is the location heatmap cell size in degrees
	CellDeg float64
	Logger  *slog.Logger
}

// QueryService answers analytical queries from the published snapshot.
// Aggregates are computed at most once per query and data version and
// served from the cache while fresh.
type QueryService struct {
	store     *pipeline.Store
	cache     *cache.Cache
	clusterer *cluster.Clusterer
	refresher Trigger
	opts      Options
	logger    *slog.Logger
}

// NewQueryService creates a new query service
func NewQueryService(
	store *pipeline.Store,
	c *cache.Cache,
	clusterer *cluster.Clusterer,
	refresher Trigger,
	opts Options,
) *QueryService {
	if opts.CellDeg <= 0 {
		opts.CellDeg = 0.01
	}
	if opts.CellDeg < domain.MinHeatmapCellDeg {
		opts.CellDeg = domain.MinHeatmapCellDeg
	}
	if opts.Bounds == (domain.BoundingBox{}) {
		opts.Bounds = domain.NYCBoundingBox
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &QueryService{
		store:     store,
		cache:     c,
		clusterer: clusterer,
		refresher: refresher,
		opts:      opts,
		logger:    opts.Logger.With("component", "query_service"),
	}
}

// snapshot returns the published snapshot. Before the first successful
// run it returns the error of the latest failed run, if any.
func (s *QueryService) snapshot() (*pipeline.Snapshot, error) {
	if snap := s.store.Current(); snap != nil {
		return snap, nil
	}
	if _, err := s.store.LastRun(); err != nil {
		return nil, err
	}
	return nil, domain.ErrNoSnapshot
}

// meta describes snap for a query over q. The result is stale when the
// last refresh failed or when a mode q selects could not be fetched.
func (s *QueryService) meta(snap *pipeline.Snapshot, q domain.Query) domain.Meta {
	m := domain.Meta{
		Status:           domain.StatusOK,
		DataVersion:      snap.Version,
		RunID:            snap.RunID,
		DataLoadedAt:     snap.LoadedAt,
		UnavailableModes: snap.UnavailableModes,
	}
	if _, err := s.store.LastRun(); err != nil {
		m.Status = domain.StatusStale
		m.RefreshError = err.Error()
		return m
	}
	var errs []string
	for _, mode := range snap.UnavailableModes {
		if q.Includes(mode) {
			errs = append(errs, snap.ModeErrors[mode])
		}
	}
	if len(errs) > 0 {
		m.Status = domain.StatusStale
		m.RefreshError = strings.Join(errs, "; ")
	}
	return m
}

// aggregate is a cached value with the number of trips it was built from
type aggregate[T any] struct {
	value    T
	selected int
}

type computeFunc[T any] func(ctx context.Context, snap *pipeline.Snapshot) (T, int, error)

// cached serves kind/key from the cache, computing it against the current
// snapshot on a miss. A computation overtaken by a newer snapshot is
// retried once against it.
func cached[T any](ctx context.Context, s *QueryService, kind string, q domain.Query, key string, compute computeFunc[T]) (domain.Result[T], error) {
	key = kind + ":" + key
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		var snap *pipeline.Snapshot
		snap, err = s.snapshot()
		if err != nil {
			return domain.Result[T]{}, err
		}

		var (
			entry *cache.Entry
			hit   bool
		)
		entry, hit, err = s.cache.GetOrCompute(ctx, kind, key, func(ctx context.Context, version uint64) (any, error) {
			if snap.Version != version {
				return nil, domain.ErrVersionSuperseded
			}
			v, n, err := compute(ctx, snap)
			if err != nil {
				return nil, err
			}
			return aggregate[T]{value: v, selected: n}, nil
		})
		if errors.Is(err, domain.ErrVersionSuperseded) {
			s.logger.Debug("snapshot replaced during query, retrying", "key", key, "version", snap.Version)
			continue
		}
		if err != nil {
			return degraded[T](s, snap, q, key, err)
		}
		if entry.Version != snap.Version {
			err = domain.ErrVersionSuperseded
			continue
		}
		return result[T](s.meta(snap, q), entry, hit), nil
	}
	return domain.Result[T]{}, err
}

// degraded serves the last stored entry for key, past its freshness,
// when computing a new one failed
func degraded[T any](s *QueryService, snap *pipeline.Snapshot, q domain.Query, key string, cause error) (domain.Result[T], error) {
	entry, ok := s.cache.Peek(key)
	if !ok || entry.Version != snap.Version {
		return domain.Result[T]{}, cause
	}
	if _, ok := entry.Value.(aggregate[T]); !ok {
		return domain.Result[T]{}, cause
	}
	s.logger.Warn("serving stale aggregate", "key", key, "computed_at", entry.ComputedAt, "error", cause)
	res := result[T](s.meta(snap, q), entry, true)
	res.Meta.Status = domain.StatusStale
	res.Meta.RefreshError = cause.Error()
	return res, nil
}

func result[T any](m domain.Meta, entry *cache.Entry, hit bool) domain.Result[T] {
	agg := entry.Value.(aggregate[T])
	m.ComputedAt = entry.ComputedAt
	m.CacheHit = hit
	if agg.selected == 0 && m.Status == domain.StatusOK {
		m.Status = domain.StatusNoActivity
	}
	return domain.Result[T]{Data: agg.value, Meta: m}
}

// Stations returns the fixed station locations of the current snapshot
func (s *QueryService) Stations(ctx context.Context, mode *domain.Mode) (domain.Result[[]domain.Station], error) {
	snap, err := s.snapshot()
	if err != nil {
		return domain.Result[[]domain.Station]{}, err
	}
	stations := make([]domain.Station, 0, len(snap.Stations))
	for _, st := range snap.Stations {
		if mode == nil || st.Mode == *mode {
			stations = append(stations, st)
		}
	}
	var q domain.Query
	if mode != nil {
		q.Modes = []domain.Mode{*mode}
	}
	m := s.meta(snap, q)
	m.ComputedAt = snap.LoadedAt
	if len(stations) == 0 && m.Status == domain.StatusOK {
		m.Status = domain.StatusNoActivity
	}
	return domain.Result[[]domain.Station]{Data: stations, Meta: m}, nil
}

// CacheStatus reports cache counters, snapshot age and the last run
func (s *QueryService) CacheStatus(ctx context.Context) domain.CacheStatus {
	st := s.cache.Stats()
	status := domain.CacheStatus{
		Entries:          st.Entries,
		Hits:             st.Hits,
		Misses:           st.Misses,
		Computations:     st.Computations,
		Discarded:        st.Discarded,
		DataVersion:      st.Version,
		FreshnessSeconds: st.Freshness.Seconds(),
	}
	if snap := s.store.Current(); snap != nil {
		status.SnapshotAgeSec = time.Since(snap.LoadedAt).Seconds()
	}
	last, err := s.store.LastRun()
	status.LastRun = last
	status.Stale = err != nil
	return status
}

// Refresh requests an ETL run. It returns false when a run is already
// pending.
func (s *QueryService) Refresh(ctx context.Context) bool {
	if s.refresher == nil {
		return false
	}
	return s.refresher.Trigger()
}

// Health reports whether a snapshot has been published
func (s *QueryService) Health(ctx context.Context) error {
	_, err := s.snapshot()
	return err
}

// selectTrips returns the trips matching q
func selectTrips(snap *pipeline.Snapshot, q domain.Query) []*domain.EnrichedTrip {
	out := make([]*domain.EnrichedTrip, 0, len(snap.Trips))
	for i := range snap.Trips {
		t := &snap.Trips[i]
		if q.Includes(t.Record.Mode) && q.Window.Contains(t.Record.PickupTime) {
			out = append(out, t)
		}
	}
	return out
}
