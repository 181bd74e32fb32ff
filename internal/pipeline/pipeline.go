package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/smartcity/mobility/internal/cluster"
	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/feature"
	"github.com/smartcity/mobility/internal/metrics"
	"github.com/smartcity/mobility/internal/normalize"
	"github.com/smartcity/mobility/internal/validate"
	"github.com/smartcity/mobility/internal/zone"
)

// Notifier announces finished runs to other processes
type Notifier interface {
	PublishRun(ctx context.Context, report domain.RunReport) error
}

// Stages bundles the processing components of a run
type Stages struct {
	Normalizer *normalize.Normalizer
	Validator  *validate.Validator
	Features   *feature.Engine
	Clusterer  *cluster.Clusterer
}

// Options tunes a pipeline
type Options struct {
	Modes         []domain.Mode
	ZonePrecision int
	BucketHours   int
	Logger        *slog.Logger
	Notifier      Notifier
}

// Pipeline executes ETL runs against a data source and publishes the
// results as snapshots. Starting a run cancels the run in flight.
type Pipeline struct {
	source domain.DataRepository
	stages Stages
	store  *Store
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// New creates a pipeline
func New(source domain.DataRepository, stages Stages, store *Store, opts Options) *Pipeline {
	if len(opts.Modes) == 0 {
		opts.Modes = domain.AllModes
	}
	if opts.BucketHours < 1 || opts.BucketHours > 24 {
		opts.BucketHours = 1
	}
	if opts.ZonePrecision <= 0 {
		opts.ZonePrecision = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		source: source,
		stages: stages,
		store:  store,
		opts:   opts,
		logger: opts.Logger.With("component", "pipeline"),
	}
}

// Store returns the snapshot store the pipeline publishes to
func (p *Pipeline) Store() *Store {
	return p.store
}

func (p *Pipeline) begin(ctx context.Context) (context.Context, uint64, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	p.seq++
	seq := p.seq
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	return runCtx, seq, func() {
		p.mu.Lock()
		if p.seq == seq {
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
	}
}

func (p *Pipeline) superseded(seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq != seq
}

type modeTable struct {
	table domain.Table
	err   error
}

// Run executes one ETL run: fetch, normalize, validate, enrich, then zone
// resolution and hotspot clustering concurrently. On success the snapshot
// is published and the aggregation cache moves to the new data version.
// A failed run keeps the previous snapshot.
func (p *Pipeline) Run(ctx context.Context) (domain.RunReport, error) {
	ctx, seq, done := p.begin(ctx)
	defer done()

	start := time.Now()
	report := domain.RunReport{
		RunID:     uuid.NewString(),
		Sequence:  seq,
		Status:    domain.RunRunning,
		StartedAt: start,
		Modes:     make(map[domain.Mode]domain.ModeLoad, len(p.opts.Modes)),
		Invalid:   make(map[domain.Reason]int),
	}
	logger := p.logger.With("run_id", report.RunID, "sequence", seq)
	logger.Info("starting ETL run")

	snap, err := p.execute(ctx, &report, logger)
	report.FinishedAt = time.Now()
	metrics.RunDuration.Observe(report.FinishedAt.Sub(start).Seconds())

	switch {
	case err != nil && p.superseded(seq):
		report.Status = domain.RunSuperseded
	case err != nil:
		report.Status = domain.RunFailed
		report.Error = err.Error()
	default:
		report.Status = domain.RunCompleted
		report.DataVersion = snap.Version
		snap.Report = report
		if p.store.Publish(snap) {
			metrics.DataVersion.Set(float64(snap.Version))
		} else {
			report.Status = domain.RunSuperseded
			report.DataVersion = 0
		}
	}
	if report.Status == domain.RunSuperseded {
		err = domain.ErrVersionSuperseded
	}

	metrics.RunsTotal.WithLabelValues(string(report.Status)).Inc()
	p.store.RecordRun(report, err)

	if report.Status == domain.RunCompleted {
		logger.Info("ETL run completed",
			"duration", report.FinishedAt.Sub(start),
			"valid", report.Valid,
			"dropped", report.Dropped,
			"zones", report.Zones,
			"data_version", report.DataVersion,
		)
	} else {
		logger.Warn("ETL run did not publish", "status", report.Status, "error", err)
	}

	if p.opts.Notifier != nil {
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if nerr := p.opts.Notifier.PublishRun(nctx, report); nerr != nil {
			logger.Warn("failed to publish run notification", "error", nerr)
		}
		cancel()
	}

	if report.Status == domain.RunCompleted {
		return report, nil
	}
	return report, err
}

func (p *Pipeline) execute(ctx context.Context, report *domain.RunReport, logger *slog.Logger) (*Snapshot, error) {
	zones, err := p.source.Zones(ctx)
	if err != nil {
		logger.Warn("zones unavailable, resolving without polygons", "error", err)
		zones = nil
	}
	stations, err := p.source.Stations(ctx)
	if err != nil {
		logger.Warn("stations unavailable", "error", err)
		stations = nil
	}
	report.Zones = len(zones)
	report.Stations = len(stations)

	tables, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var (
		valid       []domain.TripRecord
		invalid     []domain.TripRecord
		unavailable []domain.Mode
		fetchErrs   []error
	)
	for _, mode := range p.opts.Modes {
		mt := tables[mode]
		load := domain.ModeLoad{Rows: len(mt.table.Rows)}
		if mt.err != nil {
			load.Error = mt.err.Error()
			report.Modes[mode] = load
			unavailable = append(unavailable, mode)
			fetchErrs = append(fetchErrs, mt.err)
			continue
		}

		res := p.stages.Normalizer.Normalize(mode, mt.table)
		load.SchemaMismatches = res.Dropped
		if res.Err != nil {
			load.Error = res.Err.Error()
			logger.Warn("table does not match schema", "mode", mode, "error", res.Err)
		}
		report.Dropped += res.Dropped

		v, inv := p.stages.Validator.Partition(res.Records)
		load.Valid, load.Invalid = len(v), len(inv)
		for _, rec := range inv {
			report.Invalid[rec.Reason]++
		}
		valid = append(valid, v...)
		invalid = append(invalid, inv...)
		report.Modes[mode] = load

		metrics.RecordsLoaded.WithLabelValues(string(mode), "valid").Add(float64(len(v)))
		metrics.RecordsLoaded.WithLabelValues(string(mode), "invalid").Add(float64(len(inv)))
		metrics.RecordsLoaded.WithLabelValues(string(mode), "dropped").Add(float64(res.Dropped))
	}
	report.Valid = len(valid)

	if len(unavailable) == len(p.opts.Modes) {
		return nil, fmt.Errorf("pipeline: %w: %w", domain.ErrDataSourceUnavailable, errors.Join(fetchErrs...))
	}
	carried, carriedInvalid, carriedBuckets := carryForward(p.store.Current(), unavailable)
	if len(carried) > 0 {
		logger.Warn("serving previous data for unavailable modes", "modes", unavailable, "trips", len(carried))
	}
	if len(valid) == 0 && len(carried) == 0 {
		return nil, domain.ErrNoValidRecords
	}

	trips := p.stages.Features.EnrichAll(valid)

	resolver := zone.NewResolver(zones)
	var (
		assignments []zone.Assignment
		hotspots    domain.HotspotReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		session := resolver.NewSession(p.opts.ZonePrecision, len(trips)*2)
		assignments = session.ResolveAll(trips)
		hits, misses := session.Stats()
		logger.Debug("zones resolved", "memo_hits", hits, "memo_misses", misses)
		return gctx.Err()
	})
	g.Go(func() error {
		var err error
		hotspots, err = p.clusterBuckets(gctx, trips)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: failed to process trips: %w", err)
	}

	for i := range trips {
		trips[i].PickupZone = assignments[i].Pickup
		trips[i].DropoffZone = assignments[i].Dropoff
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	zoneIndex := make(map[int]domain.Zone, len(zones))
	for _, z := range zones {
		zoneIndex[z.ID] = z
	}
	for i := range stations {
		if stations[i].ZoneID == nil && resolver.Len() > 0 {
			if id, ok := resolver.Resolve(stations[i].Location); ok {
				stations[i].ZoneID = &id
			}
		}
		if stations[i].Year != nil && stations[i].YearCategory == "" {
			stations[i].YearCategory = domain.YearCategory(*stations[i].Year)
		}
	}

	modeErrors := make(map[domain.Mode]string, len(unavailable))
	for _, mode := range unavailable {
		modeErrors[mode] = report.Modes[mode].Error
	}

	hotspots.Buckets = append(hotspots.Buckets, carriedBuckets...)
	hotspots.DataVersion = report.Sequence
	return &Snapshot{
		Version:          report.Sequence,
		RunID:            report.RunID,
		LoadedAt:         time.Now(),
		Trips:            append(trips, carried...),
		Invalid:          append(invalid, carriedInvalid...),
		Zones:            zoneIndex,
		Stations:         stations,
		Hotspots:         hotspots,
		UnavailableModes: unavailable,
		ModeErrors:       modeErrors,
	}, nil
}

// carryForward collects the previous snapshot's trips, invalid records and
// hotspot buckets of the given modes
func carryForward(prev *Snapshot, modes []domain.Mode) ([]domain.EnrichedTrip, []domain.TripRecord, []domain.BucketClusters) {
	if prev == nil || len(modes) == 0 {
		return nil, nil, nil
	}
	keep := make(map[domain.Mode]bool, len(modes))
	for _, m := range modes {
		keep[m] = true
	}

	var (
		trips   []domain.EnrichedTrip
		invalid []domain.TripRecord
		buckets []domain.BucketClusters
	)
	for _, t := range prev.Trips {
		if keep[t.Record.Mode] {
			trips = append(trips, t)
		}
	}
	for _, rec := range prev.Invalid {
		if keep[rec.Mode] {
			invalid = append(invalid, rec)
		}
	}
	for _, b := range prev.Hotspots.Buckets {
		if keep[b.Mode] {
			buckets = append(buckets, b)
		}
	}
	return trips, invalid, buckets
}

// fetch loads every mode's table concurrently. Per-mode failures are
// returned in the map; only cancellation fails the whole fetch.
func (p *Pipeline) fetch(ctx context.Context) (map[domain.Mode]modeTable, error) {
	var mu sync.Mutex
	tables := make(map[domain.Mode]modeTable, len(p.opts.Modes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(3)
	for _, mode := range p.opts.Modes {
		g.Go(func() error {
			t, err := p.source.FetchTrips(gctx, mode)
			if err != nil {
				err = fmt.Errorf("%s: %w", mode, err)
			}
			mu.Lock()
			tables[mode] = modeTable{table: t, err: err}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return tables, nil
}

// clusterBuckets computes pickup hotspots per mode and hour-of-day bucket
func (p *Pipeline) clusterBuckets(ctx context.Context, trips []domain.EnrichedTrip) (domain.HotspotReport, error) {
	type job struct {
		mode   domain.Mode
		start  int
		points []domain.LatLon
	}

	width := p.opts.BucketHours
	byKey := make(map[domain.Mode][][]domain.LatLon, len(p.opts.Modes))
	for i := range trips {
		t := &trips[i]
		loc := t.Record.PickupLocation
		if loc == nil {
			continue
		}
		buckets, ok := byKey[t.Record.Mode]
		if !ok {
			buckets = make([][]domain.LatLon, (24+width-1)/width)
			byKey[t.Record.Mode] = buckets
		}
		b := t.Features.Hour / width
		buckets[b] = append(buckets[b], *loc)
	}

	var jobs []job
	for _, mode := range p.opts.Modes {
		for b, pts := range byKey[mode] {
			if len(pts) > 0 {
				jobs = append(jobs, job{mode: mode, start: b * width, points: pts})
			}
		}
	}

	results := make([]domain.BucketClusters, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, j := range jobs {
		g.Go(func() error {
			set, err := p.stages.Clusterer.Cluster(gctx, j.points)
			if err != nil {
				return fmt.Errorf("cluster %s hour %d: %w", j.mode, j.start, err)
			}
			end := j.start + width
			if end > 24 {
				end = 24
			}
			results[i] = domain.BucketClusters{Mode: j.mode, StartHour: j.start, EndHour: end, Set: set}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domain.HotspotReport{}, err
	}
	return domain.HotspotReport{ComputedAt: time.Now(), Buckets: results}, nil
}
