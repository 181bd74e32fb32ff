package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobility_cache_hits_total",
		Help: "Aggregation cache lookups served from a live entry.",
	}, []string{"kind"})
	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobility_cache_misses_total",
		Help: "Aggregation cache lookups that required a computation.",
	}, []string{"kind"})
	CacheComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobility_cache_computations_total",
		Help: "Aggregate computations executed.",
	}, []string{"kind"})
	CacheDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobility_cache_discarded_total",
		Help: "Computations discarded because the data version changed while they ran.",
	})
	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mobility_cache_invalidations_total",
		Help: "Wholesale cache invalidations on data version change.",
	})
	ComputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mobility_cache_compute_duration_seconds",
		Help:    "Duration of aggregate computations.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	}, []string{"kind"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobility_etl_runs_total",
		Help: "ETL runs by final status.",
	}, []string{"status"})
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mobility_etl_run_duration_seconds",
		Help:    "Duration of a full ETL run.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
	})
	RecordsLoaded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobility_etl_records_total",
		Help: "Records processed by ETL stage outcome.",
	}, []string{"mode", "outcome"})
	DataVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mobility_data_version",
		Help: "Data version of the published snapshot.",
	})
	RunNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mobility_run_notifications_total",
		Help: "ETL run notifications published to Redis.",
	}, []string{"result"})
)
