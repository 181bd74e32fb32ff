package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bluele/gcache"
	"golang.org/x/sync/singleflight"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/metrics"
)

// Entry is one computed aggregate. Entries are replaced, never mutated.
type Entry struct {
	Key        string
	Kind       string
	Value      any
	Version    uint64
	ComputedAt time.Time
}

// Age returns how long ago the entry was computed
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.ComputedAt)
}

// ComputeFunc produces an aggregate against the given data version
type ComputeFunc func(ctx context.Context, version uint64) (any, error)

// Options configures the aggregation cache
type Options struct {
	Freshness  time.Duration
	Retention  time.Duration
	MaxEntries int
	// Now overrides the clock, for tests
	Now    func() time.Time
	Logger *slog.Logger
}

// Stats is a point-in-time view of the cache counters
type Stats struct {
	Entries      int
	Hits         uint64
	Misses       uint64
	Computations uint64
	Discarded    uint64
	Version      uint64
	Freshness    time.Duration
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// Cache maps query keys to the most recently computed aggregate. At most
// one computation per key and data version is in flight at any time.
type Cache struct {
	mu      sync.Mutex
	store   gcache.Cache
	version uint64

	group     singleflight.Group
	freshness time.Duration
	now       func() time.Time
	logger    *slog.Logger

	hits         atomic.Uint64
	misses       atomic.Uint64
	computations atomic.Uint64
	discarded    atomic.Uint64
}

// New creates an empty cache at data version zero
func New(opts Options) *Cache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 256
	}
	b := gcache.New(opts.MaxEntries).LRU().Clock(clockFunc(opts.Now))
	if opts.Retention > 0 {
		b = b.Expiration(opts.Retention)
	}
	return &Cache{
		store:     b.Build(),
		freshness: opts.Freshness,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "cache"),
	}
}

// Version returns the data version entries are computed against
func (c *Cache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// SetVersion switches to a new data version, dropping every entry
func (c *Cache) SetVersion(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == c.version {
		return
	}
	n := c.store.Len(false)
	c.version = v
	c.store.Purge()
	metrics.CacheInvalidations.Inc()
	c.logger.Info("cache invalidated", "version", v, "dropped", n)
}

// lookup returns the stored entry for key. Callers hold mu.
func (c *Cache) lookup(key string) *Entry {
	v, err := c.store.Get(key)
	if err != nil {
		return nil
	}
	return v.(*Entry)
}

func (c *Cache) live(e *Entry, version uint64) bool {
	if e == nil || e.Version != version {
		return false
	}
	return c.freshness <= 0 || c.now().Sub(e.ComputedAt) < c.freshness
}

// GetOrCompute returns the live entry for key or computes, stores and
// returns a new one. Concurrent callers for the same key share a single
// computation. A computation whose data version was replaced while it ran
// is discarded and ErrVersionSuperseded is returned.
func (c *Cache) GetOrCompute(ctx context.Context, kind, key string, compute ComputeFunc) (*Entry, bool, error) {
	c.mu.Lock()
	version := c.version
	e := c.lookup(key)
	c.mu.Unlock()

	if c.live(e, version) {
		c.hits.Add(1)
		metrics.CacheHits.WithLabelValues(kind).Inc()
		return e, true, nil
	}
	c.misses.Add(1)
	metrics.CacheMisses.WithLabelValues(kind).Inc()

	flightKey := strconv.FormatUint(version, 10) + "|" + key
	res, err, _ := c.group.Do(flightKey, func() (any, error) {
		// a flight that finished just before this one started already stored it
		c.mu.Lock()
		if e := c.lookup(key); c.live(e, version) {
			c.mu.Unlock()
			return e, nil
		}
		c.mu.Unlock()

		c.computations.Add(1)
		metrics.CacheComputations.WithLabelValues(kind).Inc()
		start := time.Now()
		value, err := compute(context.WithoutCancel(ctx), version)
		metrics.ComputeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}

		entry := &Entry{
			Key:        key,
			Kind:       kind,
			Value:      value,
			Version:    version,
			ComputedAt: c.now(),
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.version != version {
			c.discarded.Add(1)
			metrics.CacheDiscarded.Inc()
			c.logger.Debug("discarding superseded computation", "key", key, "version", version, "current", c.version)
			return nil, domain.ErrVersionSuperseded
		}
		if err := c.store.Set(key, entry); err != nil {
			c.logger.Warn("failed to store cache entry", "key", key, "error", err)
		}
		return entry, nil
	})
	if err != nil {
		return nil, false, err
	}
	return res.(*Entry), false, nil
}

// Peek returns the stored entry for key regardless of its age
func (c *Cache) Peek(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, err := c.store.GetIFPresent(key)
	if err != nil {
		return nil, false
	}
	return v.(*Entry), true
}

// Stats returns the cache counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	entries := c.store.Len(true)
	version := c.version
	c.mu.Unlock()
	return Stats{
		Entries:      entries,
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		Computations: c.computations.Load(),
		Discarded:    c.discarded.Load(),
		Version:      version,
		Freshness:    c.freshness,
	}
}
