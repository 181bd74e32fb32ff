package pipeline

import (
	"sync"
	"time"

	"github.com/smartcity/mobility/internal/cache"
	"github.com/smartcity/mobility/internal/domain"
)

// Snapshot is the immutable output of one completed ETL run. It is shared
// read-only between every concurrent query.
type Snapshot struct {
	Version  uint64
	RunID    string
	LoadedAt time.Time

	// Trips are the enriched valid records, zones resolved
	Trips []domain.EnrichedTrip
	// Invalid records are kept for audit and never aggregated
	Invalid []domain.TripRecord

	Zones    map[int]domain.Zone
	Stations []domain.Station
	Hotspots domain.HotspotReport

	// UnavailableModes could not be fetched by this run. Their trips and
	// hotspots are the ones of the previous snapshot.
	UnavailableModes []domain.Mode
	// ModeErrors holds the fetch error of each unavailable mode
	ModeErrors map[domain.Mode]string
	Report     domain.RunReport
}

// Store holds the current snapshot and the outcome of the latest run
type Store struct {
	mu      sync.RWMutex
	current *Snapshot
	lastRun *domain.RunReport
	lastErr error
	cache   *cache.Cache
}

// NewStore creates an empty store. The cache, when set, is moved to each
// published snapshot's data version.
func NewStore(c *cache.Cache) *Store {
	return &Store{cache: c}
}

// Current returns the published snapshot, nil before the first run
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Publish installs snap unless a snapshot with the same or a newer
// version is already published.
func (s *Store) Publish(snap *Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && snap.Version <= s.current.Version {
		return false
	}
	s.current = snap
	if s.cache != nil {
		s.cache.SetVersion(snap.Version)
	}
	return true
}

// RecordRun stores the report of a finished run. Superseded runs do not
// change the refresh error.
func (s *Store) RecordRun(report domain.RunReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun != nil && report.Sequence < s.lastRun.Sequence {
		return
	}
	r := report
	s.lastRun = &r
	switch report.Status {
	case domain.RunCompleted:
		s.lastErr = nil
	case domain.RunFailed:
		s.lastErr = err
	}
}

// LastRun returns the latest run report and the error of the latest
// failed refresh, if no successful run has happened since.
func (s *Store) LastRun() (*domain.RunReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, s.lastErr
}
