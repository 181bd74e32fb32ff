package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Refresher runs the pipeline off the request path: once at start, then
// on every tick and on demand.
type Refresher struct {
	pipeline *Pipeline
	interval time.Duration
	trigger  chan struct{}
	logger   *slog.Logger

	ready   bool
	readyMu sync.RWMutex
}

// NewRefresher creates a refresher for p
func NewRefresher(p *Pipeline, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		pipeline: p,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With("component", "refresher"),
	}
}

// Start blocks until ctx is done
func (r *Refresher) Start(ctx context.Context) {
	r.refresh(ctx)

	var tick <-chan time.Time
	if r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			r.refresh(ctx)
		case <-r.trigger:
			r.refresh(ctx)
		}
	}
}

// Trigger requests a run. It never blocks; a request made while another
// is pending is merged with it.
func (r *Refresher) Trigger() bool {
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	report, err := r.pipeline.Run(ctx)
	if err != nil {
		r.logger.Error("refresh failed", "run_id", report.RunID, "status", report.Status, "error", err)
		return
	}
	if !r.IsReady() {
		r.setReady(true)
	}
}

// IsReady reports whether a snapshot has been published
func (r *Refresher) IsReady() bool {
	r.readyMu.RLock()
	defer r.readyMu.RUnlock()
	return r.ready
}

func (r *Refresher) setReady(ready bool) {
	r.readyMu.Lock()
	defer r.readyMu.Unlock()
	r.ready = ready
}
