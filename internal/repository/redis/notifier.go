package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/metrics"
)

const (
	// RunsChannel carries one message per finished ETL run
	RunsChannel = "mobility:runs"
	// LastRunKey holds the latest run report
	LastRunKey = "mobility:last_run"
)

// RunNotifier announces finished ETL runs on Redis so other processes
// can refresh their views
type RunNotifier struct {
	client *goredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRunNotifier connects to the server at url (redis://host:port/db)
func NewRunNotifier(ctx context.Context, url string, logger *slog.Logger) (*RunNotifier, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}
	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: connection failed: %w", err)
	}

	return newRunNotifier(client, logger), nil
}

func newRunNotifier(client *goredis.Client, logger *slog.Logger) *RunNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunNotifier{
		client: client,
		ttl:    24 * time.Hour,
		logger: logger.With("component", "run_notifier"),
	}
}

// PublishRun stores the report under LastRunKey and publishes it on
// RunsChannel
func (n *RunNotifier) PublishRun(ctx context.Context, report domain.RunReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis: failed to encode run report: %w", err)
	}

	start := time.Now()
	if err := n.client.Set(ctx, LastRunKey, payload, n.ttl).Err(); err != nil {
		metrics.RunNotifications.WithLabelValues("error").Inc()
		return fmt.Errorf("redis: failed to store run %s: %w", report.RunID, err)
	}
	if err := n.client.Publish(ctx, RunsChannel, payload).Err(); err != nil {
		metrics.RunNotifications.WithLabelValues("error").Inc()
		return fmt.Errorf("redis: failed to publish run %s: %w", report.RunID, err)
	}

	metrics.RunNotifications.WithLabelValues("ok").Inc()
	n.logger.Debug("run published",
		"run_id", report.RunID,
		"status", report.Status,
		"size_bytes", len(payload),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close closes the connection
func (n *RunNotifier) Close() error {
	return n.client.Close()
}
