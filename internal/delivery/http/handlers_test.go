package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartcity/mobility/internal/cache"
	"github.com/smartcity/mobility/internal/cluster"
	"github.com/smartcity/mobility/internal/config"
	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/feature"
	"github.com/smartcity/mobility/internal/normalize"
	"github.com/smartcity/mobility/internal/pipeline"
	"github.com/smartcity/mobility/internal/repository/postgres"
	"github.com/smartcity/mobility/internal/service"
	"github.com/smartcity/mobility/internal/validate"
)

type countingTrigger struct{ n int }

func (t *countingTrigger) Trigger() bool {
	t.n++
	return t.n == 1
}

func setupApp(t *testing.T, run bool) (*fiber.App, *countingTrigger) {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	clusterer, err := cluster.New(domain.ClusterParams{EpsMeters: 150, MinPts: 5})
	if err != nil {
		t.Fatal(err)
	}
	c := cache.New(cache.Options{Freshness: time.Minute, Retention: time.Hour, Logger: quiet})
	store := pipeline.NewStore(c)
	p := pipeline.New(postgres.NewMockRepository(5, 300), pipeline.Stages{
		Normalizer: normalize.New(normalize.DefaultSchemas(), time.UTC),
		Validator: validate.New(config.ValidationConfig{
			Bounds:            domain.NYCBoundingBox,
			MaxDuration:       24 * time.Hour,
			MinDuration:       time.Second,
			MaxSpeedMPH:       100,
			MaxTaxiDistanceMi: 100,
			MaxFare:           1000,
			MaxPassengers:     9,
		}),
		Features:  feature.New(time.Second),
		Clusterer: clusterer,
	}, store, pipeline.Options{Logger: quiet})
	if run {
		if _, err := p.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}

	trigger := &countingTrigger{}
	svc := service.NewQueryService(store, c, clusterer, trigger, service.Options{Logger: quiet})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	SetupRoutes(app, NewHandler(svc, time.UTC))
	return app, trigger
}

func do(t *testing.T, app *fiber.App, method, target string) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, nil), -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("%s %s: decode body: %v", method, target, err)
	}
	return resp.StatusCode, body
}

func TestHealthCheck(t *testing.T) {
	app, _ := setupApp(t, false)

	code, body := do(t, app, "GET", "/health")
	if code != fiber.StatusOK || body["status"] != "ok" || body["ready"] != false {
		t.Errorf("GET /health = %d %v", code, body)
	}
}

func TestQueriesBeforeFirstRun(t *testing.T) {
	app, _ := setupApp(t, false)

	code, body := do(t, app, "GET", "/api/v1/summary")
	if code != fiber.StatusServiceUnavailable || body["error"] != true {
		t.Errorf("GET /api/v1/summary = %d %v, want 503 error", code, body)
	}
}

func TestQueryEndpoints(t *testing.T) {
	app, _ := setupApp(t, true)

	for _, target := range []string{
		"/api/v1/summary",
		"/api/v1/summary?modes=yellow,subway&from=2024-03-04&to=2024-03-06",
		"/api/v1/heatmap",
		"/api/v1/heatmap?kind=location&endpoint=dropoff",
		"/api/v1/clusters?modes=taxi_yellow&eps=200&min_pts=4",
		"/api/v1/hotspots?mode=bike",
		"/api/v1/cross-modal",
		"/api/v1/stations?mode=subway",
	} {
		t.Run(target, func(t *testing.T) {
			code, body := do(t, app, "GET", target)
			if code != fiber.StatusOK || body["success"] != true {
				t.Fatalf("GET %s = %d %v", target, code, body)
			}
			meta, ok := body["meta"].(map[string]any)
			if !ok || meta["data_version"] != float64(1) {
				t.Errorf("meta = %v, want data_version 1", body["meta"])
			}
		})
	}
}

func TestSummaryFilters(t *testing.T) {
	app, _ := setupApp(t, true)

	_, all := do(t, app, "GET", "/api/v1/summary")
	_, subway := do(t, app, "GET", "/api/v1/summary?modes=subway")

	total := all["data"].(map[string]any)["total_trips"].(float64)
	sub := subway["data"].(map[string]any)
	if sub["total_trips"].(float64) >= total {
		t.Errorf("subway trips %v should be fewer than all trips %v", sub["total_trips"], total)
	}
	byMode := sub["by_mode"].(map[string]any)
	if _, ok := byMode["subway"]; !ok || len(byMode) != 1 {
		t.Errorf("by_mode = %v, want subway only", byMode)
	}
}

func TestBadRequests(t *testing.T) {
	app, _ := setupApp(t, true)

	for _, target := range []string{
		"/api/v1/summary?modes=boat",
		"/api/v1/summary?from=yesterday",
		"/api/v1/summary?from=2024-03-06&to=2024-03-04",
		"/api/v1/heatmap?kind=radar",
		"/api/v1/heatmap?endpoint=middle",
		"/api/v1/clusters?eps=-1",
		"/api/v1/hotspots?mode=ferry",
	} {
		t.Run(target, func(t *testing.T) {
			code, body := do(t, app, "GET", target)
			if code != fiber.StatusBadRequest || body["error"] != true || body["message"] == "" {
				t.Errorf("GET %s = %d %v, want 400", target, code, body)
			}
		})
	}
}

func TestRefresh(t *testing.T) {
	app, trigger := setupApp(t, true)

	code, body := do(t, app, "POST", "/api/v1/refresh")
	if code != fiber.StatusAccepted || body["accepted"] != true {
		t.Errorf("first refresh = %d %v", code, body)
	}
	code, body = do(t, app, "POST", "/api/v1/refresh")
	if code != fiber.StatusAccepted || body["accepted"] != false {
		t.Errorf("second refresh = %d %v", code, body)
	}
	if trigger.n != 2 {
		t.Errorf("trigger calls = %d, want 2", trigger.n)
	}
}

func TestCacheStatus(t *testing.T) {
	app, _ := setupApp(t, true)

	do(t, app, "GET", "/api/v1/summary")
	do(t, app, "GET", "/api/v1/summary")

	code, body := do(t, app, "GET", "/api/v1/cache/status")
	if code != fiber.StatusOK {
		t.Fatalf("GET /api/v1/cache/status = %d", code)
	}
	data := body["data"].(map[string]any)
	if data["hits"] != float64(1) || data["computations"] != float64(1) || data["data_version"] != float64(1) {
		t.Errorf("cache status = %v", data)
	}
	if last, ok := data["last_run"].(map[string]any); !ok || last["status"] != "completed" {
		t.Errorf("last_run = %v", data["last_run"])
	}
}

func TestMetrics(t *testing.T) {
	app, _ := setupApp(t, true)

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || len(raw) == 0 {
		t.Errorf("GET /metrics = %d, %d bytes", resp.StatusCode, len(raw))
	}
}
