package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/smartcity/mobility/internal/cache"
	"github.com/smartcity/mobility/internal/cluster"
	"github.com/smartcity/mobility/internal/config"
	"github.com/smartcity/mobility/internal/delivery/http"
	"github.com/smartcity/mobility/internal/domain"
	"github.com/smartcity/mobility/internal/feature"
	"github.com/smartcity/mobility/internal/normalize"
	"github.com/smartcity/mobility/internal/pipeline"
	"github.com/smartcity/mobility/internal/repository/postgres"
	"github.com/smartcity/mobility/internal/repository/redis"
	"github.com/smartcity/mobility/internal/repository/sqlite"
	"github.com/smartcity/mobility/internal/service"
	"github.com/smartcity/mobility/internal/validate"
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)
	if envErr != nil {
		log.Info("no .env file found, using system environment")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Dependency Injection: Repositories
	schemas := normalize.DefaultSchemas()
	source, closeSource := openSource(ctx, cfg, schemas, log)
	defer closeSource()

	var notifier pipeline.Notifier
	if cfg.RedisURL != "" {
		n, err := redis.NewRunNotifier(ctx, cfg.RedisURL, log)
		if err != nil {
			log.Warn("redis unavailable, run notifications disabled", "error", err)
		} else {
			defer n.Close()
			notifier = n
			log.Info("connected to redis")
		}
	}

	// Dependency Injection: Pipeline
	clusterer, err := cluster.New(domain.ClusterParams{EpsMeters: cfg.Cluster.EpsMeters, MinPts: cfg.Cluster.MinPts})
	if err != nil {
		log.Error("invalid clustering parameters", "error", err)
		os.Exit(1)
	}
	aggCache := cache.New(cache.Options{
		Freshness:  cfg.Cache.Freshness,
		Retention:  cfg.Cache.Retention,
		MaxEntries: cfg.Cache.MaxEntries,
		Logger:     log,
	})
	store := pipeline.NewStore(aggCache)
	etl := pipeline.New(source, pipeline.Stages{
		Normalizer: normalize.New(schemas, loc),
		Validator:  validate.New(cfg.Validation),
		Features:   feature.New(cfg.Validation.MinDuration),
		Clusterer:  clusterer,
	}, store, pipeline.Options{
		ZonePrecision: cfg.ZonePrecision,
		BucketHours:   cfg.Cluster.BucketHours,
		Logger:        log,
		Notifier:      notifier,
	})
	refresher := pipeline.NewRefresher(etl, cfg.RefreshInterval, log)

	refresherDone := make(chan struct{})
	go func() {
		defer close(refresherDone)
		refresher.Start(ctx)
	}()

	// Dependency Injection: Services
	querySvc := service.NewQueryService(store, aggCache, clusterer, refresher, service.Options{
		Bounds:  cfg.Validation.Bounds,
		CellDeg: cfg.HeatmapCellDeg,
		Logger:  log,
	})

	// Fiber App
	app := fiber.New(fiber.Config{
		AppName:      "Mobility ETL API v1.0",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: http.ErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Routes
	http.SetupRoutes(app, http.NewHandler(querySvc, loc))

	// Graceful shutdown
	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "data_source", cfg.DataSource)
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")
	stop()
	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Warn("server forced to shutdown", "error", err)
	}
	select {
	case <-refresherDone:
	case <-time.After(5 * time.Second):
		log.Warn("ETL run did not stop in time")
	}
	log.Info("server exited gracefully")
}

// openSource connects the configured data source, falling back to the
// synthetic mock data when the database cannot be reached
func openSource(ctx context.Context, cfg *config.Config, schemas map[domain.Mode]normalize.Schema, log *slog.Logger) (domain.DataRepository, func()) {
	mock := func() (domain.DataRepository, func()) {
		log.Warn("running with mock data only")
		return postgres.NewMockRepository(42, cfg.FetchLimit/20), func() {}
	}

	switch cfg.DataSource {
	case "mock":
		return mock()

	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Warn("could not open sqlite database", "path", cfg.SQLitePath, "error", err)
			return mock()
		}
		log.Info("opened sqlite database", "path", cfg.SQLitePath)
		repo := sqlite.New(db, schemas, cfg.FetchLimit)
		return repo, func() { repo.Close() }

	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		pool, err := pgxpool.New(connectCtx, cfg.DatabaseURL)
		if err == nil {
			err = pool.Ping(connectCtx)
			if err != nil {
				pool.Close()
			}
		}
		if err != nil {
			log.Warn("could not connect to database", "error", err)
			return mock()
		}
		log.Info("connected to postgres")
		return postgres.NewPostgresRepository(pool, schemas, cfg.FetchLimit), pool.Close
	}
}
