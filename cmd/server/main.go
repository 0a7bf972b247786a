package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/database"
	"github.com/stemsi/exstem-session/internal/handler"
	"github.com/stemsi/exstem-session/internal/logger"
	"github.com/stemsi/exstem-session/internal/metrics"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/recovery"
	"github.com/stemsi/exstem-session/internal/repository"
	"github.com/stemsi/exstem-session/internal/router"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
	"github.com/stemsi/exstem-session/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("snapshot_driver", cfg.SnapshotDriver).
		Msg("Starting ExStem Session")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Metrics ───────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(registry)

	// ─── Health Checks ─────────────────────────────────────────────────
	checks := map[string]handler.Check{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	// ─── Snapshot Store ────────────────────────────────────────────────
	snapshots, snapshotDB := openSnapshotStore(ctx, cfg, rdb, log)
	if snapshotDB != nil {
		defer snapshotDB.Close()
		checks["snapshots"] = snapshotDB.PingContext
	}

	// ─── Initialize Repositories ───────────────────────────────────────
	testRepo := repository.NewTestRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	testService := service.NewTestService(testRepo, attemptRepo, rdb, log)
	sessionService := service.NewSessionService(testService, snapshots, service.SessionConfigFromConfig(cfg), recorder, log)
	progressService := service.NewProgressService(snapshots, cfg.SnapshotMaxAge, recorder, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Health:   handler.NewHealthHandler(rdb, checks, log),
		Progress: handler.NewProgressHandler(progressService, testService),
		Session:  handler.NewSessionWSHandler(sessionService, log, cfg.AllowedOrigins),
	}
	progressLimiter := middleware.NewRateLimiter(rdb, "progress", cfg.ProgressRateLimit, time.Minute, log)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	resultWorker := worker.NewResultWorker(attemptRepo, rdb, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		resultWorker.Start(workerCtx)
	}()

	if purger, ok := snapshots.(worker.SnapshotPurger); ok {
		janitor := worker.NewSnapshotJanitor(purger, cfg.SnapshotMaxAge, worker.DefaultJanitorInterval, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			janitor.Start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, progressLimiter, registry, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Close live test sessions so each one saves its last snapshot.
	sessionService.CloseAll()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// openSnapshotStore builds the recovery snapshot repository selected by
// SNAPSHOT_DRIVER. The returned *sql.DB is non-nil for the SQL drivers.
func openSnapshotStore(ctx context.Context, cfg *config.Config, rdb *redis.Client, log zerolog.Logger) (recovery.Repository, *sql.DB) {
	switch cfg.SnapshotDriver {
	case config.SnapshotDriverRedis:
		return repository.NewProgressRedisRepository(rdb, cfg.SnapshotMaxAge), nil

	case config.SnapshotDriverSQLite, config.SnapshotDriverPostgres:
		driver, dsn := database.SQLDriverSQLite, cfg.SQLiteDSN
		if cfg.SnapshotDriver == config.SnapshotDriverPostgres {
			driver, dsn = database.SQLDriverPostgres, cfg.DatabaseURL
		}
		db, err := database.OpenSnapshotDB(ctx, driver, dsn, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open snapshot database")
		}
		return repository.NewProgressSQLRepository(db), db

	case config.SnapshotDriverMemory:
		log.Warn().Msg("Snapshots are kept in memory and will not survive a restart")
		return recovery.NewMemoryRepository(), nil

	default:
		log.Fatal().Str("driver", cfg.SnapshotDriver).Msg("Unknown SNAPSHOT_DRIVER")
		return nil, nil
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
