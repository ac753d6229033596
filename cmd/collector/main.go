package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/STRATINT/mentionwatch/internal/api"
	"github.com/STRATINT/mentionwatch/internal/auth"
	"github.com/STRATINT/mentionwatch/internal/cloudsql"
	"github.com/STRATINT/mentionwatch/internal/collector"
	"github.com/STRATINT/mentionwatch/internal/config"
	"github.com/STRATINT/mentionwatch/internal/database"
	"github.com/STRATINT/mentionwatch/internal/ingestion"
	"github.com/STRATINT/mentionwatch/internal/logging"
	"github.com/STRATINT/mentionwatch/internal/mcptools"
	"github.com/STRATINT/mentionwatch/internal/metrics"
	"github.com/STRATINT/mentionwatch/internal/scheduler"
	"github.com/STRATINT/mentionwatch/internal/server"
)

const version = "0.1.0"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-password" {
		os.Exit(hashPassword(os.Args[2:]))
	}
	os.Exit(run())
}

func run() int {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to load config", "error", err)
		return 1
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("failed to init logger", "error", err)
		return 1
	}

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		logger.Warn("failed to read .env file", "error", envErr)
	}

	logger.Info("starting mentionwatch",
		"version", version,
		"handle", cfg.Collector.Handle,
		"time_of_day", cfg.Collector.TimeOfDay.String(),
		"timezone", cfg.Collector.Location.String(),
		"store", cfg.Store.Driver,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg.Store, logger)
	if err != nil {
		logger.Error("failed to open snapshot store", "error", err)
		return 1
	}
	defer store.close()

	registry := metrics.NewRegistry()
	httpMetrics, err := metrics.NewHTTPCollector(registry)
	if err != nil {
		logger.Error("failed to init http metrics", "error", err)
		return 1
	}
	ingestionMetrics, err := metrics.NewIngestionCollector(registry)
	if err != nil {
		logger.Error("failed to init ingestion metrics", "error", err)
		return 1
	}

	budget := ingestion.NewRateBudget(cfg.RateLimit.RequestLimit, cfg.RateLimit.ItemLimit, cfg.RateLimit.Window)
	client, err := ingestion.NewSearchClient(
		cfg.Twitter,
		ingestion.RetryPolicyFromConfig(cfg.Retry),
		cfg.RateLimit.MaxWaits,
		budget,
		logger,
		ingestion.WithRecorder(ingestionMetrics),
	)
	if err != nil {
		logger.Error("search client unavailable", "error", err)
		return 1
	}
	if cfg.Twitter.HasOAuth1() {
		logger.Info("search client using OAuth 1.0a user context")
	} else {
		logger.Info("search client using app-only bearer token")
	}

	writer := ingestion.NewSnapshotWriter(store.snapshots, logger)
	job := ingestion.NewJob(cfg.Collector, client, writer, logger, ingestion.WithJobRecorder(ingestionMetrics))

	sched, err := scheduler.New(cfg.Collector, job, logger,
		scheduler.WithSkipRecorder(ingestionMetrics),
		scheduler.WithRunHistory(store.runs),
	)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		return 1
	}

	svc := collector.NewService(sched, budget, store.snapshots, store.runs)
	router := api.NewRouter(api.RouterConfig{
		Collector:   svc,
		Health:      store.health,
		Metrics:     httpMetrics,
		MCP:         mcptools.NewHandler(mcptools.NewServer(svc, version, logger)),
		Auth:        auth.ConfigFrom(cfg.Auth),
		AuthEnabled: cfg.Auth.Enabled(),
		Logger:      logger,
	})

	srv := server.New(cfg.Server, logger, router)
	ln, err := srv.Listen()
	if err != nil {
		logger.Error("failed to listen", "error", err)
		return 1
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ctx, ln)
	}()

	sched.Start()
	logger.Info("mentionwatch started", "port", cfg.Server.Port)

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-sched.Fatal():
		logger.Error("collector halted, exiting", "error", err)
		exitCode = 1
	case err := <-serveErr:
		if err != nil {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
		serveErr = nil
	}

	// Cancelling ctx also shuts the HTTP server down.
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown error", "error", err)
	}
	if serveErr != nil {
		if err := <-serveErr; err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return exitCode
}

type snapshotStore struct {
	snapshots ingestion.SnapshotRepository
	runs      scheduler.RunHistory
	health    api.HealthFunc // nil for the in-memory store
	close     func()
}

// openStore opens the configured snapshot store and run history.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*snapshotStore, error) {
	if cfg.Driver == "memory" {
		logger.Warn("using in-memory snapshot store, snapshots are lost on exit")
		return &snapshotStore{
			snapshots: ingestion.NewMemorySnapshotRepository(),
			runs:      scheduler.NewMemoryRunHistory(),
			close:     func() {},
		}, nil
	}

	dbCfg := database.DefaultConfig()
	dbCfg.Dialect = database.Dialect(cfg.Driver)
	dbCfg.URL = cfg.URL

	logger.Info("connecting to database", "driver", cfg.Driver, "url", cloudsql.Redact(cfg.URL))
	db, err := database.Connect(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database connected")

	if err := database.RunMigrations(ctx, db, dbCfg.Dialect, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &snapshotStore{
		snapshots: database.NewSnapshotRepository(db, dbCfg.Dialect),
		runs:      database.NewRunRepository(db, dbCfg.Dialect),
		health: func(ctx context.Context) error {
			return database.HealthCheck(ctx, db)
		},
		close: func() {
			logger.Info("closing database", "pool", database.Stats(db))
			if err := db.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		},
	}, nil
}

// hashPassword prints a bcrypt hash for ADMIN_PASSWORD_HASH.
func hashPassword(args []string) int {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(os.Stderr, "usage: collector hash-password <password>")
		return 2
	}
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		return 1
	}
	fmt.Println(hash)
	return 0
}
