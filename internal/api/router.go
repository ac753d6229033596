package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/STRATINT/mentionwatch/internal/auth"
	"github.com/STRATINT/mentionwatch/internal/collector"
	"github.com/STRATINT/mentionwatch/internal/metrics"
	"github.com/STRATINT/mentionwatch/internal/models"
)

// CollectorService is the collector surface behind the ops API.
// *collector.Service implements it.
type CollectorService interface {
	Overview(ctx context.Context) (collector.Overview, error)
	RecentRuns(ctx context.Context, limit int) ([]models.RunReport, error)
	RecentMentions(ctx context.Context, period time.Duration, limit int) ([]models.MentionSnapshot, error)
	Mention(ctx context.Context, postID string) (*models.MentionSnapshot, error)
	Trigger(source string) bool
}

// HealthFunc reports whether the snapshot store is reachable.
type HealthFunc func(ctx context.Context) error

// RouterConfig carries everything the ops router mounts. Auth, the collector
// routes and MCP are only mounted when AuthEnabled is set.
type RouterConfig struct {
	Collector   CollectorService
	Health      HealthFunc
	Metrics     *metrics.HTTPCollector
	MCP         http.Handler
	Auth        auth.Config
	AuthEnabled bool
	Logger      *slog.Logger
}

// NewRouter builds the ops HTTP handler.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.InstrumentHandler)
	}

	handler := NewHandler(cfg.Collector, cfg.Health, cfg.Logger)

	r.Get("/healthz", handler.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	if !cfg.AuthEnabled {
		cfg.Logger.Warn("ADMIN_JWT_SECRET or admin password not set, collector API and MCP endpoint disabled")
		return r
	}

	authHandler := NewAuthHandler(cfg.Auth, cfg.Logger)
	r.Post("/api/auth/login", authHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Auth))

		r.Get("/api/auth/validate", authHandler.ValidateToken)
		r.Get("/api/collector", handler.GetCollector)
		r.Get("/api/collector/runs", handler.ListRuns)
		r.Post("/api/collector/runs", handler.TriggerRun)
		r.Get("/api/collector/mentions", handler.ListMentions)
		r.Get("/api/collector/mentions/{postID}", handler.GetMention)
		if cfg.MCP != nil {
			r.Handle("/mcp", cfg.MCP)
		}
	})

	return r
}
