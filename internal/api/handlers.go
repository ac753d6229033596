package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/STRATINT/mentionwatch/internal/scheduler"
)

const (
	healthCheckTimeout = 2 * time.Second
	defaultRunsLimit   = 20
	maxRunsLimit       = 200

	defaultMentionsHours = 24
	// Recent search only reaches back seven days.
	maxMentionsHours     = 7 * 24
	defaultMentionsLimit = 20
	maxMentionsLimit     = 200
)

// Handler serves the health and collector endpoints.
type Handler struct {
	collector CollectorService
	health    HealthFunc
	logger    *slog.Logger
	startTime time.Time
}

func NewHandler(collector CollectorService, health HealthFunc, logger *slog.Logger) *Handler {
	return &Handler{
		collector: collector,
		health:    health,
		logger:    logger,
		startTime: time.Now(),
	}
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
	}

	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := h.health(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			response["status"] = "unavailable"
			h.writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}
	}

	h.writeJSON(w, http.StatusOK, response)
}

// GetCollector handles GET /api/collector
func (h *Handler) GetCollector(w http.ResponseWriter, r *http.Request) {
	overview, err := h.collector.Overview(r.Context())
	if err != nil {
		h.logger.Error("failed to load collector status", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, overview)
}

// ListRuns handles GET /api/collector/runs?limit=N
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultRunsLimit, maxRunsLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runs, err := h.collector.RecentRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// TriggerRun handles POST /api/collector/runs
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if !h.collector.Trigger(scheduler.SourceManual) {
		h.writeJSON(w, http.StatusConflict, map[string]string{
			"status": "rejected",
			"error":  "a collection run is already active or the collector has halted",
		})
		return
	}

	h.logger.Info("manual collection triggered", "ip", r.RemoteAddr)
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ListMentions handles GET /api/collector/mentions?hours=H&limit=N
func (h *Handler) ListMentions(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours", defaultMentionsHours, maxMentionsHours)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := queryInt(r, "limit", defaultMentionsLimit, maxMentionsLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mentions, err := h.collector.RecentMentions(r.Context(), time.Duration(hours)*time.Hour, limit)
	if err != nil {
		h.logger.Error("failed to list mentions", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"mentions": mentions,
		"count":    len(mentions),
		"hours":    hours,
	})
}

// GetMention handles GET /api/collector/mentions/{postID}
func (h *Handler) GetMention(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	snap, err := h.collector.Mention(r.Context(), postID)
	if err != nil {
		h.logger.Error("failed to get mention", "post_id", postID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		http.Error(w, "Mention not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, snap)
}

// queryInt reads a positive integer query parameter, capped at max.
func queryInt(r *http.Request, key string, fallback, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return min(n, max), nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
