package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// Pinger is the slice of the store the health handler needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolReporter is optionally implemented by stores that can report
// connection-pool statistics for the readiness payload.
type PoolReporter interface {
	Stats() (open int, inUse int, waitDuration time.Duration)
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store   Pinger
	version string
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:   store,
		version: version,
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"ok":      true,
		"service": "licensegate",
		"uptime":  time.Since(h.started).String(),
	})
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{"status": "alive"})
}

// ReadinessCheck handles GET /api/health/ready. Ready means the store
// answers a ping within a short deadline.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed",
			slog.String("error", err.Error()))
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]interface{}{
			"status": "not_ready",
			"reason": "storage unreachable",
		})
		return
	}

	response := map[string]interface{}{"status": "ready"}
	if reporter, ok := h.store.(PoolReporter); ok {
		open, inUse, waitDuration := reporter.Stats()
		response["pool"] = map[string]interface{}{
			"open":   open,
			"in_use": inUse,
			"wait":   waitDuration.String(),
		}
	}
	render.JSON(w, r, response)
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"version": h.version,
	})
}
