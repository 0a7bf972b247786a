package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/response"
)

const healthTimeout = 2 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthHandler reports dependency and runtime health.
type HealthHandler struct {
	rdb       *redis.Client
	checks    map[string]Check
	startTime time.Time
	log       zerolog.Logger
}

// NewHealthHandler creates a HealthHandler. rdb may be nil when Redis is not
// wired, in which case queue depth is not reported.
func NewHealthHandler(rdb *redis.Client, checks map[string]Check, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		rdb:       rdb,
		checks:    checks,
		startTime: time.Now(),
		log:       log.With().Str("component", "health_handler").Logger(),
	}
}

type healthReport struct {
	Status     string            `json:"status"`
	Uptime     string            `json:"uptime"`
	Goroutines int               `json:"goroutines"`
	Components map[string]string `json:"components"`
	Queues     map[string]int64  `json:"queues,omitempty"`
}

// Health godoc
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Truncate(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
		Components: make(map[string]string, len(h.checks)),
	}

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn().Err(err).Str("check", name).Msg("Health check failed")
			report.Components[name] = "down"
			report.Status = "degraded"
			continue
		}
		report.Components[name] = "up"
	}

	if h.rdb != nil {
		if n, err := h.rdb.LLen(ctx, config.WorkerKey.PersistResultsQueue).Result(); err == nil {
			report.Queues = map[string]int64{config.WorkerKey.PersistResultsQueue: n}
		}
	}

	if report.Status != "ok" {
		response.FailWithFields(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable, report.Components)
		return
	}
	response.Success(c, http.StatusOK, report)
}
