package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/infrastructure/storage/postgres"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolStatser reports connection pool usage.
type PoolStatser interface {
	Stats() postgres.PoolStats
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db    Pinger
	stats PoolStatser
}

// NewHealthHandler creates a health handler. stats may be nil.
func NewHealthHandler(db Pinger, stats PoolStatser) *HealthHandler {
	return &HealthHandler{db: db, stats: stats}
}

// Live handles the liveness probe.
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles the readiness probe.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "error",
			"checks": map[string]string{"database": "unhealthy: " + err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"checks": map[string]string{"database": "healthy"},
	})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{"app": "stockledger"}
	if h.stats != nil {
		s := h.stats.Stats()
		body["database"] = map[string]any{
			"total_conns":    s.TotalConns,
			"acquired_conns": s.AcquiredConns,
			"idle_conns":     s.IdleConns,
			"max_conns":      s.MaxConns,
		}
	}
	c.JSON(http.StatusOK, body)
}
