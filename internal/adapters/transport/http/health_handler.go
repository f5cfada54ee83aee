package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/agile-platform/backend/internal/app/pool"
	"github.com/agile-platform/backend/internal/infra/db"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthChecker runs an active database probe.
type HealthChecker interface {
	Check(ctx context.Context) pool.Health
}

type HealthHandler struct {
	probe  HealthChecker
	source pool.Snapshotter
	limits db.Limits
	log    *zap.Logger
}

func NewHealthHandler(probe HealthChecker, source pool.Snapshotter, limits db.Limits, log *zap.Logger) *HealthHandler {
	return &HealthHandler{probe: probe, source: source, limits: limits, log: log}
}

type poolStats struct {
	TotalCount      int              `json:"totalCount"`
	IdleCount       int              `json:"idleCount"`
	WaitingCount    int              `json:"waitingCount"`
	ConnectionCount int              `json:"connectionCount"`
	ErrorCount      int              `json:"errorCount"`
	LastErrorTime   *time.Time       `json:"lastErrorTime"`
	CoolingDown     bool             `json:"coolingDown"`
	Config          map[string]int64 `json:"config"`
}

func (h *HealthHandler) stats(m pool.Metrics) poolStats {
	s := poolStats{
		TotalCount:      m.TotalConnections,
		IdleCount:       m.IdleConnections,
		WaitingCount:    m.WaitingRequests,
		ConnectionCount: m.EstablishedCount,
		ErrorCount:      m.ErrorCount,
		CoolingDown:     m.CoolingDown,
		Config:          h.limits.Millis(),
	}
	if !m.LastErrorAt.IsZero() {
		t := m.LastErrorAt.UTC()
		s.LastErrorTime = &t
	}
	return s
}

func (h *HealthHandler) now() time.Time { return h.source.Now().UTC() }

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": h.now()})
}

func (h *HealthHandler) Database(c *gin.Context) {
	health := h.probe.Check(c.Request.Context())

	status, code := "healthy", http.StatusOK
	if !health.Healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"database":  health,
		"pool":      h.stats(health.Metrics),
		"timestamp": h.now(),
	})
}

func (h *HealthHandler) PoolStats(c *gin.Context) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("pool stats failed", zap.Error(fmt.Errorf("%v", r)))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get pool stats"})
		}
	}()

	c.JSON(http.StatusOK, gin.H{
		"pool":      h.stats(h.source.Snapshot()),
		"timestamp": h.now(),
	})
}
