package handler

import (
	"context"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// ReadinessCheck pings one backing service.
type ReadinessCheck func(ctx context.Context) error

// HealthHandler 健康检查
type HealthHandler struct {
	checks map[string]ReadinessCheck
}

func NewHealthHandler(checks map[string]ReadinessCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Live GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	Success(c, gin.H{"status": "ok"})
}

// Ready GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			status[name] = err.Error()
			ready = false
			continue
		}
		status[name] = "ok"
	}

	if !ready {
		c.JSON(503, Response{Code: 50300, Message: "not ready", Data: status})
		return
	}
	Success(c, status)
}
