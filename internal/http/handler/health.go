package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smallbiznis/calendar-gateway/internal/repository"
)

// HealthHandler reports dependency reachability.
type HealthHandler struct {
	checks  map[string]repository.Pinger
	timeout time.Duration
}

// NewHealthHandler registers named dependencies; nil pingers are skipped.
func NewHealthHandler(checks map[string]repository.Pinger) *HealthHandler {
	filtered := make(map[string]repository.Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			filtered[name] = p
		}
	}
	return &HealthHandler{checks: filtered, timeout: 2 * time.Second}
}

// Health answers 200 when every dependency responds, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := gin.H{}
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results, "time": time.Now().UTC().Format(time.RFC3339)})
}
