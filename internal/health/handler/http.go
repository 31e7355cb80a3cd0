// Package handler serves liveness and readiness probes.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// checkTimeout bounds each readiness dependency check.
const checkTimeout = 2 * time.Second

// Pinger checks that the backend data service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the policy engine can evaluate.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves /healthz and /readyz. Either dependency may be nil and is then skipped.
type Handler struct {
	pinger Pinger
	policy PolicyChecker
}

// NewHandler returns a health Handler.
func NewHandler(pinger Pinger, policy PolicyChecker) *Handler {
	return &Handler{pinger: pinger, policy: policy}
}

// Live handles GET /healthz.
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /readyz. It answers 503 when any dependency check fails.
func (h *Handler) Ready(c *gin.Context) {
	checks := map[string]string{}
	healthy := true
	run := func(name string, fn func(context.Context) error) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), checkTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	if h.pinger != nil {
		run("backend", h.pinger.Ping)
	}
	if h.policy != nil {
		run("policy", h.policy.HealthCheck)
	}
	if !healthy {
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
