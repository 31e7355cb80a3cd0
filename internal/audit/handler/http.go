// Package handler lists the audit trail to admins.
package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"gymhub/backend/internal/audit/repository"
	"gymhub/backend/internal/platform/apperr"
	"gymhub/backend/internal/platform/httpx"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Handler serves GET /v1/admin/audit-logs.
type Handler struct {
	repo repository.Repository
}

// NewHandler returns an audit Handler reading from repo.
func NewHandler(repo repository.Repository) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /v1/admin/audit-logs?user_id=&action=&resource=&limit=&offset=.
func (h *Handler) List(c *gin.Context) {
	limit, err := intParam(c, "limit", defaultLimit)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	if limit == 0 || limit > maxLimit {
		limit = maxLimit
	}
	logs, err := h.repo.List(c.Request.Context(), repository.ListFilter{
		UserID:   c.Query("user_id"),
		Action:   c.Query("action"),
		Resource: c.Query("resource"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, logs)
}

func intParam(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.NewValidation(name, "must be a non-negative integer")
	}
	return n, nil
}
