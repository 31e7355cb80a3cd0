// Package handler exposes the owner application workflow over HTTP.
package handler

import (
	"github.com/gin-gonic/gin"

	"gymhub/backend/internal/application/domain"
	"gymhub/backend/internal/application/service"
	"gymhub/backend/internal/platform/httpx"
	"gymhub/backend/internal/server/middleware"
)

// Handler serves /v1/applications and /v1/admin/applications.
type Handler struct {
	workflow *service.Workflow
}

// NewHandler returns an application Handler.
func NewHandler(w *service.Workflow) *Handler {
	return &Handler{workflow: w}
}

// Submit handles POST /v1/applications.
func (h *Handler) Submit(c *gin.Context) {
	var fields domain.Fields
	if err := httpx.BindJSON(c, &fields); err != nil {
		httpx.WriteError(c, err)
		return
	}
	app, err := h.workflow.SubmitApplication(c.Request.Context(), middleware.UserID(c), fields)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.Created(c, app)
}

// Status handles GET /v1/applications/me.
func (h *Handler) Status(c *gin.Context) {
	status, err := h.workflow.CheckStatus(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, gin.H{"status": status})
}

// List handles GET /v1/admin/applications?status=.
func (h *Handler) List(c *gin.Context) {
	apps, err := h.workflow.ListApplications(c.Request.Context(), c.Query("status"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, apps)
}

// Get handles GET /v1/admin/applications/:id.
func (h *Handler) Get(c *gin.Context) {
	app, err := h.workflow.GetApplication(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, app)
}

// Approve handles POST /v1/admin/applications/:id/approve. A failed promotion answers 207
// with the application id; the promotion is retried in the background.
func (h *Handler) Approve(c *gin.Context) {
	app, err := h.workflow.Approve(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, app)
}

// Reject handles POST /v1/admin/applications/:id/reject.
func (h *Handler) Reject(c *gin.Context) {
	app, err := h.workflow.Reject(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, app)
}

// RetryPromotion handles POST /v1/admin/applications/:id/retry-promotion.
func (h *Handler) RetryPromotion(c *gin.Context) {
	id := c.Param("id")
	if err := h.workflow.RetryPromotion(c.Request.Context(), id, middleware.UserID(c)); err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, gin.H{"application_id": id, "promoted": true})
}
