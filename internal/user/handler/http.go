// Package handler exposes profile self-service and admin user management over HTTP.
package handler

import (
	"github.com/gin-gonic/gin"

	"gymhub/backend/internal/platform/httpx"
	roledomain "gymhub/backend/internal/role/domain"
	"gymhub/backend/internal/server/middleware"
	"gymhub/backend/internal/user/domain"
	"gymhub/backend/internal/user/service"
)

// Handler serves the /v1/me and /v1/admin/users routes.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a user Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Me handles GET /v1/me.
func (h *Handler) Me(c *gin.Context) {
	me, err := h.svc.Me(c.Request.Context(), middleware.Identity(c))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, me)
}

// UpdateMe handles PUT /v1/me.
func (h *Handler) UpdateMe(c *gin.Context) {
	var in domain.ProfileUpdate
	if err := httpx.BindJSON(c, &in); err != nil {
		httpx.WriteError(c, err)
		return
	}
	p, err := h.svc.UpdateProfile(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, p)
}

// CompleteOnboarding handles POST /v1/me/onboarding.
func (h *Handler) CompleteOnboarding(c *gin.Context) {
	p, err := h.svc.CompleteOnboarding(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, p)
}

// List handles GET /v1/admin/users?search=&role=.
func (h *Handler) List(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context(), c.Query("search"), c.DefaultQuery("role", "all"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, users)
}

type changeRoleRequest struct {
	Role roledomain.Role `json:"role"`
}

// ChangeRole handles PUT /v1/admin/users/:id/role.
func (h *Handler) ChangeRole(c *gin.Context) {
	var in changeRoleRequest
	if err := httpx.BindJSON(c, &in); err != nil {
		httpx.WriteError(c, err)
		return
	}
	userID := c.Param("id")
	if err := h.svc.ChangeRole(c.Request.Context(), middleware.UserID(c), userID, in.Role); err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, gin.H{"user_id": userID, "role": in.Role})
}
