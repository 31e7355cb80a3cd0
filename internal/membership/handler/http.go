// Package handler exposes memberships, payment confirmation and check-in over HTTP.
package handler

import (
	"github.com/gin-gonic/gin"

	"gymhub/backend/internal/membership/service"
	"gymhub/backend/internal/platform/httpx"
	"gymhub/backend/internal/server/middleware"
)

// Handler serves /v1/memberships, /v1/payments and the gym check-in route.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a membership Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

type subscribeRequest struct {
	PlanID string `json:"plan_id"`
}

// Subscribe handles POST /v1/memberships.
func (h *Handler) Subscribe(c *gin.Context) {
	var in subscribeRequest
	if err := httpx.BindJSON(c, &in); err != nil {
		httpx.WriteError(c, err)
		return
	}
	sub, err := h.svc.Subscribe(c.Request.Context(), middleware.UserID(c), in.PlanID)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.Created(c, sub)
}

// List handles GET /v1/memberships.
func (h *Handler) List(c *gin.Context) {
	ms, err := h.svc.ListMemberships(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, ms)
}

// ConfirmPayment handles POST /v1/payments/:id/confirm.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	p, err := h.svc.ConfirmPayment(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, p)
}

// CheckIn handles POST /v1/gyms/:id/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	a, err := h.svc.CheckIn(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.Created(c, a)
}
