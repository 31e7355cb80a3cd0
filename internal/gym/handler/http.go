// Package handler exposes gym browsing and owner gym/plan management over HTTP.
package handler

import (
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"gymhub/backend/internal/gym/domain"
	"gymhub/backend/internal/gym/service"
	"gymhub/backend/internal/platform/apperr"
	"gymhub/backend/internal/platform/httpx"
	"gymhub/backend/internal/server/middleware"
)

// photoField is the multipart field of an uploaded gym photo.
const photoField = "photo"

// Handler serves /v1/gyms, /v1/owner/gyms and /v1/owner/plans.
type Handler struct {
	svc *service.Service
}

// NewHandler returns a gym Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Browse handles GET /v1/gyms?search=.
func (h *Handler) Browse(c *gin.Context) {
	gyms, err := h.svc.BrowseGyms(c.Request.Context(), c.Query("search"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, gyms)
}

// Details handles GET /v1/gyms/:id.
func (h *Handler) Details(c *gin.Context) {
	d, err := h.svc.GymDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, d)
}

// ListOwned handles GET /v1/owner/gyms.
func (h *Handler) ListOwned(c *gin.Context) {
	gyms, err := h.svc.ListOwnerGyms(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, gyms)
}

// Create handles POST /v1/owner/gyms.
func (h *Handler) Create(c *gin.Context) {
	var in domain.GymInput
	if err := httpx.BindJSON(c, &in); err != nil {
		httpx.WriteError(c, err)
		return
	}
	g, err := h.svc.CreateGym(c.Request.Context(), middleware.UserID(c), in)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.Created(c, g)
}

// Update handles PUT /v1/owner/gyms/:id.
func (h *Handler) Update(c *gin.Context) {
	var in domain.GymInput
	if err := httpx.BindJSON(c, &in); err != nil {
		httpx.WriteError(c, err)
		return
	}
	g, err := h.svc.UpdateGym(c.Request.Context(), middleware.UserID(c), c.Param("id"), in)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, g)
}

// Delete handles DELETE /v1/owner/gyms/:id.
func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.DeleteGym(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadPhoto handles POST /v1/owner/gyms/:id/photos with a multipart "photo" file.
func (h *Handler) UploadPhoto(c *gin.Context) {
	fh, err := c.FormFile(photoField)
	if err != nil {
		httpx.WriteError(c, apperr.NewValidation(photoField, "a multipart file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, service.MaxPhotoBytes+1))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	contentType, _, _ := mime.ParseMediaType(fh.Header.Get("Content-Type"))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	g, err := h.svc.UploadGymPhoto(c.Request.Context(), middleware.UserID(c), c.Param("id"), contentType, data)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.Created(c, g)
}

// DeletePhoto handles DELETE /v1/owner/gyms/:id/photos?url=.
func (h *Handler) DeletePhoto(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		httpx.WriteError(c, apperr.NewValidation("url", "is required"))
		return
	}
	g, err := h.svc.DeleteGymPhoto(c.Request.Context(), middleware.UserID(c), c.Param("id"), url)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, g)
}

// ListPlans handles GET /v1/owner/gyms/:id/plans.
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.svc.ListPlans(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, plans)
}

// CreatePlan handles POST /v1/owner/gyms/:id/plans.
func (h *Handler) CreatePlan(c *gin.Context) {
	var in domain.PlanInput
	if err := httpx.BindJSON(c, &in); err != nil {
		httpx.WriteError(c, err)
		return
	}
	p, err := h.svc.CreatePlan(c.Request.Context(), middleware.UserID(c), c.Param("id"), in)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.Created(c, p)
}

// UpdatePlan handles PUT /v1/owner/plans/:id.
func (h *Handler) UpdatePlan(c *gin.Context) {
	var in domain.PlanInput
	if err := httpx.BindJSON(c, &in); err != nil {
		httpx.WriteError(c, err)
		return
	}
	p, err := h.svc.UpdatePlan(c.Request.Context(), middleware.UserID(c), c.Param("id"), in)
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, p)
}

// TogglePlan handles POST /v1/owner/plans/:id/toggle.
func (h *Handler) TogglePlan(c *gin.Context) {
	p, err := h.svc.TogglePlan(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		httpx.WriteError(c, err)
		return
	}
	httpx.OK(c, p)
}

// DeletePlan handles DELETE /v1/owner/plans/:id.
func (h *Handler) DeletePlan(c *gin.Context) {
	if err := h.svc.DeletePlan(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		httpx.WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
