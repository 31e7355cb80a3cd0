// Package server builds the gin HTTP API: middleware chain, routes and role gates.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	apphandler "gymhub/backend/internal/application/handler"
	appservice "gymhub/backend/internal/application/service"
	"gymhub/backend/internal/audit"
	audithandler "gymhub/backend/internal/audit/handler"
	auditrepo "gymhub/backend/internal/audit/repository"
	"gymhub/backend/internal/backend"
	gymhandler "gymhub/backend/internal/gym/handler"
	gymservice "gymhub/backend/internal/gym/service"
	healthhandler "gymhub/backend/internal/health/handler"
	"gymhub/backend/internal/logger"
	membershiphandler "gymhub/backend/internal/membership/handler"
	membershipservice "gymhub/backend/internal/membership/service"
	"gymhub/backend/internal/metrics"
	"gymhub/backend/internal/platform/rbac"
	roledomain "gymhub/backend/internal/role/domain"
	"gymhub/backend/internal/server/middleware"
	userhandler "gymhub/backend/internal/user/handler"
	userservice "gymhub/backend/internal/user/service"
)

// maxMultipartMemory bounds the in-memory part of a photo upload.
const maxMultipartMemory = 8 << 20

// Deps holds the services and infrastructure the router wires.
type Deps struct {
	// Authenticator resolves Bearer tokens. Required.
	Authenticator backend.Authenticator
	// Roles resolves the caller's role for route gates. Required.
	Roles rbac.RoleGetter
	Users       *userservice.Service
	Workflow    *appservice.Workflow
	Gyms        *gymservice.Service
	Memberships *membershipservice.Service
	// Audit records mutating requests. If nil, nothing is audited by the middleware.
	Audit audit.AuditLogger
	// AuditLogs backs GET /v1/admin/audit-logs. Optional.
	AuditLogs auditrepo.Repository
	// Metrics exposes /metrics and instruments every route. Optional.
	Metrics *metrics.Metrics
	// RateLimiter limits requests per client IP. Optional.
	RateLimiter *middleware.RateLimiter
	// HealthPinger and HealthPolicyChecker back /readyz. Either may be nil.
	HealthPinger        healthhandler.Pinger
	HealthPolicyChecker healthhandler.PolicyChecker
	// TrustedProxies are the proxy IPs or CIDRs whose X-Forwarded-For sets the client IP.
	// Nil trusts none.
	TrustedProxies []string
	// ServiceName names the otelgin spans. If empty, tracing middleware is not installed.
	ServiceName string
	Logger      *zap.Logger
}

// NewRouter returns the API router.
//
// Route → handler mapping:
//   - /healthz, /readyz                 → internal/health/handler
//   - /v1/me, /v1/admin/users           → internal/user/handler
//   - /v1/applications, /v1/admin/applications → internal/application/handler
//   - /v1/gyms, /v1/owner               → internal/gym/handler
//   - /v1/admin/audit-logs              → internal/audit/handler
//   - /v1/memberships, /v1/payments, /v1/gyms/:id/check-in → internal/membership/handler
func NewRouter(deps Deps) *gin.Engine {
	log := logger.OrNop(deps.Logger)
	r := gin.New()
	r.MaxMultipartMemory = maxMultipartMemory
	if err := r.SetTrustedProxies(deps.TrustedProxies); err != nil {
		log.Warn("invalid trusted proxies, trusting none", zap.Strings("proxies", deps.TrustedProxies), zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Error("panic in handler", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": gin.H{"kind": "internal", "message": "internal error"}})
	}))
	if deps.ServiceName != "" {
		r.Use(otelgin.Middleware(deps.ServiceName))
	}
	r.Use(middleware.RequestLogger(log), middleware.ClientIPContext())
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Middleware())
	}

	health := healthhandler.NewHandler(deps.HealthPinger, deps.HealthPolicyChecker)
	r.GET("/healthz", health.Live)
	r.GET("/readyz", health.Ready)

	v1 := r.Group("/v1")
	var profiles middleware.ProfileEnsurer
	if deps.Users != nil {
		profiles = deps.Users
	}
	v1.Use(middleware.Auth(deps.Authenticator, profiles, log))
	if deps.Audit != nil {
		v1.Use(middleware.Audit(deps.Audit))
	}
	admin := v1.Group("/admin", rbac.RequireRole(deps.Roles, roledomain.RoleAdmin))
	owner := v1.Group("/owner", rbac.RequireRole(deps.Roles, roledomain.RoleOwner))

	if deps.Users != nil {
		uh := userhandler.NewHandler(deps.Users)
		v1.GET("/me", uh.Me)
		v1.PUT("/me", uh.UpdateMe)
		v1.POST("/me/onboarding", uh.CompleteOnboarding)
		admin.GET("/users", uh.List)
		admin.PUT("/users/:id/role", uh.ChangeRole)
	}

	if deps.AuditLogs != nil {
		admin.GET("/audit-logs", audithandler.NewHandler(deps.AuditLogs).List)
	}

	if deps.Workflow != nil {
		ah := apphandler.NewHandler(deps.Workflow)
		v1.POST("/applications", rbac.RequireRole(deps.Roles, roledomain.RoleUser), ah.Submit)
		v1.GET("/applications/me", ah.Status)
		admin.GET("/applications", ah.List)
		admin.GET("/applications/:id", ah.Get)
		admin.POST("/applications/:id/approve", ah.Approve)
		admin.POST("/applications/:id/reject", ah.Reject)
		admin.POST("/applications/:id/retry-promotion", ah.RetryPromotion)
	}

	if deps.Gyms != nil {
		gh := gymhandler.NewHandler(deps.Gyms)
		v1.GET("/gyms", gh.Browse)
		v1.GET("/gyms/:id", gh.Details)
		owner.GET("/gyms", gh.ListOwned)
		owner.POST("/gyms", gh.Create)
		owner.PUT("/gyms/:id", gh.Update)
		owner.DELETE("/gyms/:id", gh.Delete)
		owner.POST("/gyms/:id/photos", gh.UploadPhoto)
		owner.DELETE("/gyms/:id/photos", gh.DeletePhoto)
		owner.GET("/gyms/:id/plans", gh.ListPlans)
		owner.POST("/gyms/:id/plans", gh.CreatePlan)
		owner.PUT("/plans/:id", gh.UpdatePlan)
		owner.DELETE("/plans/:id", gh.DeletePlan)
		owner.POST("/plans/:id/toggle", gh.TogglePlan)
	}

	if deps.Memberships != nil {
		mh := membershiphandler.NewHandler(deps.Memberships)
		v1.POST("/memberships", mh.Subscribe)
		v1.GET("/memberships", mh.List)
		v1.POST("/payments/:id/confirm", mh.ConfirmPayment)
		v1.POST("/gyms/:id/check-in", mh.CheckIn)
	}
	return r
}

// NewHTTPServer returns an http.Server for handler with conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
