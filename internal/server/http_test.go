package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appdomain "gymhub/backend/internal/application/domain"
	"gymhub/backend/internal/application/promotion"
	apprepo "gymhub/backend/internal/application/repository"
	appservice "gymhub/backend/internal/application/service"
	"gymhub/backend/internal/audit"
	auditrepo "gymhub/backend/internal/audit/repository"
	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/backend/memory"
	gymrepo "gymhub/backend/internal/gym/repository"
	gymservice "gymhub/backend/internal/gym/service"
	membershiprepo "gymhub/backend/internal/membership/repository"
	membershipservice "gymhub/backend/internal/membership/service"
	"gymhub/backend/internal/metrics"
	"gymhub/backend/internal/policy/engine"
	roledomain "gymhub/backend/internal/role/domain"
	rolerepo "gymhub/backend/internal/role/repository"
	roleservice "gymhub/backend/internal/role/service"
	"gymhub/backend/internal/security"
	"gymhub/backend/internal/server/middleware"
	userrepo "gymhub/backend/internal/user/repository"
	userservice "gymhub/backend/internal/user/service"
)

type testAPI struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
	roles  *roleservice.Service
	tokens *security.TokenVerifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWith(t, nil)
}

// newTestAPIWith builds the API over a memory store; adjust may change the router deps.
func newTestAPIWith(t *testing.T, adjust func(*Deps)) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := memory.New()
	tokens := security.NewTokenVerifier("test-secret", "authenticated")

	profiles := userrepo.NewStoreRepository(store)
	roleRepo := rolerepo.NewStoreRepository(store)
	roles := roleservice.NewService(roleRepo, profiles, nil)
	auditLogs := auditrepo.NewStoreRepository(store)
	auditLogger := audit.NewLogger(auditLogs, middleware.ClientIP, nil)
	m := metrics.New()

	workflow := appservice.NewWorkflow(
		apprepo.NewStoreRepository(store, roles, appdomain.PolicySinglePending),
		roles, promotion.NewStoreQueue(store), nil,
	).WithAudit(auditLogger).WithMetrics(m)
	users := userservice.NewService(profiles, roles, roleRepo, workflow, auditLogger, nil)

	policy, err := engine.NewOPAEvaluator(context.Background(), "", nil)
	require.NoError(t, err)
	gyms := gymservice.NewService(gymrepo.NewStoreRepository(store), roles, policy, store.Files(), "gym-photos", nil)
	memberships := membershipservice.NewService(membershiprepo.NewStoreRepository(store), gyms, nil)

	deps := Deps{
		Authenticator:       tokens,
		Roles:               roles,
		Users:               users,
		Workflow:            workflow,
		Gyms:                gyms,
		Memberships:         memberships,
		Audit:               auditLogger,
		AuditLogs:           auditLogs,
		Metrics:             m,
		RateLimiter:         middleware.NewRateLimiter(0, 0),
		HealthPinger:        store,
		HealthPolicyChecker: policy,
	}
	if adjust != nil {
		adjust(&deps)
	}
	router := NewRouter(deps)
	return &testAPI{t: t, router: router, store: store, roles: roles, tokens: tokens}
}

func (a *testAPI) token(userID string) string {
	tok, err := a.tokens.Issue(userID, userID+"@example.com", time.Hour)
	require.NoError(a.t, err)
	return tok
}

func (a *testAPI) send(method, path, userID string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+a.token(userID))
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(b)
	}
	return a.send(method, path, userID, r, "application/json")
}

// data decodes the success envelope of w into dest.
func data(t *testing.T, w *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func errKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "body: %s", w.Body.String())
	return body.Error.Kind
}

func (a *testAPI) makeAdmin(userID string) {
	require.Equal(a.t, http.StatusOK, a.do(http.MethodGet, "/v1/me", userID, nil).Code)
	require.NoError(a.t, a.roles.SetRole(context.Background(), userID, roledomain.RoleAdmin))
}

func applicationBody() map[string]any {
	return map[string]any{
		"business_name":       "Iron Temple Fitness",
		"business_address":    "12 High Street, Springfield",
		"business_phone":      "+1 555 0100",
		"business_email":      "hello@irontemple.example",
		"years_in_business":   5,
		"number_of_locations": 2,
		"description":         strings.Repeat("Great gym. ", 6),
		"terms_accepted":      true,
	}
}

// becomeOwner submits and approves an application for userID.
func (a *testAPI) becomeOwner(userID, adminID string) {
	w := a.do(http.MethodPost, "/v1/applications", userID, applicationBody())
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	var app appdomain.Application
	data(a.t, w, &app)
	w = a.do(http.MethodPost, "/v1/admin/applications/"+app.ID+"/approve", adminID, nil)
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
}

func TestPublicAndUnauthenticatedRoutes(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/metrics", "", nil).Code)

	w := api.do(http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthenticated", errKind(t, w))
}

func TestReadyz_BackendDown(t *testing.T) {
	api := newTestAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestProfileRoutes(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/v1/me", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me userservice.Me
	data(t, w, &me)
	assert.Equal(t, "u1", me.Profile.ID)
	assert.Equal(t, "u1@example.com", me.Profile.Email)
	assert.Equal(t, roledomain.RoleUser, me.Role)
	assert.Equal(t, appdomain.StatusNone, me.ApplicationStatus)

	w = api.do(http.MethodPut, "/v1/me", "u1", map[string]string{"name": " Jane ", "phone": "+1 555 0101"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = api.do(http.MethodPut, "/v1/me", "u1", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/v1/me/onboarding", "u1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data(t, api.do(http.MethodGet, "/v1/me", "u1", nil), &me)
	assert.Equal(t, "Jane", me.Profile.Name)
	assert.True(t, me.Profile.OnboardingCompleted)
}

func TestApplicationWorkflowOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	api.makeAdmin("admin-1")

	w := api.do(http.MethodPost, "/v1/applications", "u1", map[string]any{"business_name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_failed", errKind(t, w))

	w = api.do(http.MethodPost, "/v1/applications", "u1", applicationBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var app appdomain.Application
	data(t, w, &app)
	assert.Equal(t, appdomain.StatusPending, app.Status)

	w = api.do(http.MethodPost, "/v1/applications", "u1", applicationBody())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_application", errKind(t, w))

	w = api.do(http.MethodPost, "/v1/applications", "admin-1", applicationBody())
	assert.Equal(t, http.StatusForbidden, w.Code, "admins cannot apply")

	w = api.do(http.MethodGet, "/v1/admin/applications", "u1", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodGet, "/v1/admin/applications?status=pending", "admin-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []appdomain.Application
	data(t, w, &list)
	require.Len(t, list, 1)

	w = api.do(http.MethodGet, "/v1/admin/applications?status=bogus", "admin-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, "/v1/admin/applications/"+app.ID+"/approve", "admin-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data(t, w, &app)
	assert.Equal(t, appdomain.StatusApproved, app.Status)
	require.NotNil(t, app.ReviewedBy)
	assert.Equal(t, "admin-1", *app.ReviewedBy)

	w = api.do(http.MethodPost, "/v1/admin/applications/"+app.ID+"/reject", "admin-1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_transition", errKind(t, w))

	var me userservice.Me
	data(t, api.do(http.MethodGet, "/v1/me", "u1", nil), &me)
	assert.Equal(t, roledomain.RoleOwner, me.Role)
	assert.Equal(t, appdomain.StatusApproved, me.ApplicationStatus)

	w = api.do(http.MethodGet, "/v1/admin/applications/missing", "admin-1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var logs []map[string]any
	require.NoError(t, api.store.Select(context.Background(), backend.TableAuditLogs, backend.Query{
		Filters: []backend.Filter{backend.Eq("action", "approve")},
	}, &logs))
	assert.Len(t, logs, 1, "the approve request is audited by the middleware")
}

func TestApprove_PartialApprovalThenRetry(t *testing.T) {
	api := newTestAPI(t)
	api.makeAdmin("admin-1")

	w := api.do(http.MethodPost, "/v1/applications", "u1", applicationBody())
	require.Equal(t, http.StatusCreated, w.Code)
	var app appdomain.Application
	data(t, w, &app)

	api.store.SetHook(func(op, table string) error {
		if table == backend.TableUserRoles && (op == "insert" || op == "update") {
			return errors.New("roles unavailable")
		}
		return nil
	})
	w = api.do(http.MethodPost, "/v1/admin/applications/"+app.ID+"/approve", "admin-1", nil)
	assert.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())
	assert.Equal(t, "partial_approval", errKind(t, w))
	assert.Contains(t, w.Body.String(), app.ID)
	api.store.SetHook(nil)

	w = api.do(http.MethodPost, "/v1/admin/applications/"+app.ID+"/retry-promotion", "admin-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var me userservice.Me
	data(t, api.do(http.MethodGet, "/v1/me", "u1", nil), &me)
	assert.Equal(t, roledomain.RoleOwner, me.Role)
}

func TestAdminUserRoutes(t *testing.T) {
	api := newTestAPI(t)
	api.makeAdmin("admin-1")
	require.Equal(t, http.StatusOK, api.do(http.MethodGet, "/v1/me", "u1", nil).Code)

	w := api.do(http.MethodGet, "/v1/admin/users?role=user", "admin-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []map[string]any
	data(t, w, &users)
	require.Len(t, users, 1)
	assert.Equal(t, "u1", users[0]["id"])

	w = api.do(http.MethodPut, "/v1/admin/users/u1/role", "admin-1", map[string]string{"role": "owner"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = api.do(http.MethodPut, "/v1/admin/users/u1/role", "admin-1", map[string]string{"role": "root"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = api.do(http.MethodPut, "/v1/admin/users/u1/role", "u1", map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodGet, "/v1/admin/audit-logs?user_id=admin-1&resource=user", "admin-1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var logs []map[string]any
	data(t, w, &logs)
	require.NotEmpty(t, logs)
	assert.Equal(t, "u1", logs[0]["resource_id"])
	assert.Equal(t, http.StatusBadRequest, api.do(http.MethodGet, "/v1/admin/audit-logs?limit=-1", "admin-1", nil).Code)
	assert.Equal(t, http.StatusForbidden, api.do(http.MethodGet, "/v1/admin/audit-logs", "u1", nil).Code)
}

func TestGymAndMembershipFlow(t *testing.T) {
	api := newTestAPI(t)
	api.makeAdmin("admin-1")
	api.becomeOwner("owner-1", "admin-1")

	w := api.do(http.MethodPost, "/v1/owner/gyms", "u2", map[string]string{"name": "Nope"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPost, "/v1/owner/gyms", "owner-1", map[string]string{
		"name": "Iron Temple", "location": "12 High Street, Springfield", "timings": "6am - 10pm",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var gym struct {
		ID     string   `json:"id"`
		Photos []string `json:"photos"`
	}
	data(t, w, &gym)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("photo", "front.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\n0000"))
	require.NoError(t, mw.Close())
	w = api.send(http.MethodPost, "/v1/owner/gyms/"+gym.ID+"/photos", "owner-1", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data(t, w, &gym)
	require.Len(t, gym.Photos, 1)

	w = api.do(http.MethodGet, "/v1/gyms", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var browse []map[string]any
	data(t, w, &browse)
	assert.Empty(t, browse, "gyms without active plans are hidden")

	w = api.do(http.MethodPost, "/v1/owner/gyms/"+gym.ID+"/plans", "owner-1", map[string]any{
		"name": "Monthly", "duration_days": 30, "price": "25.00", "discounted_price": "19.99",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var plan struct {
		ID string `json:"id"`
	}
	data(t, w, &plan)

	w = api.do(http.MethodGet, "/v1/gyms?search=springfield", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data(t, w, &browse)
	require.Len(t, browse, 1)
	assert.Equal(t, "19.99", browse[0]["min_price"])

	w = api.do(http.MethodGet, "/v1/gyms/"+gym.ID, "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodPost, "/v1/memberships", "u2", map[string]string{"plan_id": plan.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub struct {
		Payment struct {
			ID     string `json:"id"`
			Amount string `json:"amount"`
		} `json:"payment"`
	}
	data(t, w, &sub)
	assert.Equal(t, "19.99", sub.Payment.Amount)

	w = api.do(http.MethodPost, "/v1/gyms/"+gym.ID+"/check-in", "u2", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodPost, "/v1/payments/"+sub.Payment.ID+"/confirm", "u3", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(http.MethodPost, "/v1/payments/"+sub.Payment.ID+"/confirm", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodPost, "/v1/gyms/"+gym.ID+"/check-in", "u2", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(http.MethodGet, "/v1/memberships", "u2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ms []map[string]any
	data(t, w, &ms)
	require.Len(t, ms, 1)
	assert.Equal(t, true, ms[0]["active"])

	w = api.do(http.MethodPost, "/v1/owner/plans/"+plan.ID+"/toggle", "owner-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = api.do(http.MethodPost, "/v1/memberships", "u2", map[string]string{"plan_id": plan.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodDelete, "/v1/owner/gyms/"+gym.ID, "owner-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestClientIP_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	limited := func(proxies []string) *testAPI {
		return newTestAPIWith(t, func(d *Deps) {
			d.RateLimiter = middleware.NewRateLimiter(0.001, 1)
			d.TrustedProxies = proxies
		})
	}
	get := func(a *testAPI, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		return w.Code
	}

	a := limited(nil)
	assert.Equal(t, http.StatusOK, get(a, "203.0.113.1"))
	assert.Equal(t, http.StatusTooManyRequests, get(a, "203.0.113.2"), "a spoofed header must not reset the limit")

	a = limited([]string{"192.0.2.1"})
	assert.Equal(t, http.StatusOK, get(a, "203.0.113.1"))
	assert.Equal(t, http.StatusOK, get(a, "203.0.113.2"), "a trusted proxy forwards distinct clients")
}
