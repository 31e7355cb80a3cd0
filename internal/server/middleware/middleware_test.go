package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"gymhub/backend/internal/backend"
	userdomain "gymhub/backend/internal/user/domain"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeAuthn map[string]*backend.Identity

func (f fakeAuthn) CurrentUser(_ context.Context, token string) (*backend.Identity, error) {
	if token == "broken" {
		return nil, errors.New("auth service down")
	}
	return f[token], nil
}

type countingEnsurer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingEnsurer) EnsureProfile(_ context.Context, id backend.Identity) (*userdomain.Profile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return &userdomain.Profile{ID: id.ID, Email: id.Email}, nil
}

type auditCall struct {
	userID, action, resource, resourceID, metadata string
}

type recordingAudit struct {
	mu    sync.Mutex
	calls []auditCall
}

func (r *recordingAudit) LogEvent(_ context.Context, userID, action, resource, resourceID, metadata string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, auditCall{userID, action, resource, resourceID, metadata})
}

func TestExtractBearer(t *testing.T) {
	tests := map[string]string{
		"":              "",
		"Bearer":        "",
		"Basic abc":     "",
		"Bearer abc":    "abc",
		"bearer  abc  ": "abc",
		"BEARER xyz":    "xyz",
	}
	for header, want := range tests {
		if got := extractBearer(header); got != want {
			t.Errorf("extractBearer(%q) = %q, want %q", header, got, want)
		}
	}
}

func newAuthRouter(ensurer ProfileEnsurer) *gin.Engine {
	authn := fakeAuthn{"good": {ID: "user-1", Email: "user@example.com"}}
	r := gin.New()
	r.Use(Auth(authn, ensurer, nil))
	r.GET("/whoami", func(c *gin.Context) {
		id := Identity(c)
		c.String(http.StatusOK, id.ID+" "+id.Email)
	})
	return r
}

func TestAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"no header", "", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, ""},
		{"auth error", "Bearer broken", http.StatusInternalServerError, ""},
		{"valid", "Bearer good", http.StatusOK, "user-1 user@example.com"},
	}
	r := newAuthRouter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.body != "" && w.Body.String() != tt.body {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.body)
			}
		})
	}
}

func TestAuth_EnsuresProfileOnce(t *testing.T) {
	ensurer := &countingEnsurer{}
	r := newAuthRouter(ensurer)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
	if ensurer.calls != 1 {
		t.Errorf("EnsureProfile calls = %d, want 1", ensurer.calls)
	}
}

func TestAuth_EnsureProfileFailureIsRetried(t *testing.T) {
	ensurer := &countingEnsurer{err: errors.New("down")}
	r := newAuthRouter(ensurer)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer good")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 when profile creation fails", w.Code)
		}
	}
	if ensurer.calls != 2 {
		t.Errorf("EnsureProfile calls = %d, want 2", ensurer.calls)
	}
}

func TestAudit(t *testing.T) {
	rec := &recordingAudit{}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if c.GetHeader("X-User") != "" {
			c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), c.GetHeader("X-User"), ""))
		}
		c.Next()
	})
	r.Use(Audit(rec))
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/v1/gyms", ok)
	r.POST("/v1/admin/applications/:id/approve", ok)
	r.PUT("/v1/owner/plans/:id", ok)

	send := func(method, path, user string) {
		req := httptest.NewRequest(method, path, nil)
		if user != "" {
			req.Header.Set("X-User", user)
		}
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	send(http.MethodGet, "/v1/gyms", "u1")
	send(http.MethodPost, "/v1/admin/applications/a1/approve", "")
	send(http.MethodPost, "/v1/admin/applications/a1/approve", "admin-1")
	send(http.MethodPut, "/v1/owner/plans/p1", "owner-1")

	if len(rec.calls) != 2 {
		t.Fatalf("audit calls = %+v, want 2", rec.calls)
	}
	want := auditCall{"admin-1", "approve", "application", "a1", `{"status":200}`}
	if rec.calls[0] != want {
		t.Errorf("call[0] = %+v, want %+v", rec.calls[0], want)
	}
	if c := rec.calls[1]; c.action != "update" || c.resource != "plan" || c.resourceID != "p1" {
		t.Errorf("call[1] = %+v", c)
	}
}

func TestClientIPContext(t *testing.T) {
	r := gin.New()
	r.Use(ClientIPContext())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, ClientIP(c.Request.Context())) })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Body.String() != "203.0.113.7" {
		t.Errorf("client ip = %q, want 203.0.113.7", w.Body.String())
	}
	if got := ClientIP(context.Background()); got != "unknown" {
		t.Errorf("ClientIP(empty) = %q, want unknown", got)
	}
}

func TestRateLimiter(t *testing.T) {
	l := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Error("third request within the same instant should be limited")
	}
	if !l.Allow("b") {
		t.Error("other clients have their own bucket")
	}
	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("token should refill after 1s")
	}

	now = now.Add(idleLimiterTTL + time.Second)
	l.Allow("c")
	if _, ok := l.clients["b"]; ok {
		t.Error("idle limiter should be swept")
	}

	if !NewRateLimiter(0, 0).Allow("x") {
		t.Error("disabled limiter should allow")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	l := NewRateLimiter(0.001, 1)
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [200 429]", codes)
	}
}

func TestAuth_EnsuredProfileCacheIsBounded(t *testing.T) {
	ensurer := &countingEnsurer{}
	authn := fakeAuthn{
		"tok-a": {ID: "user-a", Email: "a@example.com"},
		"tok-b": {ID: "user-b", Email: "b@example.com"},
	}
	r := gin.New()
	r.Use(auth(authn, ensurer, nil, 1))
	r.GET("/whoami", func(c *gin.Context) { c.String(http.StatusOK, UserID(c)) })

	for _, tok := range []string{"tok-a", "tok-a", "tok-b", "tok-a"} {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
	}
	// user-a is remembered once, then evicted by user-b and ensured again.
	if ensurer.calls != 3 {
		t.Errorf("EnsureProfile calls = %d, want 3", ensurer.calls)
	}
}
