package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymhub/backend/internal/audit/domain"
	"gymhub/backend/internal/audit/repository"
	"gymhub/backend/internal/backend/memory"
)

func seededHandler(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := repository.NewStoreRepository(memory.New())
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, e := range []domain.AuditLog{
		{ID: "a1", UserID: "admin-1", Action: "approve", Resource: "application", ResourceID: "app-1"},
		{ID: "a2", UserID: "owner-1", Action: "create", Resource: "gym", ResourceID: "g1"},
		{ID: "a3", UserID: "admin-1", Action: "reject", Resource: "application", ResourceID: "app-2"},
	} {
		e.IP = "10.0.0.1"
		e.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(context.Background(), &e))
	}
	r := gin.New()
	r.GET("/audit-logs", NewHandler(repo).List)
	return r
}

func list(t *testing.T, r *gin.Engine, query string) (int, []domain.AuditLog) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit-logs"+query, nil))
	var body struct {
		Data []domain.AuditLog `json:"data"`
	}
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body.Data
}

func TestList_NewestFirstWithFilters(t *testing.T) {
	r := seededHandler(t)

	code, logs := list(t, r, "")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, logs, 3)
	assert.Equal(t, "a3", logs[0].ID)

	_, logs = list(t, r, "?user_id=admin-1&resource=application")
	require.Len(t, logs, 2)
	assert.Equal(t, "app-2", logs[0].ResourceID)

	_, logs = list(t, r, "?action=create")
	require.Len(t, logs, 1)
	assert.Equal(t, "owner-1", logs[0].UserID)
}

func TestList_Pagination(t *testing.T) {
	r := seededHandler(t)

	_, logs := list(t, r, "?limit=1&offset=1")
	require.Len(t, logs, 1)
	assert.Equal(t, "a2", logs[0].ID)
}

func TestList_InvalidParams(t *testing.T) {
	r := seededHandler(t)
	for _, q := range []string{"?limit=x", "?limit=-3", "?offset=-1"} {
		code, _ := list(t, r, q)
		assert.Equal(t, http.StatusBadRequest, code, q)
	}
}
