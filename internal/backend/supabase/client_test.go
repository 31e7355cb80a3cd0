package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/platform/apperr"
)

type gymRecord struct {
	ID      string `json:"id,omitempty"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		URL:     srv.URL,
		APIKey:  "service-key",
		Retry:   RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Multiplier: 2},
		Breaker: BreakerConfig{FailureThreshold: 100, OpenTimeout: time.Minute, HalfOpenRequests: 1},
	})
	require.NoError(t, err)
	return c
}

func TestNew_RequiresURLAndKey(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{URL: "http://x"})
	assert.Error(t, err)
}

func TestStore_SelectBuildsPostgRESTQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/gyms", r.URL.Path)
		assert.Equal(t, "service-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "*", q.Get("select"))
		assert.Equal(t, "eq.o1", q.Get("owner_id"))
		assert.Equal(t, "ilike.*fit*", q.Get("name"))
		assert.Equal(t, `in.("g1","g2")`, q.Get("id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "5", q.Get("limit"))
		_, _ = io.WriteString(w, `[{"id":"g1","owner_id":"o1","name":"PowerFit"}]`)
	})
	var got []gymRecord
	err := NewStore(c).Select(context.Background(), backend.TableGyms, backend.Query{
		Filters: []backend.Filter{backend.Eq("owner_id", "o1"), backend.ILike("name", "%fit%"), backend.In("id", []string{"g1", "g2"})},
		Order:   []backend.Order{{Column: "created_at", Descending: true}},
		Limit:   5,
	}, &got)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PowerFit", got[0].Name)
}

func TestStore_InsertReturnsRepresentation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		var sent gymRecord
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		assert.NotEmpty(t, sent.ID, "insert should carry a client-generated id")
		assert.Equal(t, gymRecord{ID: sent.ID, OwnerID: "o1", Name: "PowerFit"}, sent)
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":"`+sent.ID+`","owner_id":"o1","name":"PowerFit"}]`)
	})
	var got gymRecord
	require.NoError(t, NewStore(c).Insert(context.Background(), backend.TableGyms, gymRecord{OwnerID: "o1", Name: "PowerFit"}, &got))
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "PowerFit", got.Name)
}

func TestStore_InsertKeepsCallerID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"id":"g9","owner_id":"o1","name":"PowerFit"}`, string(body))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `[{"id":"g9","owner_id":"o1","name":"PowerFit"}]`)
	})
	require.NoError(t, NewStore(c).Insert(context.Background(), backend.TableGyms, gymRecord{ID: "g9", OwnerID: "o1", Name: "PowerFit"}, nil))
}

func TestStore_InsertNotResentAfterGatewayTimeout(t *testing.T) {
	var posts, gets atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			posts.Add(1)
			w.WriteHeader(http.StatusGatewayTimeout)
		case http.MethodGet:
			gets.Add(1)
			_, _ = io.WriteString(w, `[]`)
		}
	})
	err := NewStore(c).Insert(context.Background(), backend.TablePayments, backend.Row{"user_id": "u1", "amount": "49.00"}, nil)
	var be *apperr.BackendUnavailableError
	require.True(t, errors.As(err, &be), "err = %v", err)
	assert.Equal(t, int32(1), posts.Load(), "a POST with an unknown outcome must not be resent")
	assert.Equal(t, int32(1), gets.Load())
}

func TestStore_InsertRecoversAppliedRow(t *testing.T) {
	var posts atomic.Int32
	var sentID atomic.Value
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			posts.Add(1)
			var sent gymRecord
			_ = json.NewDecoder(r.Body).Decode(&sent)
			sentID.Store(sent.ID)
			w.WriteHeader(http.StatusGatewayTimeout)
		case http.MethodGet:
			id, _ := sentID.Load().(string)
			assert.Equal(t, "eq."+id, r.URL.Query().Get("id"))
			_, _ = io.WriteString(w, `[{"id":"`+id+`","owner_id":"o1","name":"PowerFit"}]`)
		}
	})
	var got gymRecord
	require.NoError(t, NewStore(c).Insert(context.Background(), backend.TableGyms, gymRecord{OwnerID: "o1", Name: "PowerFit"}, &got))
	assert.Equal(t, sentID.Load(), got.ID)
	assert.Equal(t, int32(1), posts.Load())
}

func TestStorage_UploadRetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"Key":"gym-photos/g1/a.png"}`)
	})
	_, err := NewStorage(c).Upload(context.Background(), "gym-photos", "g1/a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNotSent(t *testing.T) {
	dial := &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}}
	read := &url.Error{Op: "Post", URL: "http://x", Err: &net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}}
	assert.True(t, notSent(dial))
	assert.False(t, notSent(read))
	assert.False(t, notSent(io.ErrUnexpectedEOF))
}

func TestStore_InsertDuplicateMapsToConflict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint \"user_roles_user_id_key\""}`)
	})
	err := NewStore(c).Insert(context.Background(), backend.TableUserRoles, backend.Row{"user_id": "u1", "role": "user"}, nil)
	assert.ErrorIs(t, err, backend.ErrConflict)
}

func TestStore_UpdateCountsReturnedRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "eq.a1", r.URL.Query().Get("id"))
		assert.Equal(t, "eq.pending", r.URL.Query().Get("status"))
		_, _ = io.WriteString(w, `[]`)
	})
	n, err := NewStore(c).Update(context.Background(), backend.TableApplications, backend.Row{"status": "approved"},
		backend.Eq("id", "a1"), backend.Eq("status", "pending"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[{"id":"p1"}]`)
	})
	n, err := NewStore(c).Delete(context.Background(), backend.TablePlans, backend.Eq("id", "p1"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_ExhaustedRetriesAreUnavailable(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})
	var out []gymRecord
	err := NewStore(c).Select(context.Background(), backend.TableGyms, backend.Query{}, &out)
	var be *apperr.BackendUnavailableError
	require.True(t, errors.As(err, &be), "err = %v", err)
	assert.Equal(t, "select gyms", be.Op)
	assert.Equal(t, int32(3), hits.Load())
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"code":"PGRST100","message":"bad filter"}`)
	})
	var out []gymRecord
	err := NewStore(c).Select(context.Background(), backend.TableGyms, backend.Query{}, &out)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr), "err = %v", err)
	assert.Equal(t, "bad filter", httpErr.Message)
	assert.Equal(t, "PGRST100", httpErr.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	c, err := New(Config{
		URL:     srv.URL,
		APIKey:  "k",
		Retry:   RetryConfig{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1},
		Breaker: BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute, HalfOpenRequests: 1},
	})
	require.NoError(t, err)
	s := NewStore(c)
	var out []gymRecord
	for i := 0; i < 3; i++ {
		err = s.Select(context.Background(), backend.TableGyms, backend.Query{}, &out)
		var be *apperr.BackendUnavailableError
		require.True(t, errors.As(err, &be), "call %d err = %v", i, err)
	}
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, "open", c.BreakerState())
}

func TestAuth_CurrentUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"msg":"invalid JWT"}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":"u1","email":"owner@example.com","role":"authenticated"}`)
	})
	a := NewAuth(c)
	id, err := a.CurrentUser(context.Background(), "good")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.ID)
	assert.Equal(t, "owner@example.com", id.Email)

	id, err = a.CurrentUser(context.Background(), "expired")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = a.CurrentUser(context.Background(), "  ")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestStorage_UploadAndDelete(t *testing.T) {
	var uploaded, deleted string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			uploaded = r.URL.Path
			assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
			assert.Equal(t, "true", r.Header.Get("x-upsert"))
			_, _ = io.WriteString(w, `{"Key":"gym-photos/g1/a.png"}`)
		case http.MethodDelete:
			deleted = r.URL.Path
			_, _ = io.WriteString(w, `{}`)
		}
	})
	st := NewStorage(c)
	u, err := st.Upload(context.Background(), "gym-photos", "g1/a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/storage/v1/object/gym-photos/g1/a.png", uploaded)
	assert.Equal(t, c.baseURL+"/storage/v1/object/public/gym-photos/g1/a.png", u)

	require.NoError(t, st.Delete(context.Background(), "gym-photos", "g1/a.png"))
	assert.Equal(t, "/storage/v1/object/gym-photos/g1/a.png", deleted)

	_, err = st.Upload(context.Background(), "gym-photos", "../escape", nil, "")
	assert.Error(t, err)
}
