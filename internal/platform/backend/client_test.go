package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wordnest/wordnest/internal/sync"
)

func TestPullChanges(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sync/pull", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))

		var req sync.PullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "child-1", req.ChildID)
		assert.Nil(t, req.LastPulledAt)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(sync.PullResponse{
			Timestamp: "2026-08-20T10:00:00Z",
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, StaticToken("sekrit"), 0, nil)
	require.NoError(t, err)

	resp, err := c.PullChanges(context.Background(), &sync.PullRequest{ChildID: "child-1"})
	require.NoError(t, err)
	assert.Equal(t, "2026-08-20T10:00:00Z", resp.Timestamp)
}

func TestStatusQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/sync/status", r.URL.Path)
		assert.Equal(t, "child-1", r.URL.Query().Get("child_id"))
		_ = json.NewEncoder(w).Encode(sync.StatusResponse{LastDataChangedAt: "2026-08-20T09:00:00Z"})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil, 0, nil)
	require.NoError(t, err)

	resp, err := c.Status(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, "2026-08-20T09:00:00Z", resp.LastDataChangedAt)
}

func TestUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, StaticToken("stale"), 0, nil)
	require.NoError(t, err)

	_, err = c.PushChanges(context.Background(), &sync.PushRequest{ChildID: "child-1"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestServerErrorIncludesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "kaput", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil, 0, nil)
	require.NoError(t, err)

	_, err = c.PullCatalog(context.Background(), &sync.CatalogPullRequest{ParentID: "p1"})
	require.ErrorIs(t, err, ErrBackend)
	assert.Contains(t, err.Error(), "500")
}
