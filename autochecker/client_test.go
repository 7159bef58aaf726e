package autochecker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchLogs(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/logs", r.URL.Path)
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "2025-01-01T00:00:00Z", r.URL.Query().Get("since"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "checker", user)
		assert.Equal(t, "secret", pass)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"logs":[{"id":1,"learner_id":2,"item_id":3,"kind":"attempt","created_at":"2025-01-02T00:00:00Z"}],"has_more":true}`))
	}))
	defer server.Close()

	c := NewClient(Args{Endpoint: server.URL, User: "checker", Password: "secret", RequestsPerSecond: 100})

	resp, err := c.FetchLogs(context.Background(), "2025-01-01T00:00:00Z", 50)
	require.NoError(t, err)

	assert.True(t, resp.HasMore)
	require.Len(t, resp.Logs, 1)
	assert.Equal(t, Log{ID: 1, LearnerID: 2, ItemID: 3, Kind: "attempt", CreatedAt: "2025-01-02T00:00:00Z"}, resp.Logs[0])
}

func TestFetchLogs_NoSinceOmitsParam(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.URL.Query()["since"]
		assert.False(t, ok)
		_, _, hasAuth := r.BasicAuth()
		assert.False(t, hasAuth)
		w.Write([]byte(`{"logs":[],"has_more":false}`))
	}))
	defer server.Close()

	resp, err := NewClient(Args{Endpoint: server.URL}).FetchLogs(context.Background(), "", 10)
	require.NoError(t, err)
	assert.Empty(t, resp.Logs)
	assert.False(t, resp.HasMore)
}

func TestFetchLogs_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("nope"))
	}))
	defer server.Close()

	_, err := NewClient(Args{Endpoint: server.URL}).FetchLogs(context.Background(), "", 10)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestFetchLogs_BadBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	_, err := NewClient(Args{Endpoint: server.URL}).FetchLogs(context.Background(), "", 10)
	assert.ErrorContains(t, err, "error decoding logs response")
}
