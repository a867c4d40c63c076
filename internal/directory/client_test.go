package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/u-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"u-1","username":"alice","avatar_url":"https://cdn.example/a.png"}`))
	}))
	defer srv.Close()

	u, err := NewClient(srv.URL).Lookup(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "https://cdn.example/a.png", u.AvatarURL)
}

func TestLookupUnknownUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Lookup(context.Background(), "nobody")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/users/search", r.URL.Path)
		assert.Equal(t, "ali", r.URL.Query().Get("q"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"u-1","username":"alice"},{"id":"u-2","username":"alina"}]`))
	}))
	defer srv.Close()

	users, err := NewClient(srv.URL).Search(context.Background(), "ali", 10)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
}
