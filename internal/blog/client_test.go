package blog

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
		assert.Equal(t, "/api/blogs/post-42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"post-42","title":"Go for services","excerpt":"Why Go","cover_image":"https://cdn.example/c.png"}`))
	}))
	defer srv.Close()

	ref, err := NewClient(srv.URL).Lookup(context.Background(), "post-42")
	require.NoError(t, err)
	assert.Equal(t, "post-42", ref.BlogID)
	assert.Equal(t, "Go for services", ref.Title)
	assert.Equal(t, "Why Go", ref.Excerpt)
	assert.Equal(t, "https://cdn.example/c.png", ref.CoverImage)
}

func TestLookupNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Lookup(context.Background(), "gone")
	assert.Error(t, err)
}

func TestLookupServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL).Lookup(context.Background(), "post-42")
	assert.Error(t, err)
}
