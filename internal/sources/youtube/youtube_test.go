package youtube

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"learntrail.dev/internal/sources"
)

const searchBody = `{
	"items": [
		{
			"id": {"videoId": "abc123"},
			"snippet": {
				"title": "Go Tutorial",
				"description": "Learn Go",
				"publishedAt": "2025-01-15T10:00:00Z"
			}
		},
		{
			"id": {"videoId": ""},
			"snippet": {"title": "not a video"}
		}
	]
}`

const videosBody = `{
	"items": [
		{
			"id": "abc123",
			"contentDetails": {"duration": "PT1H30M"},
			"statistics": {"viewCount": "123456"}
		}
	]
}`

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAdapter("test-key", WithBaseURL(srv.URL))
}

func TestAvailable(t *testing.T) {
	assert.False(t, NewAdapter("").Available(context.Background()))
	assert.True(t, NewAdapter("key").Available(context.Background()))
}

func TestSearch(t *testing.T) {
	var searchQuery string
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/search":
			searchQuery = r.URL.Query().Get("q")
			io.WriteString(w, searchBody)
		case "/videos":
			assert.Equal(t, "abc123", r.URL.Query().Get("id"))
			io.WriteString(w, videosBody)
		default:
			http.NotFound(w, r)
		}
	})

	got, err := a.Search(context.Background(), "golang", sources.SearchOptions{MaxResults: 10})
	require.NoError(t, err)
	require.Len(t, got, 1, "items without a video id are dropped")

	assert.Equal(t, "golang tutorial", searchQuery)
	c := got[0]
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", c.URL)
	assert.Equal(t, "Go Tutorial", c.Title)
	assert.Equal(t, "youtube", c.Platform)
	assert.Equal(t, 90.0, c.DurationMinutes)
	assert.Equal(t, int64(123456), c.ViewCount)
	require.NotNil(t, c.PublishedAt)
	assert.Equal(t, 2025, c.PublishedAt.Year())
}

func TestSearchDetailsFailureIsNotFatal(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, searchBody)
		default:
			http.Error(w, "quota exceeded", http.StatusForbidden)
		}
	})

	got, err := a.Search(context.Background(), "golang", sources.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].DurationMinutes)
	assert.Zero(t, got[0].ViewCount)
}

func TestSearchAPIFailure(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusBadRequest)
	})

	_, err := a.Search(context.Background(), "golang", sources.SearchOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "youtube search failed")
}

func TestSearchNoResults(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"items": []}`)
	})

	got, err := a.Search(context.Background(), "golang", sources.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchWithoutKey(t *testing.T) {
	_, err := NewAdapter("").Search(context.Background(), "golang", sources.SearchOptions{})
	assert.Error(t, err)
}

func TestParseISODurationMinutes(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"PT1H30M", 90},
		{"PT15M", 15},
		{"PT45S", 0.75},
		{"PT1H2M30S", 62.5},
		{"PT0S", 0},
		{"P1D", 0},
		{"", 0},
		{"PT1X", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseISODurationMinutes(tt.in), "input=%q", tt.in)
	}
}
