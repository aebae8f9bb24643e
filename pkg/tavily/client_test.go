package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestSearch_SendsRequestAndParsesResults(t *testing.T) {
	var got searchRequest
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		fmt.Fprint(w, `{"results": [
			{"title": "Alfa launch", "url": "https://news.example/alfa", "content": "Alfa launches."},
			{"title": "no url", "url": "", "content": "dropped"}
		]}`)
	})

	c := NewClient("test-key", WithBaseURL(srv.URL), WithMaxResults(3), WithRateLimit(1000))
	results, err := c.Search(context.Background(), "bank digital assets launch")
	require.NoError(t, err)

	assert.Equal(t, "test-key", got.APIKey)
	assert.Equal(t, "bank digital assets launch", got.Query)
	assert.Equal(t, 3, got.MaxResults)

	require.Len(t, results, 1, "blank-URL results are skipped")
	assert.Equal(t, "bank digital assets launch", results[0].Query)
	assert.Equal(t, "https://news.example/alfa", results[0].URL)
	assert.Equal(t, "Alfa launches.", results[0].Content)
}

func TestSearch_Non200IsError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := c.Search(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}

func TestSearch_BadJSONIsError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "not json")
	})

	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := c.Search(context.Background(), "q")
	assert.Error(t, err)
}

func TestSearchAll_DedupesInQueryOrder(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		switch req.Query {
		case "q1":
			fmt.Fprint(w, `{"results": [
				{"title": "shared", "url": "https://news.example/shared", "content": "first"},
				{"title": "only q1", "url": "https://news.example/q1", "content": "a"}
			]}`)
		case "q2":
			fmt.Fprint(w, `{"results": [
				{"title": "shared", "url": "https://news.example/shared", "content": "second"},
				{"title": "only q2", "url": "https://news.example/q2", "content": "b"}
			]}`)
		default:
			t.Errorf("unexpected query %q", req.Query)
		}
	})

	c := NewClient("k", WithBaseURL(srv.URL), WithMaxConcurrent(2), WithRateLimit(1000))
	results, err := c.SearchAll(context.Background(), []string{"q1", "q2"})
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, "https://news.example/shared", results[0].URL)
	assert.Equal(t, "q1", results[0].Query, "dedup keeps the first query's hit")
	assert.Equal(t, "https://news.example/q1", results[1].URL)
	assert.Equal(t, "https://news.example/q2", results[2].URL)
}

func TestSearchAll_FailedQueryIsSkipped(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Query == "bad" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"results": [{"title": "ok", "url": "https://news.example/ok", "content": "c"}]}`)
	})

	c := NewClient("k", WithBaseURL(srv.URL), WithRateLimit(1000))
	results, err := c.SearchAll(context.Background(), []string{"bad", "good"})
	require.NoError(t, err, "a failing query never fails the run")
	require.Len(t, results, 1)
	assert.Equal(t, "https://news.example/ok", results[0].URL)
}

func TestSearchAll_EmptyQueries(t *testing.T) {
	c := NewClient("k", WithRateLimit(1000))
	results, err := c.SearchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
