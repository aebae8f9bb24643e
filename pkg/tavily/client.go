// Package tavily provides a client for the Tavily web search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Client defines the Tavily search operations used by the scout pass.
type Client interface {
	// Search runs one query and returns its results.
	Search(ctx context.Context, query string) ([]SearchResult, error)
	// SearchAll fans out over queries with bounded concurrency and returns
	// URL-deduplicated results. Individual query failures are logged and
	// skipped, not fatal.
	SearchAll(ctx context.Context, queries []string) ([]SearchResult, error)
}

// SearchResult is one verified web search hit.
type SearchResult struct {
	Query   string `json:"query"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Option configures the Tavily client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithMaxResults sets the per-query result limit.
func WithMaxResults(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithMaxConcurrent bounds the SearchAll fan-out.
func WithMaxConcurrent(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxConcurrent = n
		}
	}
}

// WithRateLimit throttles outgoing requests to r per second.
func WithRateLimit(r float64) Option {
	return func(c *httpClient) {
		if r > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(r), 1)
		}
	}
}

type httpClient struct {
	apiKey        string
	baseURL       string
	maxResults    int
	maxConcurrent int
	limiter       *rate.Limiter
	http          *http.Client
}

// NewClient creates a new Tavily search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://api.tavily.com",
		maxResults:    5,
		maxConcurrent: 4,
		limiter:       rate.NewLimiter(rate.Limit(2), 1),
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (c *httpClient) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "tavily: rate limit wait")
		}
	}

	body, err := json.Marshal(searchRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: c.maxResults,
	})
	if err != nil {
		return nil, eris.Wrap(err, "tavily: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "tavily: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "tavily: search %q", query)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, eris.New(fmt.Sprintf("tavily: search %q: status %d: %s", query, resp.StatusCode, data))
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, eris.Wrapf(err, "tavily: decode response for %q", query)
	}

	results := make([]SearchResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.URL == "" {
			continue
		}
		results = append(results, SearchResult{
			Query:   query,
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
		})
	}
	return results, nil
}

func (c *httpClient) SearchAll(ctx context.Context, queries []string) ([]SearchResult, error) {
	log := zap.L().With(zap.String("phase", "search"))

	var mu sync.Mutex
	seenURLs := make(map[string]bool)
	perQuery := make([][]SearchResult, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)

	for i, query := range queries {
		g.Go(func() error {
			results, err := c.Search(gctx, query)
			if err != nil {
				// A failed query loses its results, never the whole run.
				log.Warn("search failed",
					zap.String("query", query), zap.Error(err))
				return nil
			}
			mu.Lock()
			perQuery[i] = results
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "tavily: search fan-out")
	}

	// Merge in query order so dedup keeps the first occurrence
	// deterministically.
	var all []SearchResult
	for _, results := range perQuery {
		for _, r := range results {
			if seenURLs[r.URL] {
				continue
			}
			seenURLs[r.URL] = true
			all = append(all, r)
		}
	}

	log.Info("searches complete",
		zap.Int("queries", len(queries)),
		zap.Int("unique_results", len(all)))
	return all, nil
}
