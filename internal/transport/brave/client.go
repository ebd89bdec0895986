// Package brave is a search backend using the Brave Search API.
package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
	searchuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/search"
)

const defaultBaseURL = "https://api.search.brave.com/res/v1"

// Client is a search backend using the Brave web search API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// Config holds the Brave backend settings.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// New creates a Brave search backend.
func New(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// Name implements search.Backend.
func (c *Client) Name() string { return "brave" }

type searchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search implements search.Backend.
func (c *Client) Search(ctx context.Context, term string, maxResults int) ([]searchuc.BackendResult, error) {
	q := url.Values{}
	q.Set("q", term)
	q.Set("count", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/web/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("brave request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.SearchRequestsTotal.WithLabelValues(c.Name(), "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("brave API error %d: %s", resp.StatusCode, msg)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("decode brave response: %w", err)
	}

	metrics.SearchRequestsTotal.WithLabelValues(c.Name(), "success").Inc()
	metrics.SearchRequestDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())

	results := make([]searchuc.BackendResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, searchuc.BackendResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Description,
		})
	}
	return results, nil
}
