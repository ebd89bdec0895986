// Package tavily is a search backend using the Tavily API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
	searchuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/search"
)

const defaultBaseURL = "https://api.tavily.com"

// contentLen bounds the raw content carried out of the API response.
const contentLen = 500

// Client is a search backend using the Tavily search API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// Config holds the Tavily backend settings.
type Config struct {
	APIKey  string
	BaseURL string // defaults to the public API
	Timeout time.Duration
}

// New creates a Tavily search backend.
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
func (c *Client) Name() string { return "tavily" }

type searchRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements search.Backend.
func (c *Client) Search(ctx context.Context, term string, maxResults int) ([]searchuc.BackendResult, error) {
	body, err := json.Marshal(searchRequest{
		APIKey:      c.apiKey,
		Query:       term,
		MaxResults:  maxResults,
		SearchDepth: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.SearchRequestsTotal.WithLabelValues(c.Name(), "error").Inc()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tavily API error %d: %s", resp.StatusCode, msg)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(c.Name(), "error").Inc()
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	metrics.SearchRequestsTotal.WithLabelValues(c.Name(), "success").Inc()
	metrics.SearchRequestDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())

	results := make([]searchuc.BackendResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		results = append(results, searchuc.BackendResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncate(r.Content),
		})
	}
	return results, nil
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= contentLen {
		return s
	}
	return string(runes[:contentLen])
}
