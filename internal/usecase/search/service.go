// Package search aggregates web search backends into one bounded,
// deduplicated, ranked source list.
package search

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	"github.com/charlesblakely0701-star/post-explainer/internal/logger"
)

// snippetLen bounds the snippet carried into the source list.
const snippetLen = 200

// Options tune the aggregator.
type Options struct {
	MaxResults        int           // final source list cap
	ResultsPerQuery   int           // per-term backend fan-out
	MinPrimaryResults int           // below this the secondary backend is consulted
	Timeout           time.Duration // per-term backend timeout
}

// Service issues queries against a primary backend with an optional
// secondary fallback and merges the results into a numbered source list.
type Service struct {
	primary   Backend
	secondary Backend // may be nil
	opts      Options
}

// New creates a search aggregator. secondary may be nil.
func New(primary, secondary Backend, opts Options) *Service {
	return &Service{primary: primary, secondary: secondary, opts: opts}
}

// Backends returns the configured backend names, primary first.
func (s *Service) Backends() []string {
	names := []string{s.primary.Name()}
	if s.secondary != nil {
		names = append(names, s.secondary.Name())
	}
	return names
}

// Search runs the query and returns the final ordered source list.
// Both backends failing yields an empty list, never an error: the
// pipeline proceeds degraded rather than failing the request.
func (s *Service) Search(ctx context.Context, q domain.SearchQuery) []domain.Source {
	log := logger.FromContext(ctx)

	primaryResults, primaryFailed := s.searchBackend(ctx, s.primary, q)

	results := primaryResults
	if s.secondary != nil && (primaryFailed || len(primaryResults) < s.opts.MinPrimaryResults) {
		log.Info("Consulting secondary search backend",
			zap.String("backend", s.secondary.Name()),
			zap.Int("primary_results", len(primaryResults)),
			zap.Bool("primary_failed", primaryFailed),
		)
		secondaryResults, _ := s.searchBackend(ctx, s.secondary, q)
		results = append(results, secondaryResults...)
	}

	return s.assemble(results)
}

// searchBackend issues every query term against one backend. failed is
// true only when every term errored.
func (s *Service) searchBackend(ctx context.Context, b Backend, q domain.SearchQuery) (results []BackendResult, failed bool) {
	log := logger.FromContext(ctx)

	errCount := 0
	for _, term := range q.Terms() {
		termCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		hits, err := b.Search(termCtx, term, s.opts.ResultsPerQuery)
		cancel()

		if err != nil {
			errCount++
			log.Warn("Search backend request failed",
				zap.String("backend", b.Name()),
				zap.String("term", term),
				zap.Error(err),
			)
			continue
		}
		results = append(results, hits...)
	}

	return results, len(q) > 0 && errCount == len(q)
}

// assemble deduplicates by normalized URL (primary order first), truncates
// to the cap, and assigns 1-based ids in final display order. This is the
// only place sequential numbering happens, so citation markers produced by
// synthesis line up with the list the user sees.
func (s *Service) assemble(results []BackendResult) []domain.Source {
	sources := make([]domain.Source, 0, s.opts.MaxResults)
	seen := make(map[string]struct{}, len(results))

	for _, r := range results {
		if r.URL == "" {
			continue
		}
		key := normalizeURL(r.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		sources = append(sources, domain.Source{
			ID:      len(sources) + 1,
			Title:   r.Title,
			URL:     r.URL,
			Snippet: truncateSnippet(r.Snippet),
		})
		if len(sources) == s.opts.MaxResults {
			break
		}
	}

	return sources
}

// normalizeURL folds case, scheme, and trailing-slash differences so the
// same page never appears twice.
func normalizeURL(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	u = strings.TrimPrefix(u, "https://")
	u = strings.TrimPrefix(u, "http://")
	u = strings.TrimPrefix(u, "www.")
	return strings.TrimSuffix(u, "/")
}

func truncateSnippet(s string) string {
	runes := []rune(s)
	if len(runes) <= snippetLen {
		return s
	}
	return string(runes[:snippetLen])
}
