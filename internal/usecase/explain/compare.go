package explain

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/parse"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/query"
)

// Compare fans the post out to every configured provider concurrently and
// assembles a per-provider result set. Extraction and search run once so
// every provider sees identical context. One provider's failure lands in
// its own entry and never aborts siblings. Comparisons are never cached.
func (s *Service) Compare(ctx context.Context, post domain.Post) (domain.Comparison, error) {
	if strings.TrimSpace(post.Text) == "" {
		return domain.Comparison{}, domain.ErrEmptyPost
	}

	start := time.Now()
	defer func() {
		metrics.ExplainRequestsTotal.WithLabelValues("compare", "success").Inc()
		metrics.ExplainDuration.WithLabelValues("compare").Observe(time.Since(start).Seconds())
	}()

	image := s.fetchImage(ctx, post)
	q := query.Extract(post.Text)
	sources := s.searcher.Search(ctx, q)
	prompt := domain.BuildExplanationPrompt(post.Text, sources)

	names := s.synth.Names()
	results := make(map[string]domain.ProviderResult, len(names))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			// Independent timeout per provider: one slow provider must
			// not delay or cancel the others.
			callCtx, cancel := context.WithTimeout(ctx, s.opts.CompareTimeout)
			defer cancel()

			text, err := s.synth.CompleteWith(callCtx, name, prompt, image)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[name] = domain.ProviderResult{Err: err.Error()}
				return
			}
			results[name] = domain.ProviderResult{
				Bullets: parse.ClampCitations(parse.Parse(text), len(sources)),
				Sources: sources,
			}
		}(name)
	}
	wg.Wait()

	return domain.Comparison{
		Providers:          results,
		AvailableProviders: names,
	}, nil
}
