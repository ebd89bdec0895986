// Package explain composes query extraction, web search, language-model
// synthesis, and response parsing into the explanation pipeline, gated by
// an in-process single-flight cache.
package explain

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	"github.com/charlesblakely0701-star/post-explainer/internal/logger"
	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/parse"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/query"
)

// Options tune the pipeline.
type Options struct {
	CompareTimeout time.Duration // per provider in comparison mode
}

// Service is the explanation pipeline.
type Service struct {
	searcher Searcher
	synth    Synthesizer
	images   ImageFetcher // may be nil
	cache    *Cache
	opts     Options
}

// New creates the explanation pipeline. images may be nil when no image
// collaborator is configured.
func New(searcher Searcher, synth Synthesizer, images ImageFetcher, cache *Cache, opts Options) *Service {
	if opts.CompareTimeout <= 0 {
		opts.CompareTimeout = 60 * time.Second
	}
	return &Service{searcher: searcher, synth: synth, images: images, cache: cache, opts: opts}
}

// Explain produces one cited explanation for the post, served from cache
// when an identical post was explained within the TTL.
func (s *Service) Explain(ctx context.Context, post domain.Post) (domain.Explanation, error) {
	if strings.TrimSpace(post.Text) == "" {
		return domain.Explanation{}, domain.ErrEmptyPost
	}

	start := time.Now()
	result, err := s.cache.GetOrCompute(ctx, post.Fingerprint(), func(ctx context.Context) (domain.Explanation, error) {
		return s.compute(ctx, post)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ExplainRequestsTotal.WithLabelValues("single", status).Inc()
	metrics.ExplainDuration.WithLabelValues("single").Observe(time.Since(start).Seconds())

	return result, err
}

// compute runs the uncached pipeline: image fetch (best effort), query
// extraction, search, synthesis, parsing.
func (s *Service) compute(ctx context.Context, post domain.Post) (domain.Explanation, error) {
	log := logger.FromContext(ctx)

	image := s.fetchImage(ctx, post)

	q := query.Extract(post.Text)
	log.Debug("Extracted search queries", zap.Int("terms", len(q)))

	sources := s.searcher.Search(ctx, q)
	log.Debug("Search complete", zap.Int("sources", len(sources)))

	prompt := domain.BuildExplanationPrompt(post.Text, sources)
	res, err := s.synth.Complete(ctx, prompt, image)
	if err != nil {
		return domain.Explanation{}, err
	}

	bullets := parse.ClampCitations(parse.Parse(res.Text), len(sources))

	return domain.Explanation{
		Bullets:       bullets,
		Sources:       sources,
		Provider:      res.Meta.Provider,
		VisionDropped: res.Meta.VisionDropped,
	}, nil
}

// fetchImage downloads the post's image if any. Failures degrade to a
// text-only request instead of failing the pipeline.
func (s *Service) fetchImage(ctx context.Context, post domain.Post) *domain.ImageData {
	if post.ImageURL == "" || s.images == nil {
		return nil
	}

	image, err := s.images.Fetch(ctx, post.ImageURL)
	if err != nil {
		logger.FromContext(ctx).Warn("Image fetch failed, continuing text-only",
			zap.String("url", post.ImageURL),
			zap.Error(err),
		)
		return nil
	}
	return image
}
