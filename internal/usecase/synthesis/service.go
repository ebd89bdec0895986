// Package synthesis orchestrates language-model providers with ordered
// fallback and optional incremental delivery.
package synthesis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	"github.com/charlesblakely0701-star/post-explainer/internal/logger"
	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
)

// Options tune the orchestrator.
type Options struct {
	Timeout       time.Duration // per provider call, single-shot
	StreamTimeout time.Duration // per provider call, streaming
}

// Service tries providers in priority order until one succeeds.
type Service struct {
	providers []Provider
	opts      Options
}

// New creates a synthesis orchestrator. Provider order is priority order;
// the first entry is the default provider.
func New(providers []Provider, opts Options) *Service {
	return &Service{providers: providers, opts: opts}
}

// Names returns the configured provider names in priority order.
func (s *Service) Names() []string {
	names := make([]string, len(s.providers))
	for i, p := range s.providers {
		names[i] = p.Name()
	}
	return names
}

// Complete runs single-shot synthesis with provider fallback. When an
// image is attached and no provider supports vision, the call degrades to
// text-only and Meta.VisionDropped is set.
func (s *Service) Complete(ctx context.Context, prompt string, image *domain.ImageData) (Result, error) {
	log := logger.FromContext(ctx)

	candidates, dropped := s.eligible(image != nil)
	if len(candidates) == 0 {
		return Result{}, domain.ErrNoProviders
	}

	req := Request{System: domain.SystemContext, Prompt: prompt, Image: image}
	if dropped {
		req.Image = nil
	}

	var lastErr error
	for i, p := range candidates {
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		text, err := p.Generate(callCtx, req)
		cancel()

		if err == nil {
			return Result{Text: text, Meta: Meta{Provider: p.Name(), VisionDropped: dropped}}, nil
		}
		lastErr = err
		log.Warn("Synthesis provider failed",
			zap.String("provider", p.Name()),
			zap.Error(err),
		)
		if i+1 < len(candidates) {
			metrics.ProviderFallbacksTotal.WithLabelValues(p.Name(), candidates[i+1].Name()).Inc()
		}

		if ctx.Err() != nil {
			// The request itself is gone; further providers would only
			// inherit the dead context.
			return Result{}, ctx.Err()
		}
	}

	return Result{}, fmt.Errorf("%w: %v", domain.ErrSynthesisUnavailable, lastErr)
}

// CompleteWith runs single-shot synthesis against one named provider, with
// no cross-provider fallback. Used by the comparison path. An attached
// image is dropped when this provider lacks vision support.
func (s *Service) CompleteWith(ctx context.Context, name, prompt string, image *domain.ImageData) (string, error) {
	p := s.provider(name)
	if p == nil {
		return "", fmt.Errorf("%w: %q", domain.ErrProviderUnavailable, name)
	}

	req := Request{System: domain.SystemContext, Prompt: prompt, Image: image}
	if image != nil && !p.SupportsVision() {
		logger.FromContext(ctx).Debug("Dropping image for non-vision provider",
			zap.String("provider", name))
		req.Image = nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	text, err := p.Generate(callCtx, req)
	if err != nil {
		return "", fmt.Errorf("provider %s: %w", name, err)
	}
	return text, nil
}

// Stream starts streaming synthesis with provider fallback on call setup.
// Once fragments begin, a failure is terminal for the stream (delivered as
// a Fragment with Err set). The returned channel closes after the last
// fragment; cancelling ctx releases the upstream connection.
func (s *Service) Stream(ctx context.Context, prompt string, image *domain.ImageData) (<-chan Fragment, Meta, error) {
	log := logger.FromContext(ctx)

	candidates, dropped := s.eligible(image != nil)
	if len(candidates) == 0 {
		return nil, Meta{}, domain.ErrNoProviders
	}

	req := Request{System: domain.SystemContext, Prompt: prompt, Image: image}
	if dropped {
		req.Image = nil
	}

	var lastErr error
	for i, p := range candidates {
		streamCtx, cancel := context.WithTimeout(ctx, s.opts.StreamTimeout)
		src, err := p.Stream(streamCtx, req)
		if err != nil {
			cancel()
			lastErr = err
			log.Warn("Synthesis provider stream failed to start",
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
			if i+1 < len(candidates) {
				metrics.ProviderFallbacksTotal.WithLabelValues(p.Name(), candidates[i+1].Name()).Inc()
			}
			continue
		}

		out := make(chan Fragment)
		go func() {
			defer cancel()
			defer close(out)
			for f := range src {
				select {
				case out <- f:
				case <-ctx.Done():
					// Consumer stopped reading; cancel releases the provider.
					return
				}
			}
		}()
		return out, Meta{Provider: p.Name(), VisionDropped: dropped}, nil
	}

	return nil, Meta{}, fmt.Errorf("%w: %v", domain.ErrSynthesisUnavailable, lastErr)
}

// eligible selects providers for this request. Vision requests keep only
// vision-capable providers; when none qualify, all providers are kept and
// the image is dropped (degraded mode).
func (s *Service) eligible(vision bool) (providers []Provider, visionDropped bool) {
	if !vision {
		return s.providers, false
	}
	for _, p := range s.providers {
		if p.SupportsVision() {
			providers = append(providers, p)
		}
	}
	if len(providers) > 0 {
		return providers, false
	}
	return s.providers, true
}

func (s *Service) provider(name string) Provider {
	for _, p := range s.providers {
		if p.Name() == name {
			return p
		}
	}
	return nil
}
