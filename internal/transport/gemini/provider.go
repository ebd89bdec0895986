// Package gemini is a synthesis provider using the Gemini API.
package gemini

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/synthesis"
)

// Provider is a synthesis provider using the Gemini API. Models are
// tried in order; a model rejected by the API falls through to the
// next one.
type Provider struct {
	client      *genai.Client
	models      []string
	maxTokens   int32
	temperature float32
	vision      bool
	logger      *zap.Logger
}

// Config holds the provider settings.
type Config struct {
	APIKey      string
	Models      []string
	MaxTokens   int
	Temperature float32
	Vision      bool
	Logger      *zap.Logger
}

// New creates a Gemini provider.
func New(ctx context.Context, cfg *Config) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Provider{
		client:      client,
		models:      cfg.Models,
		maxTokens:   int32(cfg.MaxTokens),
		temperature: cfg.Temperature,
		vision:      cfg.Vision,
		logger:      cfg.Logger,
	}, nil
}

// Name implements synthesis.Provider.
func (p *Provider) Name() string { return "gemini" }

// SupportsVision implements synthesis.Provider.
func (p *Provider) SupportsVision() bool { return p.vision }

// Generate implements synthesis.Provider.
func (p *Provider) Generate(ctx context.Context, req synthesis.Request) (string, error) {
	contents, cfg := p.buildCall(req)

	var lastErr error
	for i, model := range p.models {
		if i > 0 {
			metrics.ProviderFallbacksTotal.WithLabelValues(p.models[i-1], model).Inc()
		}

		start := time.Now()
		resp, err := p.client.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), model, "error").Inc()
			lastErr = err
			if isModelNotFound(err) {
				p.logger.Warn("Model rejected, trying next",
					zap.String("model", model),
					zap.Error(err),
				)
				continue
			}
			return "", fmt.Errorf("gemini request: %v: %w", err, domain.ErrProviderUnavailable)
		}

		metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), model, "success").Inc()
		metrics.SynthesisRequestDuration.WithLabelValues(p.Name(), model).Observe(time.Since(start).Seconds())
		return resp.Text(), nil
	}

	return "", fmt.Errorf("no usable model: %w: %w", domain.ErrModelNotFound, lastErr)
}

// Stream implements synthesis.Provider. The first chunk is pulled
// before returning so any failure ahead of output comes back as a
// setup error: a rejected model falls through to the next one, a hard
// upstream failure returns so the caller can try another provider.
// Once output has started, failures arrive as a terminal fragment.
func (p *Provider) Stream(ctx context.Context, req synthesis.Request) (<-chan synthesis.Fragment, error) {
	contents, cfg := p.buildCall(req)
	return p.stream(ctx, func(model string) iter.Seq2[*genai.GenerateContentResponse, error] {
		return p.client.Models.GenerateContentStream(ctx, model, contents, cfg)
	})
}

// stream runs the model fallback loop over per-model fragment sequences.
func (p *Provider) stream(ctx context.Context, open func(model string) iter.Seq2[*genai.GenerateContentResponse, error]) (<-chan synthesis.Fragment, error) {
	var lastErr error
	for i, model := range p.models {
		if i > 0 {
			metrics.ProviderFallbacksTotal.WithLabelValues(p.models[i-1], model).Inc()
		}

		start := time.Now()
		next, stop := iter.Pull2(open(model))

		// Pull until the first output so failures ahead of it surface
		// synchronously instead of on the channel.
		first := ""
		exhausted := false
		var firstErr error
		for {
			resp, err, ok := next()
			if !ok {
				exhausted = true
				break
			}
			if err != nil {
				firstErr = err
				break
			}
			if text := resp.Text(); text != "" {
				first = text
				break
			}
		}
		if firstErr != nil {
			stop()
			metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), model, "error").Inc()
			lastErr = firstErr
			if isModelNotFound(firstErr) {
				p.logger.Warn("Model rejected, trying next",
					zap.String("model", model),
					zap.Error(firstErr),
				)
				continue
			}
			return nil, fmt.Errorf("gemini stream: %v: %w", firstErr, domain.ErrProviderUnavailable)
		}

		out := make(chan synthesis.Fragment)
		go func() {
			defer close(out)
			defer stop()

			if first != "" {
				select {
				case out <- synthesis.Fragment{Text: first}:
				case <-ctx.Done():
					return
				}
			}
			for !exhausted {
				resp, err, ok := next()
				if !ok {
					break
				}
				if err != nil {
					metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), model, "error").Inc()
					select {
					case out <- synthesis.Fragment{Err: fmt.Errorf("gemini stream: %v: %w", err, domain.ErrProviderUnavailable)}:
					case <-ctx.Done():
					}
					return
				}
				text := resp.Text()
				if text == "" {
					continue
				}
				select {
				case out <- synthesis.Fragment{Text: text}:
				case <-ctx.Done():
					return
				}
			}
			metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), model, "success").Inc()
			metrics.SynthesisRequestDuration.WithLabelValues(p.Name(), model).Observe(time.Since(start).Seconds())
		}()
		return out, nil
	}

	return nil, fmt.Errorf("no usable model: %w: %w", domain.ErrModelNotFound, lastErr)
}

func (p *Provider) buildCall(req synthesis.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Bytes, req.Image.MediaType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: p.maxTokens,
		Temperature:     genai.Ptr(p.temperature),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return contents, cfg
}

// isModelNotFound reports whether the API rejected the model name itself.
func isModelNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404")
}
