// Package openai is a synthesis provider using the OpenAI chat API.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/synthesis"
)

// Provider is a synthesis provider using the OpenAI-compatible chat
// completions API. Models are tried in order; a model rejected by the
// API falls through to the next one.
type Provider struct {
	client      *openai.Client
	models      []string
	maxTokens   int
	temperature float32
	vision      bool
	logger      *zap.Logger
}

// Config holds the provider settings.
type Config struct {
	APIKey      string
	BaseURL     string // empty for the public API
	Models      []string
	MaxTokens   int
	Temperature float32
	Vision      bool
	Logger      *zap.Logger
}

// New creates an OpenAI chat provider.
func New(cfg *Config) *Provider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Provider{
		client:      openai.NewClientWithConfig(clientCfg),
		models:      cfg.Models,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		vision:      cfg.Vision,
		logger:      cfg.Logger,
	}
}

// Name implements synthesis.Provider.
func (p *Provider) Name() string { return "openai" }

// SupportsVision implements synthesis.Provider.
func (p *Provider) SupportsVision() bool { return p.vision }

// Generate implements synthesis.Provider. Each configured model is tried
// in order until one answers; only a model rejection falls through.
func (p *Provider) Generate(ctx context.Context, req synthesis.Request) (string, error) {
	var lastErr error
	for i, model := range p.models {
		if i > 0 {
			metrics.ProviderFallbacksTotal.WithLabelValues(p.models[i-1], model).Inc()
		}

		start := time.Now()
		resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(model, req, false))
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
			return "", parseAPIError(err)
		}

		if len(resp.Choices) == 0 {
			metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), model, "error").Inc()
			return "", fmt.Errorf("empty completion response: %w", domain.ErrProviderUnavailable)
		}

		metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), model, "success").Inc()
		metrics.SynthesisRequestDuration.WithLabelValues(p.Name(), model).Observe(time.Since(start).Seconds())
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("no usable model: %w: %w", domain.ErrModelNotFound, lastErr)
}

// Stream implements synthesis.Provider.
func (p *Provider) Stream(ctx context.Context, req synthesis.Request) (<-chan synthesis.Fragment, error) {
	var (
		stream  *openai.ChatCompletionStream
		model   string
		lastErr error
	)
	for i, m := range p.models {
		if i > 0 {
			metrics.ProviderFallbacksTotal.WithLabelValues(p.models[i-1], m).Inc()
		}

		s, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(m, req, true))
		if err != nil {
			metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), m, "error").Inc()
			lastErr = err
			if isModelNotFound(err) {
				continue
			}
			return nil, parseAPIError(err)
		}
		stream, model = s, m
		break
	}
	if stream == nil {
		return nil, fmt.Errorf("no usable model: %w: %w", domain.ErrModelNotFound, lastErr)
	}

	out := make(chan synthesis.Fragment)
	go func() {
		defer close(out)
		defer stream.Close()

		start := time.Now()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), model, "success").Inc()
				metrics.SynthesisRequestDuration.WithLabelValues(p.Name(), model).Observe(time.Since(start).Seconds())
				return
			}
			if err != nil {
				metrics.SynthesisRequestsTotal.WithLabelValues(p.Name(), model, "error").Inc()
				select {
				case out <- synthesis.Fragment{Err: parseAPIError(err)}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- synthesis.Fragment{Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *Provider) buildRequest(model string, req synthesis.Request, stream bool) openai.ChatCompletionRequest {
	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.Image != nil {
		user.MultiContent = []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL: dataURL(req.Image),
				},
			},
		}
	} else {
		user.Content = req.Prompt
	}

	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			user,
		},
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Stream:      stream,
	}
}

func dataURL(img *domain.ImageData) string {
	return "data:" + img.MediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Bytes)
}

// isModelNotFound reports whether the API rejected the model name itself.
func isModelNotFound(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 404 {
			return true
		}
		if code, ok := apiErr.Code.(string); ok && code == "model_not_found" {
			return true
		}
		return strings.Contains(strings.ToLower(apiErr.Message), "model")
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 404
	}
	return false
}

// parseAPIError extracts a human-readable error from the API response.
// All errors wrap domain.ErrProviderUnavailable for correct 502 mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrProviderUnavailable

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("openai API error %d: %s: %w", reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	return fmt.Errorf("openai request failed: %v: %w", err, wrap)
}
