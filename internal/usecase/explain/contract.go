package explain

import (
	"context"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/synthesis"
)

// Searcher aggregates web search backends into a numbered source list.
type Searcher interface {
	Search(ctx context.Context, q domain.SearchQuery) []domain.Source
}

// Synthesizer orchestrates language-model providers.
type Synthesizer interface {
	Complete(ctx context.Context, prompt string, image *domain.ImageData) (synthesis.Result, error)
	CompleteWith(ctx context.Context, name, prompt string, image *domain.ImageData) (string, error)
	Stream(ctx context.Context, prompt string, image *domain.ImageData) (<-chan synthesis.Fragment, synthesis.Meta, error)
	Names() []string
}

// ImageFetcher downloads an image reference into bytes a vision model accepts.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*domain.ImageData, error)
}
