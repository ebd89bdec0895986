package domain

import "errors"

var (
	// ErrEmptyPost signals a request without post text.
	ErrEmptyPost = errors.New("post text is empty")
	// ErrSynthesisUnavailable signals that every configured language-model provider failed.
	ErrSynthesisUnavailable = errors.New("synthesis unavailable")
	// ErrProviderUnavailable signals a single language-model provider failure.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrModelNotFound signals that the upstream rejected a model identifier.
	ErrModelNotFound = errors.New("model not found")
	// ErrNoProviders signals that no language-model provider is configured.
	ErrNoProviders = errors.New("no providers configured")
	// ErrImageUnavailable signals a failed image download or an unsupported format.
	ErrImageUnavailable = errors.New("image unavailable")
	// ErrSearchUnavailable signals a search backend failure. Absorbed by the
	// aggregator; it never crosses the pipeline boundary.
	ErrSearchUnavailable = errors.New("search unavailable")
)
