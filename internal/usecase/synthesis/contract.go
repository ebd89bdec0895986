package synthesis

import (
	"context"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
)

// Request is one synthesis call: system context, rendered prompt, and an
// optional image for vision-capable providers.
type Request struct {
	System string
	Prompt string
	Image  *domain.ImageData
}

// Fragment is one element of a streaming synthesis response. A Fragment
// with Err set is terminal; a closed channel without one is a clean end.
type Fragment struct {
	Text string
	Err  error
}

// Provider is a language-model backend capability. Model-name fallback
// (trying several model identifiers in order) is internal to the
// provider and invisible here.
type Provider interface {
	Name() string
	SupportsVision() bool
	Generate(ctx context.Context, req Request) (string, error)
	// Stream returns a finite fragment sequence. The provider must stop
	// producing and release its upstream connection when ctx is cancelled.
	Stream(ctx context.Context, req Request) (<-chan Fragment, error)
}

// Meta is the side channel of a synthesis call: which provider answered
// and whether the image was dropped for lack of vision support.
type Meta struct {
	Provider      string
	VisionDropped bool
}

// Result is a completed single-shot synthesis.
type Result struct {
	Text string
	Meta Meta
}
