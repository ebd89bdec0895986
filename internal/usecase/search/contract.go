package search

import "context"

// BackendResult is one raw hit from a search backend, before merging
// and id assignment.
type BackendResult struct {
	Title   string
	URL     string
	Snippet string
}

// Backend is a web search backend capability.
type Backend interface {
	Name() string
	Search(ctx context.Context, term string, maxResults int) ([]BackendResult, error)
}
