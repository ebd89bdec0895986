package domain

// Source is one web search result shown to the user. IDs are 1-based,
// contiguous, and assigned once in final display order; an ID is never
// reused for a different URL within one response.
type Source struct {
	ID      int    `json:"id"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Bullet is one explanation statement. CitedIDs holds the source ids
// referenced as [n] inside Text; the markers stay in the display text.
type Bullet struct {
	Text     string `json:"text"`
	CitedIDs []int  `json:"cited_ids"`
}

// Explanation is the result of one explanation request.
type Explanation struct {
	Bullets   []Bullet `json:"bullets"`
	Sources   []Source `json:"sources"`
	FromCache bool     `json:"cached"`

	// Side channel: which provider answered and whether an attached image
	// had to be dropped because no vision-capable provider was reachable.
	Provider      string `json:"provider,omitempty"`
	VisionDropped bool   `json:"vision_dropped,omitempty"`
}

// ProviderResult is one provider's entry in a comparison. Err is set
// instead of Bullets/Sources when the provider failed.
type ProviderResult struct {
	Bullets []Bullet `json:"bullets,omitempty"`
	Sources []Source `json:"sources,omitempty"`
	Err     string   `json:"error,omitempty"`
}

// Comparison is a side-by-side multi-provider result set. Never cached.
type Comparison struct {
	Providers          map[string]ProviderResult `json:"providers"`
	AvailableProviders []string                  `json:"available_providers"`
}
