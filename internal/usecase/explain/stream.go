package explain

import (
	"context"
	"strings"
	"time"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	"github.com/charlesblakely0701-star/post-explainer/internal/metrics"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/parse"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/query"
)

// EventType discriminates streaming events.
type EventType string

const (
	// EventSources carries the final ordered source list, exactly once,
	// before any chunk.
	EventSources EventType = "sources"
	// EventChunk carries one fragment of growing explanation text.
	EventChunk EventType = "chunk"
	// EventDone terminates a successful stream.
	EventDone EventType = "done"
	// EventError terminates a failed stream.
	EventError EventType = "error"
)

// Event is one element of a streaming explanation. After EventDone or
// EventError, the channel closes and nothing else is emitted.
type Event struct {
	Type    EventType
	Sources []domain.Source // EventSources
	Chunk   string          // EventChunk
	Err     string          // EventError
}

// ExplainStream produces the explanation as an ordered event sequence:
// one sources event, zero or more chunks, one terminal done or error.
// A cache hit replays the stored explanation; a clean completion stores
// it. Cancelled streams store nothing.
func (s *Service) ExplainStream(ctx context.Context, post domain.Post) (<-chan Event, error) {
	if strings.TrimSpace(post.Text) == "" {
		return nil, domain.ErrEmptyPost
	}

	out := make(chan Event)
	go func() {
		start := time.Now()
		status := s.runStream(ctx, post, out)
		close(out)
		metrics.ExplainRequestsTotal.WithLabelValues("stream", status).Inc()
		metrics.ExplainDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
	}()
	return out, nil
}

func (s *Service) runStream(ctx context.Context, post domain.Post, out chan<- Event) (status string) {
	emit := func(e Event) bool {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	fingerprint := post.Fingerprint()
	if cached, ok := s.cache.Lookup(fingerprint); ok {
		return replayCached(cached, emit)
	}

	image := s.fetchImage(ctx, post)
	q := query.Extract(post.Text)
	sources := s.searcher.Search(ctx, q)

	if !emit(Event{Type: EventSources, Sources: sources}) {
		return "cancelled"
	}

	prompt := domain.BuildExplanationPrompt(post.Text, sources)
	frags, meta, err := s.synth.Stream(ctx, prompt, image)
	if err != nil {
		emit(Event{Type: EventError, Err: err.Error()})
		return "error"
	}

	var buf strings.Builder
	for f := range frags {
		if f.Err != nil {
			emit(Event{Type: EventError, Err: f.Err.Error()})
			return "error"
		}
		buf.WriteString(f.Text)
		if !emit(Event{Type: EventChunk, Chunk: f.Text}) {
			return "cancelled"
		}
	}
	if ctx.Err() != nil {
		return "cancelled"
	}

	if !emit(Event{Type: EventDone}) {
		return "cancelled"
	}

	bullets := parse.ClampCitations(parse.Parse(buf.String()), len(sources))
	s.cache.Put(fingerprint, domain.Explanation{
		Bullets:       bullets,
		Sources:       sources,
		Provider:      meta.Provider,
		VisionDropped: meta.VisionDropped,
	})
	return "success"
}

// replayCached streams a cache hit: the stored source list, the stored
// bullets re-joined as a single chunk, then done.
func replayCached(cached domain.Explanation, emit func(Event) bool) string {
	if !emit(Event{Type: EventSources, Sources: cached.Sources}) {
		return "cancelled"
	}

	lines := make([]string, len(cached.Bullets))
	for i, b := range cached.Bullets {
		lines[i] = "• " + b.Text
	}
	if len(lines) > 0 {
		if !emit(Event{Type: EventChunk, Chunk: strings.Join(lines, "\n")}) {
			return "cancelled"
		}
	}

	if !emit(Event{Type: EventDone}) {
		return "cancelled"
	}
	return "success"
}
