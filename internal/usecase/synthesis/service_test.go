package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
)

// --- Mocks ---

type mockProvider struct {
	name      string
	vision    bool
	text      string
	err       error
	streamErr error
	fragments []string
	calls     int
	lastReq   Request
}

func (m *mockProvider) Name() string         { return m.name }
func (m *mockProvider) SupportsVision() bool { return m.vision }

func (m *mockProvider) Generate(_ context.Context, req Request) (string, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *mockProvider) Stream(ctx context.Context, req Request) (<-chan Fragment, error) {
	m.calls++
	m.lastReq = req
	if m.streamErr != nil {
		return nil, m.streamErr
	}
	out := make(chan Fragment)
	go func() {
		defer close(out)
		for _, f := range m.fragments {
			select {
			case out <- Fragment{Text: f}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func testOpts() Options {
	return Options{Timeout: time.Second, StreamTimeout: time.Second}
}

func testImage() *domain.ImageData {
	return &domain.ImageData{Bytes: []byte{0xFF, 0xD8}, MediaType: "image/jpeg"}
}

// --- Tests ---

func TestComplete_DefaultProvider(t *testing.T) {
	primary := &mockProvider{name: "openai", text: "• answer [1]"}
	alt := &mockProvider{name: "gemini", text: "other"}

	svc := New([]Provider{primary, alt}, testOpts())
	res, err := svc.Complete(context.Background(), "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Text != "• answer [1]" || res.Meta.Provider != "openai" {
		t.Errorf("unexpected result: %+v", res)
	}
	if alt.calls != 0 {
		t.Error("alternate provider must not be called when the default succeeds")
	}
}

func TestComplete_FallsBackInOrder(t *testing.T) {
	first := &mockProvider{name: "openai", err: errors.New("503 overloaded")}
	second := &mockProvider{name: "gemini", text: "from fallback"}

	svc := New([]Provider{first, second}, testOpts())
	res, err := svc.Complete(context.Background(), "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Meta.Provider != "gemini" || res.Text != "from fallback" {
		t.Errorf("unexpected result: %+v", res)
	}
	if first.calls != 1 {
		t.Errorf("expected one failed primary call, got %d", first.calls)
	}
}

func TestComplete_AllProvidersFail(t *testing.T) {
	svc := New([]Provider{
		&mockProvider{name: "openai", err: errors.New("down")},
		&mockProvider{name: "gemini", err: errors.New("also down")},
	}, testOpts())

	_, err := svc.Complete(context.Background(), "prompt", nil)
	if !errors.Is(err, domain.ErrSynthesisUnavailable) {
		t.Fatalf("expected ErrSynthesisUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "also down") {
		t.Errorf("error should carry the last provider failure: %v", err)
	}
}

func TestComplete_VisionSkipsNonVisionProviders(t *testing.T) {
	textOnly := &mockProvider{name: "textonly", text: "nope"}
	visual := &mockProvider{name: "visual", vision: true, text: "saw the image"}

	svc := New([]Provider{textOnly, visual}, testOpts())
	res, err := svc.Complete(context.Background(), "prompt", testImage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Meta.Provider != "visual" {
		t.Errorf("expected the vision-capable provider, got %q", res.Meta.Provider)
	}
	if textOnly.calls != 0 {
		t.Error("non-vision provider must be skipped for vision requests")
	}
	if visual.lastReq.Image == nil {
		t.Error("vision provider must receive the image")
	}
	if res.Meta.VisionDropped {
		t.Error("vision was served, must not be flagged dropped")
	}
}

func TestComplete_NoVisionProvidersDegradesTextOnly(t *testing.T) {
	p := &mockProvider{name: "textonly", text: "text-only answer"}

	svc := New([]Provider{p}, testOpts())
	res, err := svc.Complete(context.Background(), "prompt", testImage())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !res.Meta.VisionDropped {
		t.Error("expected VisionDropped side channel")
	}
	if p.lastReq.Image != nil {
		t.Error("degraded request must not carry the image")
	}
}

func TestCompleteWith_NoCrossProviderFallback(t *testing.T) {
	broken := &mockProvider{name: "openai", err: errors.New("down")}
	healthy := &mockProvider{name: "gemini", text: "fine"}

	svc := New([]Provider{broken, healthy}, testOpts())
	_, err := svc.CompleteWith(context.Background(), "openai", "prompt", nil)
	if err == nil {
		t.Fatal("expected the named provider's failure to surface")
	}
	if healthy.calls != 0 {
		t.Error("CompleteWith must not fall back to siblings")
	}
}

func TestCompleteWith_UnknownProvider(t *testing.T) {
	svc := New([]Provider{&mockProvider{name: "openai"}}, testOpts())

	_, err := svc.CompleteWith(context.Background(), "nope", "prompt", nil)
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestStream_DeliversFragmentsAndCloses(t *testing.T) {
	p := &mockProvider{name: "openai", fragments: []string{"• part ", "one [1]", "\n• part two [2]"}}

	svc := New([]Provider{p}, testOpts())
	frags, meta, err := svc.Stream(context.Background(), "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Provider != "openai" {
		t.Errorf("unexpected meta: %+v", meta)
	}

	var sb strings.Builder
	for f := range frags {
		if f.Err != nil {
			t.Fatalf("unexpected terminal error: %v", f.Err)
		}
		sb.WriteString(f.Text)
	}
	want := "• part one [1]\n• part two [2]"
	if sb.String() != want {
		t.Errorf("got %q, want %q", sb.String(), want)
	}
}

func TestStream_FallsBackOnSetupFailure(t *testing.T) {
	broken := &mockProvider{name: "openai", streamErr: errors.New("connect refused")}
	healthy := &mockProvider{name: "gemini", fragments: []string{"ok fragment"}}

	svc := New([]Provider{broken, healthy}, testOpts())
	frags, meta, err := svc.Stream(context.Background(), "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if meta.Provider != "gemini" {
		t.Errorf("expected fallback provider, got %q", meta.Provider)
	}
	for range frags {
	}
}

func TestStream_AllProvidersFail(t *testing.T) {
	svc := New([]Provider{
		&mockProvider{name: "openai", streamErr: errors.New("down")},
	}, testOpts())

	_, _, err := svc.Stream(context.Background(), "prompt", nil)
	if !errors.Is(err, domain.ErrSynthesisUnavailable) {
		t.Fatalf("expected ErrSynthesisUnavailable, got %v", err)
	}
}

func TestStream_ConsumerCancellationStopsProvider(t *testing.T) {
	p := &mockProvider{name: "openai", fragments: []string{"a", "b", "c", "d", "e"}}

	ctx, cancel := context.WithCancel(context.Background())
	svc := New([]Provider{p}, testOpts())
	frags, _, err := svc.Stream(ctx, "prompt", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	<-frags // read one fragment, then walk away
	cancel()

	// The forwarding goroutine must close the channel instead of leaking.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-frags:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("fragment channel not closed after consumer cancellation")
		}
	}
}

func TestNames_PriorityOrder(t *testing.T) {
	svc := New([]Provider{
		&mockProvider{name: "openai"},
		&mockProvider{name: "gemini"},
	}, testOpts())

	names := svc.Names()
	if len(names) != 2 || names[0] != "openai" || names[1] != "gemini" {
		t.Errorf("unexpected names: %v", names)
	}
}
