package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	explainuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/explain"
	healthuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/health"
	"github.com/charlesblakely0701-star/post-explainer/internal/usecase/synthesis"
)

// --- Mocks ---

type mockSearcher struct {
	sources []domain.Source
}

func (m *mockSearcher) Search(_ context.Context, _ domain.SearchQuery) []domain.Source {
	return m.sources
}

type mockSynth struct {
	text    string
	err     error
	names   []string
	perName map[string]string
	pererrs map[string]error
}

func (m *mockSynth) Complete(_ context.Context, _ string, _ *domain.ImageData) (synthesis.Result, error) {
	if m.err != nil {
		return synthesis.Result{}, m.err
	}
	return synthesis.Result{Text: m.text, Meta: synthesis.Meta{Provider: "openai"}}, nil
}

func (m *mockSynth) CompleteWith(_ context.Context, name, _ string, _ *domain.ImageData) (string, error) {
	if err := m.pererrs[name]; err != nil {
		return "", err
	}
	return m.perName[name], nil
}

func (m *mockSynth) Stream(ctx context.Context, _ string, _ *domain.ImageData) (<-chan synthesis.Fragment, synthesis.Meta, error) {
	if m.err != nil {
		return nil, synthesis.Meta{}, m.err
	}
	out := make(chan synthesis.Fragment, 1)
	out <- synthesis.Fragment{Text: m.text}
	close(out)
	return out, synthesis.Meta{Provider: "openai"}, nil
}

func (m *mockSynth) Names() []string { return m.names }

type mockBackends struct{}

func (mockBackends) Backends() []string { return []string{"tavily", "brave"} }

type providerNames []string

func (p providerNames) Names() []string { return p }

func newTestServer(searcher *mockSearcher, synth *mockSynth) *httptest.Server {
	explainSvc := explainuc.New(
		searcher, synth, nil,
		explainuc.NewCache(time.Hour),
		explainuc.Options{CompareTimeout: time.Second},
	)
	healthSvc := healthuc.New(providerNames(synth.names), mockBackends{})
	srv := NewServer(explainSvc, healthSvc, zap.NewNop())

	r := chi.NewRouter()
	srv.Register(r)
	return httptest.NewServer(r)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// --- Tests ---

func TestExplainEndpoint(t *testing.T) {
	searcher := &mockSearcher{sources: []domain.Source{{ID: 1, Title: "A", URL: "https://a.example"}}}
	synth := &mockSynth{text: "• An explanation of the post [1]", names: []string{"openai"}}

	srv := newTestServer(searcher, synth)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/explain", ExplainRequest{Text: "explain this"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got domain.Explanation
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Bullets) != 1 || len(got.Sources) != 1 {
		t.Errorf("unexpected body: %+v", got)
	}
	if got.FromCache {
		t.Error("first request must report cached=false")
	}
}

func TestExplainEndpoint_EmptyText(t *testing.T) {
	srv := newTestServer(&mockSearcher{}, &mockSynth{names: []string{"openai"}})
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/explain", ExplainRequest{Text: "   "})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Code != CodeValidationFailed {
		t.Errorf("unexpected code %q", body.Code)
	}
}

func TestExplainEndpoint_InvalidJSON(t *testing.T) {
	srv := newTestServer(&mockSearcher{}, &mockSynth{names: []string{"openai"}})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/explain", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestExplainEndpoint_SynthesisDown(t *testing.T) {
	synth := &mockSynth{err: domain.ErrSynthesisUnavailable, names: []string{"openai"}}
	srv := newTestServer(&mockSearcher{}, synth)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/explain", ExplainRequest{Text: "explain this"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Code != CodeSynthesisUnavailable {
		t.Errorf("unexpected code %q", body.Code)
	}
}

func TestStreamEndpoint(t *testing.T) {
	searcher := &mockSearcher{sources: []domain.Source{{ID: 1, Title: "A", URL: "https://a.example"}}}
	synth := &mockSynth{text: "• Streamed explanation [1]", names: []string{"openai"}}

	srv := newTestServer(searcher, synth)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/explain/stream", ExplainRequest{Text: "stream this"})
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected SSE content type, got %q", ct)
	}

	var eventNames, eventData []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventNames = append(eventNames, strings.TrimPrefix(line, "event: "))
		}
		if strings.HasPrefix(line, "data: ") {
			eventData = append(eventData, strings.TrimPrefix(line, "data: "))
		}
	}

	if len(eventNames) < 3 {
		t.Fatalf("expected sources, chunk(s), done; got %v", eventNames)
	}
	if eventNames[0] != "sources" {
		t.Errorf("first event must be sources, got %q", eventNames[0])
	}
	if last := eventNames[len(eventNames)-1]; last != "done" {
		t.Errorf("last event must be done, got %q", last)
	}
	if last := eventData[len(eventData)-1]; last != `{"status":"complete"}` {
		t.Errorf("done payload must be a complete status, got %q", last)
	}
	for _, name := range eventNames[1 : len(eventNames)-1] {
		if name != "chunk" {
			t.Errorf("middle events must be chunks, got %q", name)
		}
	}
}

func TestCompareEndpoint(t *testing.T) {
	searcher := &mockSearcher{sources: []domain.Source{{ID: 1, Title: "A", URL: "https://a.example"}}}
	synth := &mockSynth{
		names:   []string{"openai", "gemini"},
		perName: map[string]string{"openai": "• From openai [1]"},
		pererrs: map[string]error{"gemini": domain.ErrProviderUnavailable},
	}

	srv := newTestServer(searcher, synth)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/explain/compare", ExplainRequest{Text: "compare this"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got domain.Comparison
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.AvailableProviders) != 2 {
		t.Errorf("unexpected providers: %v", got.AvailableProviders)
	}
	if got.Providers["gemini"].Err == "" {
		t.Error("expected per-entry error for the failed provider")
	}
	if len(got.Providers["openai"].Bullets) != 1 {
		t.Errorf("healthy provider entry malformed: %+v", got.Providers["openai"])
	}
}

func TestProvidersEndpoint(t *testing.T) {
	srv := newTestServer(&mockSearcher{}, &mockSynth{names: []string{"openai", "gemini"}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/providers")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got struct {
		Providers []string `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Providers) != 2 {
		t.Errorf("unexpected providers: %v", got.Providers)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&mockSearcher{}, &mockSynth{names: []string{"openai"}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var got struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "ok" {
		t.Errorf("unexpected status %q", got.Status)
	}
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	srv := newTestServer(&mockSearcher{}, &mockSynth{names: nil})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}
