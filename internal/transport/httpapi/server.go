// Package httpapi exposes the explanation pipeline over HTTP, including
// the server-sent-events streaming endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/charlesblakely0701-star/post-explainer/internal/domain"
	explainuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/explain"
	healthuc "github.com/charlesblakely0701-star/post-explainer/internal/usecase/health"
)

// ErrorCode is a machine-readable error discriminator in error responses.
type ErrorCode string

const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeSynthesisUnavailable ErrorCode = "synthesis_unavailable"
	CodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ExplainRequest is the JSON request body shared by all explanation endpoints.
type ExplainRequest struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server routes explanation requests into the pipeline.
type Server struct {
	explain       *explainuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(explain *explainuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		explain: explain,
		health:  health,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyPost, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrSynthesisUnavailable, http.StatusBadGateway, CodeSynthesisUnavailable),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, CodeSynthesisUnavailable),
		sentinelHandler(domain.ErrModelNotFound, http.StatusBadGateway, CodeSynthesisUnavailable),
		sentinelHandler(domain.ErrNoProviders, http.StatusBadGateway, CodeSynthesisUnavailable),
	}
	return s
}

// Register mounts all routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/explain", s.Explain)
	r.Post("/explain/stream", s.ExplainStream)
	r.Post("/explain/compare", s.Compare)
	r.Get("/providers", s.Providers)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Explain handles POST /explain.
func (s *Server) Explain(w http.ResponseWriter, r *http.Request) {
	post, ok := s.decodePost(w, r)
	if !ok {
		return
	}

	result, err := s.explain.Explain(r.Context(), post)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Compare handles POST /explain/compare.
func (s *Server) Compare(w http.ResponseWriter, r *http.Request) {
	post, ok := s.decodePost(w, r)
	if !ok {
		return
	}

	result, err := s.explain.Compare(r.Context(), post)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ExplainStream handles POST /explain/stream with server-sent events:
// one sources event, zero or more chunk events, one terminal done or
// error event.
func (s *Server) ExplainStream(w http.ResponseWriter, r *http.Request) {
	post, ok := s.decodePost(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, CodeInternalError, "streaming unsupported")
		return
	}

	events, err := s.explain.ExplainStream(r.Context(), post)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		writeSSE(w, ev)
		flusher.Flush()
	}
}

// Providers handles GET /providers.
func (s *Server) Providers(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check()
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": report.Providers,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check()

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// decodePost parses and validates the request body. A written error
// response is signalled by ok=false.
func (s *Server) decodePost(w http.ResponseWriter, r *http.Request) (domain.Post, bool) {
	var req ExplainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return domain.Post{}, false
	}
	return domain.Post{Text: req.Text, ImageURL: req.ImageURL}, true
}

// sseEvent is the wire shape of one stream event.
type sseEvent struct {
	Sources []domain.Source `json:"sources,omitempty"`
	Text    string          `json:"text,omitempty"`
	Status  string          `json:"status,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func writeSSE(w http.ResponseWriter, ev explainuc.Event) {
	var payload sseEvent
	switch ev.Type {
	case explainuc.EventSources:
		payload.Sources = ev.Sources
		if payload.Sources == nil {
			payload.Sources = []domain.Source{}
		}
	case explainuc.EventChunk:
		payload.Text = ev.Chunk
	case explainuc.EventDone:
		payload.Status = "complete"
	case explainuc.EventError:
		payload.Error = ev.Err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + string(ev.Type) + "\ndata: " + string(data) + "\n\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client
// without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyPost,
		domain.ErrSynthesisUnavailable,
		domain.ErrProviderUnavailable,
		domain.ErrModelNotFound,
		domain.ErrNoProviders,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	writeError(w, http.StatusInternalServerError, CodeInternalError, msg)
}
