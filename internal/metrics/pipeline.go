package metrics

import "github.com/prometheus/client_golang/prometheus"

// Explanation pipeline Prometheus metrics.
var (
	ExplainRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "explainer",
			Name:      "explain_requests_total",
			Help:      "Total number of explanation requests",
		},
		[]string{"mode", "status"}, // mode: single, stream, compare
	)

	ExplainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "explainer",
			Name:      "explain_duration_seconds",
			Help:      "End-to-end explanation duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		},
		[]string{"mode"},
	)

	CacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "explainer",
			Name:      "cache_total",
			Help:      "Explanation cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "explainer",
			Name:      "search_requests_total",
			Help:      "Total search backend requests",
		},
		[]string{"backend", "status"},
	)

	SearchRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "explainer",
			Name:      "search_request_duration_seconds",
			Help:      "Search backend request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"backend"},
	)

	SynthesisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "explainer",
			Name:      "synthesis_requests_total",
			Help:      "Total language-model synthesis requests",
		},
		[]string{"provider", "model", "status"},
	)

	SynthesisRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "explainer",
			Name:      "synthesis_request_duration_seconds",
			Help:      "Language-model synthesis duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 90},
		},
		[]string{"provider", "model"},
	)

	ProviderFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "explainer",
			Name:      "provider_fallbacks_total",
			Help:      "Times synthesis fell through to a lower-priority provider",
		},
		[]string{"from", "to"},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers Prometheus pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(ExplainRequestsTotal)
	prometheus.MustRegister(ExplainDuration)
	prometheus.MustRegister(CacheTotal)
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(SearchRequestDuration)
	prometheus.MustRegister(SynthesisRequestsTotal)
	prometheus.MustRegister(SynthesisRequestDuration)
	prometheus.MustRegister(ProviderFallbacksTotal)
	pipelineMetricsRegistered = true
}
