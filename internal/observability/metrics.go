package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation while pipelines poll.
	HTTPRequestsInFlight prometheus.Gauge

	// Pipeline runs by final outcome (done, not_eligible, in_flight, mint_failed, error).
	PipelineRunsTotal *prometheus.CounterVec

	// Per-stage latency. Watch for: generating dominated by poll timeouts.
	PipelineStageDuration *prometheus.HistogramVec

	// Image results by source (ai, fallback) and fallback reason. Watch for: fallback ratio.
	ImageGenerationTotal *prometheus.CounterVec

	// Eligibility results (eligible, denied, error).
	EligibilityChecksTotal *prometheus.CounterVec

	// Eligibility cache effectiveness. Hit rate = hits/(hits+misses).
	EligibilityCacheHitsTotal   prometheus.Counter
	EligibilityCacheMissesTotal prometheus.Counter

	// Outbound calls per upstream (nominatim, open_meteo, replicate, openai, pinata, alchemy, rpc).
	UpstreamCallsTotal *prometheus.CounterVec

	// Outbound latency per upstream.
	UpstreamDuration *prometheus.HistogramVec

	// Uploads to content-addressed storage by status.
	UploadsTotal *prometheus.CounterVec

	// Mint transactions by status (success, failed) and token id provenance.
	MintTotal *prometheus.CounterVec

	// Circuit breaker state per component: 0 closed, 1 open, 2 half-open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Rate limit denials.
	RateLimitDeniedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipelineRunsTotal",
			Help: "Total number of mint pipeline runs by outcome",
		},
		[]string{"outcome"},
	)
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipelineStageDurationSeconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: []float64{.01, .1, .5, 1, 2.5, 5, 10, 30, 60, 90},
		},
		[]string{"stage"},
	)
	ImageGenerationTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imageGenerationTotal",
			Help: "Poster images produced, by source and fallback reason",
		},
		[]string{"source", "reason"},
	)
	EligibilityChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eligibilityChecksTotal",
			Help: "Mint eligibility checks by result",
		},
		[]string{"result"},
	)
	EligibilityCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eligibilityCacheHitsTotal",
			Help: "Eligibility checks answered from cache",
		},
	)
	EligibilityCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eligibilityCacheMissesTotal",
			Help: "Eligibility checks that required a contract read",
		},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of outbound calls per upstream",
		},
		[]string{"upstream", "status"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamDurationSeconds",
			Help:    "Outbound call latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"upstream"},
	)
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploadsTotal",
			Help: "Uploads to content-addressed storage by kind and status",
		},
		[]string{"kind", "status"},
	)
	MintTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mintTotal",
			Help: "Mint transactions by status and token id source",
		},
		[]string{"status", "tokenSource"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		PipelineRunsTotal, PipelineStageDuration,
		ImageGenerationTotal,
		EligibilityChecksTotal, EligibilityCacheHitsTotal, EligibilityCacheMissesTotal,
		UpstreamCallsTotal, UpstreamDuration,
		UploadsTotal, MintTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		RateLimitDeniedTotal,
	)
}

// RecordCircuitBreakerTransition records a breaker state change and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
