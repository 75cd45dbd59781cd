package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that label dimensions match usage across the
// http, pipeline, imagegen, eligibility and chain packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/api/mint", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/api/mint").Observe(0.01)
	PipelineRunsTotal.WithLabelValues("done").Inc()
	PipelineStageDuration.WithLabelValues("generating").Observe(1.5)
	ImageGenerationTotal.WithLabelValues("fallback", "timeout").Inc()
	EligibilityChecksTotal.WithLabelValues("denied").Inc()
	UpstreamCallsTotal.WithLabelValues("open_meteo", "success").Inc()
	UpstreamDuration.WithLabelValues("open_meteo").Observe(0.2)
	UploadsTotal.WithLabelValues("image", "error").Inc()
	MintTotal.WithLabelValues("success", "receipt").Inc()
}

// TestRecordCircuitBreakerTransition verifies the transition counter and state gauge move together.
func TestRecordCircuitBreakerTransition(t *testing.T) {
	RecordCircuitBreakerTransition("image_provider", "closed", "open", 1)

	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("image_provider")); got != 1 {
		t.Errorf("circuitBreakerState = %v, want 1", got)
	}
	if got := testutil.ToFloat64(CircuitBreakerTransitionsTotal.WithLabelValues("image_provider", "closed", "open")); got < 1 {
		t.Errorf("circuitBreakerTransitionsTotal = %v, want >= 1", got)
	}
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
