package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetricsMiddleware_EmitsRequestCounters verifies that wrapped handlers
// show up on the Prometheus /metrics handler.
func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := testutil.ToFloat64(httpInflight); v < 1 {
			t.Errorf("inflight during request = %v", v)
		}
		w.WriteHeader(http.StatusTeapot)
	})
	rr := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status 418, got %d", rr.Code)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/test", http.MethodGet, "418")); got < 1 {
		t.Fatalf("requests_total not incremented")
	}

	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !bytes.Contains(mrr.Body.Bytes(), []byte("mealgen_http_requests_total")) {
		t.Fatalf("mealgen_http_requests_total missing from /metrics")
	}
}

func TestIncrementBackpressure_DefaultReason(t *testing.T) {
	before := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified"))
	IncrementBackpressure("")
	if after := testutil.ToFloat64(backpressureTotal.WithLabelValues("unspecified")); after != before+1 {
		t.Fatalf("backpressure_total{unspecified} = %v, want %v", after, before+1)
	}
}

func TestStreamEventsCounted(t *testing.T) {
	before := testutil.ToFloat64(streamEventsTotal.WithLabelValues("sse", "complete"))
	svc := &mockService{events: sampleEvents()}
	rr := httptest.NewRecorder()
	NewMux(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/recipes/generate", nil))
	if after := testutil.ToFloat64(streamEventsTotal.WithLabelValues("sse", "complete")); after != before+1 {
		t.Fatalf("stream_events_total{sse,complete} = %v, want %v", after, before+1)
	}
}
