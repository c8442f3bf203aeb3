package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("wave", "payment", "ok", 20*time.Millisecond)
	m.ObserveOperation("wave", "payment", "ok", 30*time.Millisecond)
	m.ObserveOperation("wave", "payment", "provider_request_failure", time.Second)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("wave", "payment", "ok")); got != 2 {
		t.Fatalf("expected 2 ok operations, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("wave", "payment", "provider_request_failure")); got != 1 {
		t.Fatalf("expected 1 failed operation, got %v", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("orange", "verify", "ok", time.Millisecond)
	m.RateLimited("orange")
	m.Webhook("orange", "accepted")
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.RateLimited("mtn")
	m.Webhook("wave", "accepted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{`paygate_rate_limited_total{provider="mtn"} 1`, `paygate_webhooks_total{outcome="accepted",provider="wave"} 1`} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
