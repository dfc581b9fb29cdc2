package metricssink

import (
	"net/http/httptest"
	"testing"
)

func TestSinkIncDoesNotPanicOnKnownNames(t *testing.T) {
	s := Sink{}
	s.Inc("killswitch_error", map[string]string{"reason": "nil_config"})
	s.Inc("dependency_call_total", map[string]string{"dependency": "tariff_lookup", "outcome": "ok"})
	s.Inc("shadow_sampled_total", nil)
}

func TestSinkIncIgnoresUnknownNames(t *testing.T) {
	s := Sink{}
	s.Inc("not_a_real_metric", nil) // must not panic
}

func TestSinkSetUpdatesGauge(t *testing.T) {
	s := Sink{}
	s.Set("circuit_state", map[string]string{"dependency": "tariff_lookup"}, 2)
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
