package trace

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecordAveragesDurations(t *testing.T) {
	m := NewMiddleware(nil)

	m.record(2 * time.Millisecond)
	m.record(4 * time.Millisecond)

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", metrics.TotalRequests)
	}
	if metrics.AverageResponseTime != 3000 {
		t.Errorf("AverageResponseTime = %d µs, want 3000", metrics.AverageResponseTime)
	}
}

func TestGetMetricsWithoutRequests(t *testing.T) {
	m := NewMiddleware(nil)

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 0 || metrics.AverageResponseTime != 0 {
		t.Errorf("expected zero metrics, got %+v", metrics)
	}
}

func TestMiddlewareAssignsRequestID(t *testing.T) {
	m := NewMiddleware(nil)

	var seen string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected request id in context")
	}
	if !strings.HasPrefix(seen, "req_") {
		t.Errorf("request id %q missing req_ prefix", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("X-Request-ID header = %q, want %q", got, seen)
	}

	metrics := m.GetMetrics()
	if metrics.TotalRequests != 1 {
		t.Errorf("TotalRequests = %d, want 1", metrics.TotalRequests)
	}
}

func TestMiddlewareHonorsIncomingRequestID(t *testing.T) {
	m := NewMiddleware(nil)

	var seen string
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req_upstream")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "req_upstream" {
		t.Errorf("request id = %q, want req_upstream", seen)
	}
	if got := rec.Header().Get("X-Request-ID"); got != "req_upstream" {
		t.Errorf("X-Request-ID header = %q, want req_upstream", got)
	}
}

func TestGetRequestIDMissing(t *testing.T) {
	if got := GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); got != "" {
		t.Errorf("GetRequestID on bare context = %q, want empty", got)
	}
}
