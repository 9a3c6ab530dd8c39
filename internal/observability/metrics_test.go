package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision(true, time.Millisecond)

	body := scrape(t, metrics)
	if !strings.Contains(body, "iam_authz_decisions_total") {
		t.Fatalf("expected body to contain iam_authz_decisions_total, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "iam_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "iam_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObserveDecisionCountsOutcomes(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision(true, time.Millisecond)
	metrics.ObserveDecision(false, time.Millisecond)
	metrics.ObserveDecision(false, time.Millisecond)

	body := scrape(t, metrics)
	if !strings.Contains(body, "iam_authz_decisions_total{decision=\"allow\"} 1") {
		t.Fatalf("expected allow count, got: %s", body)
	}
	if !strings.Contains(body, "iam_authz_decisions_total{decision=\"deny\"} 2") {
		t.Fatalf("expected deny count, got: %s", body)
	}
}

func TestCacheEventCounts(t *testing.T) {
	metrics := NewMetrics()
	metrics.CacheEvent("hit")
	metrics.CacheEvent("hit")
	metrics.CacheEvent("miss")

	body := scrape(t, metrics)
	if !strings.Contains(body, "iam_authz_cache_events_total{event=\"hit\"} 2") {
		t.Fatalf("expected hit count, got: %s", body)
	}
	if !strings.Contains(body, "iam_authz_cache_events_total{event=\"miss\"} 1") {
		t.Fatalf("expected miss count, got: %s", body)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveDecision(true, time.Millisecond)
	metrics.CacheEvent("hit")

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected pass-through for nil metrics, got %d", rr.Code)
	}
}
