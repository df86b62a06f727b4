package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Mayank009/cashew/internal/metrics"
)

func TestRequestTrackerLabelsByRoutePattern(t *testing.T) {
	metrics.HTTPRequestsTotal.Reset()

	router := chi.NewRouter()
	router.Use(RequestTracker())
	router.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK)
	})

	for _, path := range []string{"/items/1", "/items/2", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "/items/{id}", "418")); got != 2 {
		t.Fatalf("expected 2 requests for /items/{id}, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}
}
