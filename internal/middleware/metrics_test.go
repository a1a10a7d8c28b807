package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// recordedRequest は記録されたHTTPメトリクスの1件分。
type recordedRequest struct {
	route      string
	statusCode int
}

type stubMetricsRecorder struct {
	requests []recordedRequest
}

func (s *stubMetricsRecorder) RecordHTTPRequest(route string, statusCode int, duration time.Duration) {
	s.requests = append(s.requests, recordedRequest{route: route, statusCode: statusCode})
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	recorder := &stubMetricsRecorder{}

	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(recorder))
	r.Get("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/users/user-123", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if len(recorder.requests) != 1 {
		t.Fatalf("got %d recorded requests, want 1", len(recorder.requests))
	}
	got := recorder.requests[0]
	if got.route != "/api/users/{id}" {
		t.Errorf("route = %q, want %q", got.route, "/api/users/{id}")
	}
	if got.statusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", got.statusCode, http.StatusOK)
	}
}

func TestMetricsMiddleware_RecordsErrorStatus(t *testing.T) {
	recorder := &stubMetricsRecorder{}

	r := chi.NewRouter()
	r.Use(NewMetricsMiddleware(recorder))
	r.Get("/api/feed", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if len(recorder.requests) != 1 {
		t.Fatalf("got %d recorded requests, want 1", len(recorder.requests))
	}
	if recorder.requests[0].statusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", recorder.requests[0].statusCode, http.StatusInternalServerError)
	}
}
