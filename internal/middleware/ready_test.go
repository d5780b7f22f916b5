package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubChecker struct {
	ready bool
}

func (s *stubChecker) StoreReady() bool { return s.ready }

func TestReadiness(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("store ready", func(t *testing.T) {
		h := Readiness(&stubChecker{ready: true})(next)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("store not ready", func(t *testing.T) {
		h := Readiness(&stubChecker{ready: false})(next)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/items", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}
