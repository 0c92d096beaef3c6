package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLogger_PassesThrough(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		if _, err := w.Write([]byte("body")); err != nil {
			t.Fatal(err)
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	Logger(inner).ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status passthrough, got %d", w.Code)
	}
	if w.Body.String() != "body" {
		t.Errorf("Expected body passthrough, got %q", w.Body.String())
	}
}

func TestLogger_PreservesFlusher(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("Expected wrapped writer to flush")
		}
	})

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	Logger(inner).ServeHTTP(httptest.NewRecorder(), req)
}
