package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/logger"
)

func TestRequestIDKeepsSaneCallerID(t *testing.T) {
	handler := RequestID(logger.New(logger.Options{ServiceName: "test"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "edge-7f3a.42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "edge-7f3a.42" {
		t.Fatalf("expected caller id echoed, got %q", got)
	}

	for _, bad := range []string{"", "has space", "line\nbreak", strings.Repeat("a", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestIDHeader, bad)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if _, err := uuid.Parse(rec.Header().Get(requestIDHeader)); err != nil {
			t.Fatalf("expected minted uuid for %q, got %q", bad, rec.Header().Get(requestIDHeader))
		}
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	handler := Recoverer(logger.New(logger.Options{ServiceName: "test"}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "boom") {
		t.Fatalf("panic value must not leak: %s", rec.Body.String())
	}
}

func TestRecovererRethrowsAbort(t *testing.T) {
	handler := Recoverer(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected abort to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
