package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	v1 "github.com/meshkit/meshhost/internal/http/v1"
)

func TestAPIPrefixEnforced(t *testing.T) {
	s := NewServer(v1.NewAPI(nil, nil, nil))

	// Unversioned path should 404
	req := httptest.NewRequest(http.MethodGet, "/inventory", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unversioned path, got %d", rec.Code)
	}

	// Versioned path that needs no controller should 200
	req2 := httptest.NewRequest(http.MethodGet, "/api/v1/openapi.yaml", nil)
	rec2 := httptest.NewRecorder()
	s.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 for versioned path, got %d", rec2.Code)
	}
}

func TestRootDocsRedirect(t *testing.T) {
	s := NewServer(v1.NewAPI(nil, nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/docs/index.html" {
		t.Fatalf("unexpected redirect target %q", loc)
	}
}
