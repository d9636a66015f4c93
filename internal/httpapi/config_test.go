package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSetMaxBodyBytes(t *testing.T) {
	defer SetMaxBodyBytes(0)
	SetMaxBodyBytes(10)
	if maxBodyBytes != 10 {
		t.Fatalf("maxBodyBytes=%d", maxBodyBytes)
	}
	SetMaxBodyBytes(-1)
	if maxBodyBytes != 1<<20 {
		t.Fatalf("reset failed: %d", maxBodyBytes)
	}
}

func TestSetStreamTimeoutSeconds(t *testing.T) {
	defer SetStreamTimeoutSeconds(0)
	SetStreamTimeoutSeconds(3)
	if streamTimeout != 3*time.Second {
		t.Fatalf("streamTimeout=%s", streamTimeout)
	}
	SetStreamTimeoutSeconds(-5)
	if streamTimeout != 0 {
		t.Fatalf("negative should disable: %s", streamTimeout)
	}
}

func TestCORS_PreflightAllowedOrigin(t *testing.T) {
	SetCORSOptions(true, []string{"http://localhost:3000"}, nil, nil)
	defer SetCORSOptions(false, nil, nil, nil)

	r := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodOptions, "/api/recipes/generate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow-origin=%q status=%d", got, w.Code)
	}
}

func TestCORS_DisabledAddsNoHeaders(t *testing.T) {
	SetCORSOptions(false, nil, nil, nil)
	r := NewMux(&mockService{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://elsewhere.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
}
