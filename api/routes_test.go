package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsAllowedOrigin(t *testing.T) {
	allowed := []string{"https://app.kinship.example"}
	cases := map[string]bool{
		"https://app.kinship.example":         true,
		"https://app.kinship.example/v1/page": true,
		"http://localhost:5173":               true,
		"https://evil.example":                false,
	}
	for origin, want := range cases {
		if got := isAllowedOrigin(origin, allowed); got != want {
			t.Fatalf("%s: want=%v got=%v", origin, want, got)
		}
	}
}

func TestCorsWrapping(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign origin: want=403 got=%d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodOptions, "/v1/cycle", nil)
	req.Header.Set("Origin", "https://app.kinship.example")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.kinship.example" {
		t.Fatalf("preflight: code=%d allow=%q", rec.Code, rec.Header().Get("Access-Control-Allow-Origin"))
	}
}
