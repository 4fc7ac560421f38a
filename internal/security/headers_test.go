package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func serveWith(mw gin.HandlerFunc, method string, origin string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(mw)
	router.GET("/ping", func(c *gin.Context) {
		c.String(200, "ok")
	})

	req := httptest.NewRequest(method, "/ping", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddlewareSetsSecurityHeaders(t *testing.T) {
	w := serveWith(HeadersMiddleware(), "GET", "")

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, expected := range want {
		if got := w.Header().Get(header); got != expected {
			t.Errorf("%s = %q, want %q", header, got, expected)
		}
	}
	if w.Header().Get("Content-Security-Policy") == "" {
		t.Error("Content-Security-Policy not set")
	}
}

func TestCORSMiddlewareOriginMatching(t *testing.T) {
	tests := []struct {
		name         string
		allowed      []string
		origin       string
		expectHeader bool
	}{
		{"listed origin passes", []string{"https://app.atelier.dev"}, "https://app.atelier.dev", true},
		{"wildcard passes anything", []string{"*"}, "https://studio.example.dev", true},
		{"unlisted origin refused", []string{"https://app.atelier.dev"}, "https://attacker.example", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serveWith(CORSMiddleware(tc.allowed), "GET", tc.origin)
			got := w.Header().Get("Access-Control-Allow-Origin") != ""
			if got != tc.expectHeader {
				t.Errorf("CORS header present = %v, want %v", got, tc.expectHeader)
			}
		})
	}
}

func TestCORSMiddlewarePreflight(t *testing.T) {
	w := serveWith(CORSMiddleware([]string{"*"}), "OPTIONS", "https://app.atelier.dev")

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Error("Access-Control-Allow-Methods not set")
	}
}
