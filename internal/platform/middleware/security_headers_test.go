package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

var wantSecurityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "0",
	"Content-Security-Policy":   "default-src 'none'; frame-ancestors 'none'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Referrer-Policy":           "no-referrer",
	"Permissions-Policy":        "camera=(), microphone=(), geolocation=()",
	"Cache-Control":             "no-store",
	"Pragma":                    "no-cache",
}

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		handler echo.HandlerFunc
		status  int
	}{
		{"disclosure open", http.MethodPost, "/api/v1/results/access", func(c echo.Context) error {
			return c.String(http.StatusOK, "ok")
		}, http.StatusOK},
		{"staff create", http.MethodPost, "/api/v1/patients", func(c echo.Context) error {
			return c.String(http.StatusCreated, "created")
		}, http.StatusCreated},
		{"handler error", http.MethodGet, "/api/v1/disclosure/sessions/x", func(c echo.Context) error {
			return echo.NewHTTPError(http.StatusNotFound, "not found")
		}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(tt.method, tt.path, nil), rec)

			err := SecurityHeaders()(tt.handler)(c)
			if httpErr, ok := err.(*echo.HTTPError); ok {
				if httpErr.Code != tt.status {
					t.Errorf("expected %d, got %d", tt.status, httpErr.Code)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			} else if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}

			for header, want := range wantSecurityHeaders {
				if got := rec.Header().Get(header); got != want {
					t.Errorf("header %s: got %q, want %q", header, got, want)
				}
			}
		})
	}
}
