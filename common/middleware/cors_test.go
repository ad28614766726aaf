package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{
			name:       "exact match",
			allowed:    []string{"https://dash.example.com"},
			origin:     "https://dash.example.com",
			method:     http.MethodGet,
			wantOrigin: "https://dash.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wildcard subdomain",
			allowed:    []string{"*.example.com"},
			origin:     "https://ops.example.com",
			method:     http.MethodGet,
			wantOrigin: "https://ops.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "any origin",
			allowed:    []string{"*"},
			origin:     "http://localhost:8080",
			method:     http.MethodGet,
			wantOrigin: "http://localhost:8080",
			wantStatus: http.StatusOK,
		},
		{
			name:       "origin not allowed",
			allowed:    []string{"https://dash.example.com"},
			origin:     "https://evil.test",
			method:     http.MethodGet,
			wantOrigin: "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "no origin header",
			allowed:    []string{"*"},
			origin:     "",
			method:     http.MethodGet,
			wantOrigin: "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight",
			allowed:    []string{"*"},
			origin:     "http://localhost:8080",
			method:     http.MethodOptions,
			wantOrigin: "http://localhost:8080",
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORS(CORSConfig{AllowedOrigins: tt.allowed})(ok)

			req := httptest.NewRequest(tt.method, "/stats", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "300", w.Header().Get("Access-Control-Max-Age"))
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "GET")
			}
		})
	}
}
