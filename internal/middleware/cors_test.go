package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/playmatatu/plinko/internal/config"
)

func upgradeRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WebSocketCORSCheck(cfg))
	r.GET("/ws", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestWebSocketCORSCheck(t *testing.T) {
	cases := []struct {
		name   string
		env    string
		origin string
		want   int
	}{
		{"dev localhost", "development", "http://localhost:3000", http.StatusNoContent},
		{"dev foreign", "development", "https://evil.example", http.StatusForbidden},
		{"prod frontend", "production", "https://plinko.example", http.StatusNoContent},
		{"prod localhost", "production", "http://localhost:3000", http.StatusForbidden},
		{"no origin", "production", "", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := upgradeRouter(&config.Config{Environment: tc.env, FrontendURL: "https://plinko.example"})
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			req.Header.Set("Connection", "Upgrade")
			req.Header.Set("Upgrade", "websocket")
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestPlainRequestsSkipOriginCheck(t *testing.T) {
	r := upgradeRouter(&config.Config{Environment: "production"})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("status %d", w.Code)
	}
}
