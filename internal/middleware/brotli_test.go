package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

func brotliTestRouter(body string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Brotli())
	r.GET("/payload", func(c *gin.Context) {
		c.String(http.StatusOK, body)
	})
	return r
}

func TestBrotliCompressesLargeResponses(t *testing.T) {
	body := strings.Repeat("the quick brown fox jumps over the lazy dog ", 100)
	router := brotliTestRouter(body)

	req := httptest.NewRequest(http.MethodGet, "/payload", nil)
	req.Header.Set("Accept-Encoding", "gzip, br")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if enc := rec.Header().Get("Content-Encoding"); enc != "br" {
		t.Fatalf("Content-Encoding = %q, want br", enc)
	}
	decoded, err := io.ReadAll(brotli.NewReader(rec.Body))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != body {
		t.Error("decompressed body does not match the original")
	}
}

func TestBrotliPassthrough(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
	}{
		{
			name:    "below size threshold",
			body:    "small envelope",
			headers: map[string]string{"Accept-Encoding": "br"},
		},
		{
			name:    "client does not accept br",
			body:    strings.Repeat("x", 4096),
			headers: map[string]string{"Accept-Encoding": "gzip"},
		},
		{
			name: "sse request",
			body: strings.Repeat("x", 4096),
			headers: map[string]string{
				"Accept-Encoding": "br",
				"Accept":          "text/event-stream",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := brotliTestRouter(tt.body)
			req := httptest.NewRequest(http.MethodGet, "/payload", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if enc := rec.Header().Get("Content-Encoding"); enc != "" {
				t.Errorf("Content-Encoding = %q, want uncompressed", enc)
			}
			if rec.Body.String() != tt.body {
				t.Error("body altered on the passthrough path")
			}
		})
	}
}
