package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// Responses below this size are sent uncompressed; the header overhead is
// not worth it for small envelopes.
const brotliMinLength = 1024

type brotliWriter struct {
	gin.ResponseWriter
	bw         *brotli.Writer
	pending    []byte
	markOnce   sync.Once
	compressed bool
}

func (w *brotliWriter) Write(data []byte) (int, error) {
	w.pending = append(w.pending, data...)
	if len(w.pending) < brotliMinLength {
		return len(data), nil
	}

	w.markOnce.Do(func() {
		w.compressed = true
		w.ResponseWriter.Header().Set("Content-Encoding", "br")
		w.ResponseWriter.Header().Del("Content-Length")
	})
	n, err := w.bw.Write(w.pending)
	w.pending = w.pending[:0]
	return n, err
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Flush drains any buffered bytes uncompressed and forwards the flush, so
// streaming responses are never held back waiting for the size threshold.
func (w *brotliWriter) Flush() {
	if len(w.pending) > 0 {
		_, _ = w.ResponseWriter.Write(w.pending)
		w.pending = w.pending[:0]
	}
	w.ResponseWriter.Flush()
}

func (w *brotliWriter) finish() error {
	if len(w.pending) > 0 {
		if _, err := w.ResponseWriter.Write(w.pending); err != nil {
			return err
		}
		w.pending = w.pending[:0]
	}
	if w.compressed {
		return w.bw.Close()
	}
	return nil
}

// Brotli compresses responses for clients that advertise br support.
// Responses under the size threshold pass through untouched, as do SSE and
// WebSocket upgrade requests, which cannot tolerate buffering.
func Brotli() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isStreamingRequest(c) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		w := &brotliWriter{
			ResponseWriter: c.Writer,
			bw:             brotli.NewWriterLevel(c.Writer, brotli.DefaultCompression),
		}
		defer func() {
			if err := w.finish(); err != nil {
				_ = c.Error(err)
			}
		}()

		c.Writer = w
		c.Next()
	}
}

func isStreamingRequest(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.ToLower(enc)) == "br" {
			return true
		}
	}
	return false
}
