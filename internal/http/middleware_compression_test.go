package httpx

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressedHandler(contentType string, status int, body string) http.Handler {
	return Compression(CompressionConfig{Level: 6, Logger: discardLogger()})(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if contentType != "" {
				w.Header().Set("Content-Type", contentType)
			}
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
		}))
}

func TestCompression_GzipsTextForCapableClients(t *testing.T) {
	body := strings.Repeat(`{"totalEvents":1234}`, 200)
	req := httptest.NewRequest(http.MethodGet, "/api/views/dashboard", nil)
	req.Header.Set("Accept-Encoding", "br, gzip;q=0.8")
	rec := httptest.NewRecorder()
	compressedHandler("application/json", http.StatusOK, body).ServeHTTP(rec, req)

	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Contains(t, rec.Header().Values("Vary"), "Accept-Encoding")
	assert.Less(t, rec.Body.Len(), len(body))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, body, string(plain))
}

func TestCompression_PassThrough(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		accept      string
		upgrade     bool
		contentType string
		status      int
	}{
		{name: "client without gzip", method: http.MethodGet, accept: "deflate", contentType: "text/html", status: http.StatusOK},
		{name: "gzip explicitly refused", method: http.MethodGet, accept: "gzip;q=0", contentType: "text/html", status: http.StatusOK},
		{name: "binary content", method: http.MethodGet, accept: "gzip", contentType: "image/png", status: http.StatusOK},
		{name: "no content", method: http.MethodGet, accept: "gzip", contentType: "text/html", status: http.StatusNoContent},
		{name: "HEAD request", method: http.MethodHead, accept: "gzip", contentType: "text/html", status: http.StatusOK},
		{name: "websocket upgrade", method: http.MethodGet, accept: "gzip", upgrade: true, contentType: "text/html", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			req.Header.Set("Accept-Encoding", tt.accept)
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			rec := httptest.NewRecorder()
			compressedHandler(tt.contentType, tt.status, "").ServeHTTP(rec, req)

			assert.Empty(t, rec.Header().Get("Content-Encoding"))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestCompression_KeepsExistingEncoding(t *testing.T) {
	h := Compression(CompressionConfig{Level: 6})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/css")
		w.Header().Set("Content-Encoding", "br")
		_, _ = io.WriteString(w, "already encoded")
	}))
	req := httptest.NewRequest(http.MethodGet, "/static/app.css", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	assert.Equal(t, "already encoded", rec.Body.String())
}

func TestAcceptsGzip(t *testing.T) {
	assert.True(t, acceptsGzip("gzip"))
	assert.True(t, acceptsGzip("deflate, GZIP ; q=0.5"))
	assert.False(t, acceptsGzip(""))
	assert.False(t, acceptsGzip("gzip; q=0"))
	assert.False(t, acceptsGzip("x-gzip-like"))
}
