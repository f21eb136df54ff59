// Package middleware содержит HTTP middleware CRM-сервиса Nexus.
package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
)

type gzipWriter struct {
	http.ResponseWriter
	writer      io.Writer
	compressed  bool
	wroteHeader bool
}

func (g *gzipWriter) WriteHeader(statusCode int) {
	if !g.wroteHeader {
		contentType := g.Header().Get("Content-Type")
		if strings.Contains(contentType, "application/json") || strings.Contains(contentType, "text/html") {
			g.Header().Set("Content-Encoding", "gzip")
			g.compressed = true
		} else {
			g.writer = g.ResponseWriter
		}
		g.wroteHeader = true
	}
	g.ResponseWriter.WriteHeader(statusCode)
}

func (g *gzipWriter) Write(b []byte) (int, error) {
	if !g.wroteHeader {
		g.WriteHeader(http.StatusOK)
	}
	return g.writer.Write(b)
}

// GzipMiddleware распаковывает сжатые тела запросов и сжимает ответы
// с типами application/json и text/html, если клиент принимает gzip.
func GzipMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Content-Encoding"), "gzip") {
			gz, err := gzip.NewReader(r.Body)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			defer gz.Close()
			r.Body = io.NopCloser(gz)
		}

		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}

		gz := gzip.NewWriter(w)
		gw := &gzipWriter{ResponseWriter: w, writer: gz}

		// Трейлер gzip пишется только если ответ действительно сжимался.
		defer func() {
			if gw.compressed {
				gz.Close()
			}
		}()

		next.ServeHTTP(gw, r)
	})
}
