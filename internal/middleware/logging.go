package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Logging writes one line per completed request. Member message bodies
// never appear here; only routing metadata is logged.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		logger := slog.Info
		if sw.status >= 500 {
			logger = slog.Error
		}
		logger("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", GetRequestID(r.Context()),
		)
	})
}
