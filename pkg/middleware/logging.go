// Package middleware holds HTTP middleware shared by the answer API and the
// MCP endpoint.
package middleware

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// quietPaths are probed constantly by orchestrators and are not logged.
var quietPaths = map[string]bool{
	"/health": true,
	"/ping":   true,
}

// RequestLogger returns middleware that logs HTTP requests at DEBUG level.
// Requests that end in a server error are logged at WARN.
// Pass nil logger to disable logging.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			if quietPaths[r.URL.Path] && wrapped.statusCode < http.StatusInternalServerError {
				return
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Int("bytes", wrapped.bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if wrapped.statusCode >= http.StatusInternalServerError {
				logger.Warn("HTTP request failed", fields...)
				return
			}
			logger.Debug("HTTP request", fields...)
		})
	}
}

// Recover converts a panic in next into a 500 response and an ERROR log
// entry, so one bad request cannot take the server down.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					if logger != nil {
						logger.Error("Panic while serving request",
							zap.String("method", r.Method),
							zap.String("path", r.URL.Path),
							zap.String("panic", fmt.Sprint(rec)),
							zap.Stack("stack"),
						)
					}
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Flush lets streaming MCP responses through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
