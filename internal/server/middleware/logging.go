package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

type logFieldsKey struct{}

// logFields collects attributes that inner middleware learn about the
// request (identity, role) so the outer Logger can include them.
type logFields struct {
	mu    sync.Mutex
	attrs []any
}

// annotate adds a key/value pair to the request log line. It is a no-op when
// Logger is not installed.
func annotate(ctx context.Context, key string, value any) {
	f, ok := ctx.Value(logFieldsKey{}).(*logFields)
	if !ok {
		return
	}
	f.mu.Lock()
	f.attrs = append(f.attrs, key, value)
	f.mu.Unlock()
}

// Logger returns an HTTP middleware that logs every request using structured
// logging. Besides method, path, status, size and duration it records the
// request ID and, for authenticated requests, the identity and role.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			fields := &logFields{}
			r = r.WithContext(context.WithValue(r.Context(), logFieldsKey{}, fields))

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if ww.status >= 500 {
				level = slog.LevelError
			} else if ww.status >= 400 {
				level = slog.LevelWarn
			}

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.status,
				"duration_ms", float64(duration.Microseconds()) / 1000.0,
				"bytes", ww.bytes,
				"request_id", GetRequestID(r.Context()),
				"remote_addr", r.RemoteAddr,
			}
			fields.mu.Lock()
			attrs = append(attrs, fields.attrs...)
			fields.mu.Unlock()

			logger.Log(r.Context(), level, "request", attrs...)
		})
	}
}

// responseWriter captures the status code and bytes written.
type responseWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (w *responseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Unwrap returns the underlying ResponseWriter for http.ResponseController.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
