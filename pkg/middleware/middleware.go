// Package middleware provides HTTP middleware for telemetryd.
package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/visiontel/telemetryd/pkg/eventlog"
	"github.com/visiontel/telemetryd/pkg/metrics"
)

// statusWriter records the status code written to the response. A
// handler that never writes reports as 200, matching net/http behavior.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Recover catches panics at the request boundary, records them as
// server-error events, and converts them to a generic 500 without leaking
// internal detail.
func Recover(log *eventlog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					metrics.PanicsRecovered.Inc()
					slog.Error("http: panic recovered",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec,
					)
					if log != nil {
						log.Append(eventlog.ServerError, map[string]any{
							"method": r.Method,
							"path":   r.URL.Path,
						})
					}
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]any{
						"success": false,
						"error":   "internal server error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one structured line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)

		slog.Info("http: request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.code(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Metrics records Prometheus request counters and latency. File names in
// log download paths are collapsed to one route so label cardinality
// stays bounded.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)

		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(sw.code())).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// normalizeRoute collapses parameterized paths to their route pattern.
func normalizeRoute(path string) string {
	const logsPrefix = "/api/v1/logs/"
	if strings.HasPrefix(path, logsPrefix) && path != logsPrefix+"cleanup" {
		return logsPrefix + "{file}"
	}
	return path
}

// Chain applies middleware so the first listed runs outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
