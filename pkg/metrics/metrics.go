// Package metrics defines the Prometheus collectors exported by telemetryd.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetryd_http_requests_total",
		Help: "Total HTTP requests handled, by method, route, and status code.",
	}, []string{"method", "route", "status"})
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "telemetryd_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds, by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "telemetryd_sessions_active",
		Help: "The current number of open sessions in the store.",
	})
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetryd_sessions_started_total",
		Help: "The total number of sessions ever started.",
	})
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetryd_sessions_evicted_total",
		Help: "The total number of closed sessions removed after retention.",
	})

	// Event log metrics
	EventsLogged = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telemetryd_events_logged_total",
		Help: "The total number of events appended to the event log, by type.",
	}, []string{"event_type"})
	EventLogFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetryd_eventlog_write_failures_total",
		Help: "The total number of event log writes that failed on disk.",
	})
	EventLogDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetryd_eventlog_dropped_total",
		Help: "The total number of events dropped because the log queue was full.",
	})
	EventLogRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetryd_eventlog_rotations_total",
		Help: "The total number of event log file rotations.",
	})

	// Error metrics
	PanicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "telemetryd_panics_recovered_total",
		Help: "The total number of panics recovered at the request boundary.",
	})
)
