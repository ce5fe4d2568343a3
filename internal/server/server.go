// Package server assembles the telemetryd HTTP server from its parts.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/visiontel/telemetryd/pkg/config"
	"github.com/visiontel/telemetryd/pkg/eventlog"
	"github.com/visiontel/telemetryd/pkg/health"
	"github.com/visiontel/telemetryd/pkg/middleware"
	"github.com/visiontel/telemetryd/pkg/session"
	"github.com/visiontel/telemetryd/pkg/stats"
	"github.com/visiontel/telemetryd/pkg/telemetry"
)

// Build information, set at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Server owns the HTTP listener and the shared telemetry state.
// State is explicitly volatile: nothing survives a restart.
type Server struct {
	cfg      *config.Config
	httpSrv  *http.Server
	store    *session.MemoryStore
	eventLog *eventlog.Logger
	svc      *telemetry.Service
	checker  *health.Checker
}

// New constructs the server: session store, global counters, event log,
// telemetry service, and the composed HTTP handler.
func New(cfg *config.Config) (*Server, error) {
	start := time.Now()

	eventLog, err := eventlog.New(cfg.EventLog.Dir,
		eventlog.WithMaxFileSize(cfg.EventLog.MaxFileSize),
		eventlog.WithQueueDepth(cfg.EventLog.QueueDepth),
	)
	if err != nil {
		return nil, fmt.Errorf("creating event log: %w", err)
	}

	store := session.NewMemoryStore()
	globals := stats.NewGlobals(start)
	svc := telemetry.NewService(store, globals, eventLog, cfg.Telemetry.RetentionDelay)

	s := &Server{
		cfg:      cfg,
		store:    store,
		eventLog: eventLog,
		svc:      svc,
		checker:  health.NewChecker(start),
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", telemetry.NewHandler(svc, eventLog, cfg.EventLog.PurgeDefaultDays))
	mux.HandleFunc("GET /api/v1/system/info", s.systemInfo)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.checker.LivenessHandler())
	mux.HandleFunc("GET /readyz", s.checker.ReadinessHandler())

	s.httpSrv = &http.Server{
		Addr: cfg.Server.Address,
		Handler: middleware.Chain(mux,
			middleware.Recover(eventLog),
			middleware.RequestLogger,
			middleware.Metrics,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Service returns the telemetry service, for tests and embedding.
func (s *Server) Service() *telemetry.Service {
	return s.svc
}

// Handler returns the composed HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start marks the server ready and serves until Shutdown.
func (s *Server) Start() error {
	s.checker.SetReady()
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests, discards pending eviction timers,
// and flushes the event log queue.
func (s *Server) Shutdown(ctx context.Context) error {
	s.checker.SetDraining()

	err := s.httpSrv.Shutdown(ctx)
	_ = s.store.Close()
	_ = s.eventLog.Close()
	if err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
