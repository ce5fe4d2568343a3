// Package telemetry orchestrates the session store, global counters, and
// event log in response to the four telemetry event kinds, and exposes
// the HTTP API for them.
package telemetry

import (
	"fmt"
	"time"

	"github.com/visiontel/telemetryd/pkg/eventlog"
	"github.com/visiontel/telemetryd/pkg/session"
	"github.com/visiontel/telemetryd/pkg/stats"
)

// widgetFilterSelect is the widget whose interaction values are collected
// into the session's filter set.
const widgetFilterSelect = "filterSelect"

// Service applies telemetry events to shared state and records them in
// the event log. Validation is fail-fast: required field, then session
// existence, then session state. No state is mutated on a validation
// failure. Log appends happen after state mutation and never block.
type Service struct {
	store     *session.MemoryStore
	globals   *stats.Globals
	agg       *stats.Aggregator
	log       *eventlog.Logger
	retention time.Duration
}

// NewService wires the service over its collaborators. retention is the
// delay between session close and eviction.
func NewService(store *session.MemoryStore, globals *stats.Globals, log *eventlog.Logger, retention time.Duration) *Service {
	return &Service{
		store:     store,
		globals:   globals,
		agg:       stats.NewAggregator(store, globals),
		log:       log,
		retention: retention,
	}
}

// Detection carries one detection report.
type Detection struct {
	FaceCount       int64
	ObjectCount     int64
	ConfidenceLevel string
	DetectionType   string
}

// Interaction carries one UI interaction report.
type Interaction struct {
	WidgetName string
	Action     string
	Value      string
}

// StartSession opens a new session. It has no preconditions and always
// succeeds.
func (s *Service) StartSession(meta map[string]any) *session.Session {
	now := time.Now()
	sess := s.store.Create(now)
	s.globals.SessionStarted(now)

	payload := map[string]any{"sessionId": sess.ID}
	for k, v := range meta {
		payload[k] = v
	}
	s.log.Append(eventlog.SessionStart, payload)
	return sess
}

// RecordDetection applies detection deltas to the session and the global
// counters. Negative deltas are coerced to zero before application.
func (s *Service) RecordDetection(id string, d Detection) (*session.Session, stats.Snapshot, error) {
	if id == "" {
		return nil, stats.Snapshot{}, fmt.Errorf("%w: sessionId", ErrMissingField)
	}
	if d.FaceCount < 0 {
		d.FaceCount = 0
	}
	if d.ObjectCount < 0 {
		d.ObjectCount = 0
	}

	now := time.Now()
	sess, err := s.store.RecordDetection(id, d.FaceCount, d.ObjectCount, now)
	if err != nil {
		return nil, stats.Snapshot{}, err
	}
	s.globals.DetectionsRecorded(d.FaceCount, d.ObjectCount, now)

	s.log.Append(eventlog.DetectionRecord, map[string]any{
		"sessionId":       id,
		"faceCount":       d.FaceCount,
		"objectCount":     d.ObjectCount,
		"confidenceLevel": d.ConfidenceLevel,
		"detectionType":   d.DetectionType,
	})
	return sess, s.globals.Snapshot(), nil
}

// RecordInteraction increments the session's interaction counter. A
// non-empty value on the filter-select widget joins the session's filter
// set (deduplicated, insertion order preserved).
func (s *Service) RecordInteraction(id string, in Interaction) (*session.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: sessionId", ErrMissingField)
	}

	filter := ""
	if in.WidgetName == widgetFilterSelect && in.Value != "" {
		filter = in.Value
	}

	now := time.Now()
	sess, err := s.store.RecordInteraction(id, filter, now)
	if err != nil {
		return nil, err
	}
	s.globals.InteractionRecorded(now)

	s.log.Append(eventlog.InteractionRecord, map[string]any{
		"sessionId":  id,
		"widgetName": in.WidgetName,
		"action":     in.Action,
		"value":      in.Value,
	})
	return sess, nil
}

// EndSession closes the session, schedules its eviction after the
// retention delay, and returns the final summary.
func (s *Service) EndSession(id string) (*session.Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: sessionId", ErrMissingField)
	}

	now := time.Now()
	sess, err := s.store.End(id, now)
	if err != nil {
		return nil, err
	}
	s.globals.Touch(now)

	s.log.Append(eventlog.SessionEnd, map[string]any{
		"sessionId":        sess.ID,
		"faceDetections":   sess.FaceDetections,
		"objectDetections": sess.ObjectDetections,
		"interactions":     sess.Interactions,
		"filters":          sess.Filters,
		"duration":         sess.Duration,
	})

	s.store.ScheduleEviction(id, s.retention)
	return sess, nil
}

// Overview returns the derived statistics view. Read-only, no
// preconditions.
func (s *Service) Overview() stats.Overview {
	return s.agg.Overview(time.Now())
}

// ActiveSessions returns the open sessions annotated with live durations.
func (s *Service) ActiveSessions() []stats.ActiveSession {
	return s.Overview().ActiveSessions
}
