// Package eventlog provides a best-effort append-only event trail on disk.
//
// Events are serialized as one JSON line per entry into a file selected by
// event type and UTC date. Appends are fire-and-forget: they are queued to
// a background worker and never block or fail the primary request. Write
// failures surface only as metrics and log lines.
package eventlog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/visiontel/telemetryd/pkg/metrics"
)

// EventType names the kind of telemetry event being recorded. The type
// selects the target log file.
type EventType string

// Event types recorded by the telemetry service.
const (
	SessionStart      EventType = "SESSION_START"
	DetectionRecord   EventType = "DETECTION_RECORD"
	InteractionRecord EventType = "INTERACTION_RECORD"
	SessionEnd        EventType = "SESSION_END"
	ServerError       EventType = "SERVER_ERROR"
)

// Sentinel errors returned by file access operations.
var (
	// ErrNotFound is returned when the requested log file does not exist.
	ErrNotFound = errors.New("log file not found")

	// ErrAccessDenied is returned when a requested file name resolves
	// outside the log root.
	ErrAccessDenied = errors.New("access denied")
)

const (
	// DefaultMaxFileSize is the rotation threshold per log file.
	DefaultMaxFileSize = 10 << 20 // 10 MiB

	// DefaultQueueDepth is the append queue capacity.
	DefaultQueueDepth = 1024

	logFileExt = ".log"
)

// entry is one queued event.
type entry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"eventType"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Logger appends telemetry events to per-type-per-day files under a
// single root directory, rotating files that exceed the size threshold.
type Logger struct {
	root    string
	maxSize int64

	mu     sync.RWMutex // guards closed vs. queue close
	closed bool
	queue  chan entry
	done   chan struct{}
}

// Option configures a Logger.
type Option func(*Logger)

// WithMaxFileSize overrides the rotation threshold.
func WithMaxFileSize(n int64) Option {
	return func(l *Logger) { l.maxSize = n }
}

// WithQueueDepth overrides the append queue capacity.
func WithQueueDepth(n int) Option {
	return func(l *Logger) { l.queue = make(chan entry, n) }
}

// New creates the log root directory if needed and starts the background
// writer.
func New(root string, opts ...Option) (*Logger, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving log root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating log root: %w", err)
	}

	l := &Logger{
		root:    abs,
		maxSize: DefaultMaxFileSize,
		queue:   make(chan entry, DefaultQueueDepth),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.run()
	return l, nil
}

// Root returns the resolved log root directory.
func (l *Logger) Root() string {
	return l.root
}

// Append queues one event for writing. It never blocks: when the queue is
// full the event is dropped and counted. Appending to a closed logger is
// a silent no-op.
func (l *Logger) Append(t EventType, payload map[string]any) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return
	}
	select {
	case l.queue <- entry{Timestamp: time.Now().UTC(), EventType: t, Payload: payload}:
	default:
		metrics.EventLogDropped.Inc()
		slog.Warn("eventlog: queue full, event dropped", "event_type", string(t))
	}
}

// Close flushes queued events and stops the worker.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return nil
}

// run drains the queue until Close. Failures are counted and logged,
// never propagated: telemetry durability is best effort.
func (l *Logger) run() {
	defer close(l.done)
	for e := range l.queue {
		if err := l.write(e); err != nil {
			metrics.EventLogFailures.Inc()
			slog.Error("eventlog: write failed", "event_type", string(e.EventType), "error", err)
		} else {
			metrics.EventsLogged.WithLabelValues(strings.ToLower(string(e.EventType))).Inc()
		}
	}
}

// write rotates the target file if oversized, then appends one JSON line.
// The check-then-rotate is not atomic across processes; two concurrent
// writers on the same directory could both rotate, yielding two backups.
// That is an accepted relaxation: within this process the single worker
// goroutine serializes all writes.
func (l *Logger) write(e entry) error {
	path := filepath.Join(l.root, fileName(e.EventType, e.Timestamp))

	if info, err := os.Stat(path); err == nil && info.Size() >= l.maxSize {
		backup := rotatedName(path, time.Now().UTC())
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("rotating %s: %w", filepath.Base(path), err)
		}
		metrics.EventLogRotations.Inc()
		slog.Info("eventlog: rotated", "file", filepath.Base(path), "backup", filepath.Base(backup))
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("appending to %s: %w", filepath.Base(path), err)
	}
	return nil
}

// fileName builds the per-type-per-day file name, e.g.
// "detection_record_2026-08-30.log".
func fileName(t EventType, ts time.Time) string {
	return strings.ToLower(string(t)) + "_" + ts.UTC().Format(time.DateOnly) + logFileExt
}

// rotatedName derives the timestamped backup name for a full log file,
// e.g. "detection_record_2026-08-30.1756500000.log".
func rotatedName(path string, now time.Time) string {
	base := strings.TrimSuffix(path, logFileExt)
	return fmt.Sprintf("%s.%d%s", base, now.Unix(), logFileExt)
}
