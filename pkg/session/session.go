// Package session owns the in-memory table of telemetry sessions.
// It defines the Session record, its lifecycle (open, closed, evicted),
// and the MemoryStore that enforces the lifecycle rules.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors returned by store operations.
var (
	// ErrNotFound is returned when no session with the given ID exists
	// in the store (never created, or already evicted).
	ErrNotFound = errors.New("session not found")

	// ErrClosed is returned when a mutation targets a session that has
	// already ended. Closed sessions are read-only until eviction.
	ErrClosed = errors.New("session closed")
)

// Session represents one client run from start to end.
//
// Counters are monotonically non-decreasing while the session is open.
// Once EndTime is set the record is terminal: Duration is fixed and no
// further mutation is accepted.
type Session struct {
	// ID is the unique session identifier, immutable after creation.
	ID string `json:"sessionId"`

	// StartTime is when the session was opened, immutable.
	StartTime time.Time `json:"startTime"`

	// EndTime marks the session closed when non-nil.
	EndTime *time.Time `json:"endTime,omitempty"`

	// FaceDetections and ObjectDetections count reported detections.
	FaceDetections   int64 `json:"faceDetections"`
	ObjectDetections int64 `json:"objectDetections"`

	// Interactions counts reported UI widget interactions.
	Interactions int64 `json:"interactions"`

	// Filters holds distinct filter values in insertion order.
	Filters []string `json:"filters"`

	// LastActivity is updated on every mutation.
	LastActivity time.Time `json:"lastActivity"`

	// Duration is the session length in whole seconds, computed once
	// at close and zero while the session is open.
	Duration int64 `json:"duration"`
}

// Open reports whether the session still accepts mutations.
func (s *Session) Open() bool {
	return s.EndTime == nil
}

// TotalDetections returns the sum of face and object detections.
func (s *Session) TotalDetections() int64 {
	return s.FaceDetections + s.ObjectDetections
}

// clone returns a deep copy safe to hand to callers outside the store lock.
func (s *Session) clone() *Session {
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	c.Filters = append([]string(nil), s.Filters...)
	return &c
}

// newSessionID generates a collision-resistant identifier: a millisecond
// timestamp prefix for rough ordering plus a random UUID fragment.
// Uniqueness only needs to hold within the process lifetime.
func newSessionID(now time.Time) string {
	return fmt.Sprintf("s-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}
