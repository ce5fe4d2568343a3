// Package stats maintains the process-wide telemetry counters and derives
// read-only statistics views over the session store.
package stats

import (
	"sync/atomic"
	"time"
)

// Globals holds the process-wide aggregate counters. All counters are
// monotonically non-decreasing sums of the contributions ever applied;
// they are never re-derived from the live session map, so they remain
// correct after sessions are evicted.
type Globals struct {
	serverStart time.Time

	totalSessions       atomic.Int64
	totalDetections     atomic.Int64
	totalFaceDetections atomic.Int64
	totalInteractions   atomic.Int64

	lastUpdated atomic.Int64 // unix nanoseconds
}

// NewGlobals creates the global counter set with the given server start time.
func NewGlobals(start time.Time) *Globals {
	g := &Globals{serverStart: start}
	g.lastUpdated.Store(start.UnixNano())
	return g
}

// SessionStarted records one new session.
func (g *Globals) SessionStarted(now time.Time) {
	g.totalSessions.Add(1)
	g.touch(now)
}

// DetectionsRecorded adds face and object detection deltas. Callers pass
// already-coerced non-negative deltas; totalDetections accumulates both
// so totalFaceDetections can never exceed it.
func (g *Globals) DetectionsRecorded(face, object int64, now time.Time) {
	g.totalFaceDetections.Add(face)
	g.totalDetections.Add(face + object)
	g.touch(now)
}

// InteractionRecorded records one UI interaction.
func (g *Globals) InteractionRecorded(now time.Time) {
	g.totalInteractions.Add(1)
	g.touch(now)
}

// Touch updates the last-mutation timestamp without changing counters.
func (g *Globals) Touch(now time.Time) {
	g.touch(now)
}

func (g *Globals) touch(now time.Time) {
	g.lastUpdated.Store(now.UnixNano())
}

// ServerStart returns the process start time.
func (g *Globals) ServerStart() time.Time {
	return g.serverStart
}

// Snapshot is a point-in-time copy of the global counters.
type Snapshot struct {
	TotalSessions       int64     `json:"totalSessions"`
	TotalDetections     int64     `json:"totalDetections"`
	TotalFaceDetections int64     `json:"totalFaceDetections"`
	TotalInteractions   int64     `json:"totalInteractions"`
	ServerStartTime     time.Time `json:"serverStartTime"`
	LastUpdated         time.Time `json:"lastUpdated"`
}

// Snapshot reads all counters. Individual loads are atomic; the snapshot
// as a whole is not a consistent cut, which is acceptable for monotone
// commutative counters.
func (g *Globals) Snapshot() Snapshot {
	return Snapshot{
		TotalSessions:       g.totalSessions.Load(),
		TotalDetections:     g.totalDetections.Load(),
		TotalFaceDetections: g.totalFaceDetections.Load(),
		TotalInteractions:   g.totalInteractions.Load(),
		ServerStartTime:     g.serverStart,
		LastUpdated:         time.Unix(0, g.lastUpdated.Load()),
	}
}
