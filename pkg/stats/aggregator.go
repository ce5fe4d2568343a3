package stats

import (
	"math"
	"time"

	"github.com/visiontel/telemetryd/pkg/session"
)

// ActiveSession annotates an open session with its live duration.
type ActiveSession struct {
	SessionID        string    `json:"sessionId"`
	StartTime        time.Time `json:"startTime"`
	Duration         int64     `json:"duration"` // seconds, now - startTime
	FaceDetections   int64     `json:"faceDetections"`
	ObjectDetections int64     `json:"objectDetections"`
	Interactions     int64     `json:"interactions"`
	Filters          []string  `json:"filters"`
	LastActivity     time.Time `json:"lastActivity"`
}

// Overview is the derived statistics view returned by the stats endpoint.
type Overview struct {
	Global                  Snapshot        `json:"globalStats"`
	ActiveSessions          []ActiveSession `json:"activeSessions"`
	ActiveSessionCount      int             `json:"activeSessionCount"`
	AvgDetectionsPerSession int64           `json:"avgDetectionsPerSession"`
	AvgSessionDuration      int64           `json:"avgSessionDuration"` // closed sessions, seconds
	UptimeSeconds           int64           `json:"uptimeSeconds"`
}

// Aggregator derives statistics from the session store and global
// counters. It holds no state of its own.
type Aggregator struct {
	store   *session.MemoryStore
	globals *Globals
}

// NewAggregator creates an aggregator over the given store and counters.
func NewAggregator(store *session.MemoryStore, globals *Globals) *Aggregator {
	return &Aggregator{store: store, globals: globals}
}

// Overview computes the derived statistics view at the given instant.
func (a *Aggregator) Overview(now time.Time) Overview {
	global := a.globals.Snapshot()

	open := a.store.Active()
	active := make([]ActiveSession, 0, len(open))
	for _, s := range open {
		active = append(active, ActiveSession{
			SessionID:        s.ID,
			StartTime:        s.StartTime,
			Duration:         int64(now.Sub(s.StartTime).Round(time.Second) / time.Second),
			FaceDetections:   s.FaceDetections,
			ObjectDetections: s.ObjectDetections,
			Interactions:     s.Interactions,
			Filters:          s.Filters,
			LastActivity:     s.LastActivity,
		})
	}

	closedCount, closedDuration := a.store.ClosedStats()

	return Overview{
		Global:                  global,
		ActiveSessions:          active,
		ActiveSessionCount:      len(active),
		AvgDetectionsPerSession: roundedAvg(global.TotalDetections, global.TotalSessions),
		AvgSessionDuration:      roundedAvg(closedDuration, closedCount),
		UptimeSeconds:           int64(now.Sub(a.globals.ServerStart()).Round(time.Second) / time.Second),
	}
}

// roundedAvg returns total/count rounded to the nearest integer, 0 when
// count is zero.
func roundedAvg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return int64(math.Round(float64(total) / float64(count)))
}
