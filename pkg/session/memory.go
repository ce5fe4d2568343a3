package session

import (
	"slices"
	"sync"
	"time"

	"github.com/visiontel/telemetryd/pkg/metrics"
)

// MemoryStore is an in-memory session table guarded by a single mutex.
// Contention is low (one kiosk client per session), so a store-level lock
// is simpler and safe. The lock is never held across disk I/O.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string // insertion order of IDs, for stable listings

	// Cumulative close stats survive eviction so averages stay correct.
	closedCount    int64
	closedDuration int64 // seconds

	timers map[string]*time.Timer
}

// NewMemoryStore creates an empty session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		timers:   make(map[string]*time.Timer),
	}
}

// Create inserts a new open session with zeroed counters and returns a
// copy of the record.
func (s *MemoryStore) Create(now time.Time) *Session {
	sess := &Session{
		ID:           newSessionID(now),
		StartTime:    now,
		Filters:      []string{},
		LastActivity: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.order = append(s.order, sess.ID)
	s.mu.Unlock()

	metrics.SessionsStarted.Inc()
	metrics.ActiveSessions.Inc()
	return sess.clone()
}

// Get retrieves a copy of the session, or ErrNotFound.
func (s *MemoryStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.clone(), nil
}

// IsValid reports whether a session with the given ID currently exists,
// open or closed but not yet evicted.
func (s *MemoryStore) IsValid(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[id]
	return ok
}

// RecordDetection adds detection deltas to an open session. Negative
// deltas are coerced to zero so counters stay monotone. Returns a copy
// of the updated record.
func (s *MemoryStore) RecordDetection(id string, face, object int64, now time.Time) (*Session, error) {
	if face < 0 {
		face = 0
	}
	if object < 0 {
		object = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !sess.Open() {
		return nil, ErrClosed
	}

	sess.FaceDetections += face
	sess.ObjectDetections += object
	sess.LastActivity = now
	return sess.clone(), nil
}

// RecordInteraction increments the interaction counter of an open session.
// A non-empty filter value is appended to the session's filter set unless
// already present. Returns a copy of the updated record.
func (s *MemoryStore) RecordInteraction(id, filter string, now time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !sess.Open() {
		return nil, ErrClosed
	}

	sess.Interactions++
	if filter != "" && !slices.Contains(sess.Filters, filter) {
		sess.Filters = append(sess.Filters, filter)
	}
	sess.LastActivity = now
	return sess.clone(), nil
}

// End closes the session: sets EndTime, computes the whole-second
// duration, and marks the record terminal. Returns a copy of the final
// summary. Ending an already closed session returns ErrClosed.
func (s *MemoryStore) End(id string, now time.Time) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !sess.Open() {
		return nil, ErrClosed
	}

	end := now
	sess.EndTime = &end
	sess.Duration = int64(now.Sub(sess.StartTime).Round(time.Second) / time.Second)
	sess.LastActivity = now

	s.closedCount++
	s.closedDuration += sess.Duration

	metrics.ActiveSessions.Dec()
	return sess.clone(), nil
}

// ScheduleEviction arms a one-shot timer that removes the session after
// delay. Firing on an already evicted ID is a no-op. Rescheduling for the
// same ID replaces the pending timer.
func (s *MemoryStore) ScheduleEviction(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(delay, func() {
		s.evict(id)
	})
}

// evict removes the session and its timer entry under the store lock, so
// a concurrent read sees either full or absent state, never partial.
func (s *MemoryStore) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return
	}
	delete(s.sessions, id)
	delete(s.timers, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	metrics.SessionsEvicted.Inc()
}

// Active returns copies of all open sessions in creation order.
func (s *MemoryStore) Active() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Session, 0, len(s.sessions))
	for _, id := range s.order {
		if sess, ok := s.sessions[id]; ok && sess.Open() {
			result = append(result, sess.clone())
		}
	}
	return result
}

// ClosedStats returns the count and cumulative whole-second duration of
// all sessions ever closed, including evicted ones.
func (s *MemoryStore) ClosedStats() (count, totalDuration int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closedCount, s.closedDuration
}

// Len returns the number of resident sessions, open or closed.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops all pending eviction timers. Their effect (removal from an
// in-memory map) is moot at shutdown.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	return nil
}
