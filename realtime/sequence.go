package realtime

import "sync"

// sequenceTracker keeps the highest sequence id seen on a reliable
// connection. Updates below the watermark are duplicates from a replay and
// must not be delivered twice.
type sequenceTracker struct {
	mu      sync.Mutex
	value   uint64
	updated bool
}

// tryUpdate records an incoming sequence id. Returns false for a duplicate.
func (s *sequenceTracker) tryUpdate(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = true
	if id > s.value {
		s.value = id
		return true
	}
	return false
}

// tryGet returns the watermark if anything arrived since the last call. The
// periodic ack loop uses this to avoid acking an idle connection.
func (s *sequenceTracker) tryGet() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.updated {
		return 0, false
	}
	s.updated = false
	return s.value, true
}

// reset clears the watermark for a brand-new connection.
func (s *sequenceTracker) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = 0
	s.updated = false
}
