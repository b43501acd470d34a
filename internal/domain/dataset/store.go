package dataset

import "sync"

// Store holds the current snapshot in memory. A new upload replaces the
// previous one atomically; readers always see a complete snapshot or none.
type Store struct {
	mu      sync.RWMutex
	current *Snapshot
}

func NewStore() *Store {
	return &Store{}
}

// Put replaces the current snapshot.
func (s *Store) Put(snap *Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = snap
}

// Current returns the active snapshot, or nil when nothing has been ingested.
func (s *Store) Current() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
