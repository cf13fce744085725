package market

import (
	"sync"
	"time"
)

// Store guards a State with a RWMutex. Writers hold the lock only for the
// merge itself; decoding happens before the lock is taken.
type Store struct {
	mu    sync.RWMutex
	state State
	now   func() time.Time
}

// NewStore returns a Store with an empty state.
func NewStore() *Store {
	return &Store{state: NewState(), now: time.Now}
}

// ApplyUpdate merges p stamped with the current time.
func (s *Store) ApplyUpdate(p *Payload) Changes {
	at := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Apply(p, at)
}

// Snapshot returns a consistent copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}
