package status

import (
	"context"
	"sync"
)

// Persister reads and writes the flag.
type Persister interface {
	GetStatus(ctx context.Context) bool
	SetStatus(ctx context.Context, open bool) error
}

// Switch is the process-wide view of the flag. It is loaded once at start
// and updated optimistically: Set shows the new value at once and puts the
// previous one back when persisting fails.
type Switch struct {
	mu      sync.Mutex // serializes Set calls
	viewMu  sync.RWMutex
	open    bool
	version uint64 // bumped by every Set, guarded by viewMu
	persist Persister
}

// NewSwitch reads the persisted flag once.
func NewSwitch(ctx context.Context, p Persister) *Switch {
	return &Switch{open: p.GetStatus(ctx), persist: p}
}

// IsOpen returns the current view without touching storage.
func (s *Switch) IsOpen() bool {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.open
}

// Load refreshes the view from storage. It never fails and never waits
// for a Set in progress. A value read while a Set ran is returned but not
// kept, so it cannot replace the newer view.
func (s *Switch) Load(ctx context.Context) bool {
	s.viewMu.RLock()
	seen := s.version
	s.viewMu.RUnlock()

	open := s.persist.GetStatus(ctx)

	s.viewMu.Lock()
	if s.version == seen {
		s.open = open
	}
	s.viewMu.Unlock()

	return open
}

// Set applies open tentatively, persists it and reverts on failure.
func (s *Switch) Set(ctx context.Context, open bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.viewMu.Lock()
	prev := s.open
	s.open = open
	s.version++
	s.viewMu.Unlock()

	if err := s.persist.SetStatus(ctx, open); err != nil {
		s.viewMu.Lock()
		s.open = prev
		s.version++
		s.viewMu.Unlock()
		return err
	}

	return nil
}
