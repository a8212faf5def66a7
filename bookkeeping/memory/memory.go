// Package memory is an in-memory bookkeeping.Store used by tests and by
// the cmd/svnloader demonstration wiring.
package memory

import (
	"context"
	"sync"

	"github.com/archivefeed/svnloader/bookkeeping"
)

// Store keeps one VisitState per origin in memory.
type Store struct {
	mu     sync.Mutex
	states map[string]bookkeeping.VisitState
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{states: make(map[string]bookkeeping.VisitState)}
}

func (s *Store) Get(_ context.Context, origin string) (bookkeeping.VisitState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[origin]
	return state, ok, nil
}

func (s *Store) Put(_ context.Context, origin string, state bookkeeping.VisitState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[origin] = state
	return nil
}
