// Package board is the session core shared by the web UI and the terminal
// UI: it holds the latest snapshot, derives the visible list, and gates
// writes before they reach the store.
package board

import (
	"sync/atomic"

	"github.com/amonks/issues/issue"
)

// State holds the most recent snapshot. Only the subscription consumer
// calls Replace; any goroutine may call Current or Advance.
type State struct {
	current atomic.Pointer[issue.Snapshot]
}

// Replace swaps in a new snapshot wholesale.
func (s *State) Replace(snapshot issue.Snapshot) {
	s.current.Store(&snapshot)
}

// Advance stores snapshot unless a snapshot with a higher Seq is already
// held, and reports whether it was stored. Concurrent writers never move
// the state backwards.
func (s *State) Advance(snapshot issue.Snapshot) bool {
	next := &snapshot
	for {
		held := s.current.Load()
		if held != nil && held.Seq > snapshot.Seq {
			return false
		}
		if s.current.CompareAndSwap(held, next) {
			return true
		}
	}
}

// Current returns the latest snapshot, or an empty one before the first
// push.
func (s *State) Current() issue.Snapshot {
	if snapshot := s.current.Load(); snapshot != nil {
		return *snapshot
	}
	return issue.Snapshot{}
}

// Loaded reports whether any snapshot has arrived.
func (s *State) Loaded() bool {
	return s.current.Load() != nil
}
