// Package session implements the isolation layer of the logtest
// engine: one private engine snapshot per connected client, plus the
// request processor that runs decode and match against it.
//
// A session shares the immutable compiled ruleset generation it was
// opened from and owns a private mutable overlay: its correlation
// state and, after a rule patch, a private rule tree. Nothing mutable
// is ever shared between sessions.
package session

import (
	"sync"
	"time"

	"argus/detect"
	"argus/ruleset"
)

// Session is one client's isolated engine instance.
type Session struct {
	// ID is the opaque session identifier handed to the client.
	ID string
	// CreatedAt is when the session was opened.
	CreatedAt time.Time

	// mu serializes every request on the session. Correlation state
	// and patched rules are mutated in place and must observe a total
	// order, so requests within a session never overlap.
	mu sync.Mutex

	gen        *ruleset.Generation
	corr       *detect.State
	patched    *detect.Tree // non-nil only after a rule patch
	lastActive time.Time
	closed     bool
}

// Generation returns the immutable ruleset generation this session was
// opened from.
func (s *Session) Generation() *ruleset.Generation {
	return s.gen
}

// rules returns the rule tree requests evaluate against: the shared
// generation tree, or the session-private patched tree. Caller holds
// s.mu.
func (s *Session) rules() *detect.Tree {
	if s.patched != nil {
		return s.patched
	}
	return s.gen.Rules
}

// Patched reports whether the session carries a private rule patch.
func (s *Session) Patched() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.patched != nil
}

// idleSince returns the last-activity timestamp. Caller need not hold
// s.mu; the reaper tolerates slightly stale reads.
func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}
