package detect

import (
	"sort"
	"strings"
	"time"

	"argus/core"
)

// State is the per-session correlation history: ordered match
// timestamps per rule and per grouping key. One State belongs to
// exactly one session and is only touched by that session's processing
// path, so it needs no locking of its own.
//
// Entries are pruned lazily whenever a rule's history is read or
// written, never by a background timer, and pruning is monotonic: a
// timestamp dropped once can never count again.
type State struct {
	// freq holds the qualifying-event streams frequency rules count,
	// keyed by rule id and grouping key.
	freq map[freqKey][]time.Time
	// matches holds the timestamps of final rule matches, consulted by
	// if_matched_sid predicates.
	matches map[int][]time.Time
}

type freqKey struct {
	ruleID int
	group  string
}

// NewState creates an empty correlation state.
func NewState() *State {
	return &State{
		freq:    make(map[freqKey][]time.Time),
		matches: make(map[int][]time.Time),
	}
}

// Record appends a qualifying-event timestamp for a frequency rule's
// grouping key. The history for the key is capped; when full, the
// oldest entries fall off first.
func (s *State) Record(ruleID int, group string, ts time.Time) {
	key := freqKey{ruleID: ruleID, group: group}
	hist := append(s.freq[key], ts)
	if len(hist) > core.MaxCorrelationEventsPerKey {
		hist = hist[len(hist)-core.MaxCorrelationEventsPerKey:]
	}
	s.freq[key] = hist
}

// CountWithinWindow returns how many recorded qualifying events for
// (ruleID, group) fall inside [now-window, now], pruning older entries
// as a side effect.
func (s *State) CountWithinWindow(ruleID int, group string, window time.Duration, now time.Time) int {
	key := freqKey{ruleID: ruleID, group: group}
	hist := prune(s.freq[key], now.Add(-window))
	if len(hist) == 0 {
		delete(s.freq, key)
		return 0
	}
	s.freq[key] = hist
	return len(hist)
}

// RecordMatch notes that ruleID produced a final match at ts, making
// it visible to if_matched_sid predicates.
func (s *State) RecordMatch(ruleID int, ts time.Time) {
	hist := append(s.matches[ruleID], ts)
	if len(hist) > core.MaxCorrelationEventsPerKey {
		hist = hist[len(hist)-core.MaxCorrelationEventsPerKey:]
	}
	s.matches[ruleID] = hist
}

// HasMatchWithinWindow reports whether ruleID produced a match inside
// [now-window, now], pruning older entries as a side effect.
func (s *State) HasMatchWithinWindow(ruleID int, window time.Duration, now time.Time) bool {
	hist := prune(s.matches[ruleID], now.Add(-window))
	if len(hist) == 0 {
		delete(s.matches, ruleID)
		return false
	}
	s.matches[ruleID] = hist
	return true
}

// Len returns the number of live history entries, for diagnostics.
func (s *State) Len() int {
	n := 0
	for _, h := range s.freq {
		n += len(h)
	}
	for _, h := range s.matches {
		n += len(h)
	}
	return n
}

// prune drops every timestamp strictly older than cutoff. Histories
// are append-ordered, so a binary search finds the first survivor.
func prune(hist []time.Time, cutoff time.Time) []time.Time {
	idx := sort.Search(len(hist), func(i int) bool {
		return !hist[i].Before(cutoff)
	})
	return hist[idx:]
}

// GroupKey derives the correlation grouping key for an event from the
// rule's same_fields list. Absent fields contribute an empty segment,
// so events missing a grouping field still correlate with each other.
func GroupKey(ev *core.Event, fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = ev.Field(f)
	}
	return strings.Join(parts, "\x00")
}
