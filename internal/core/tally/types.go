// Package tally defines the single persisted aggregate of per-user counters.
package tally

import (
	"sort"

	"github.com/aevon-lab/tally/internal/core/period"
)

// Counts maps a user identifier to a non-negative event count.
type Counts map[string]int64

// Clone returns an independent copy. A nil receiver yields an empty map.
func (c Counts) Clone() Counts {
	out := make(Counts, len(c))
	for user, n := range c {
		out[user] = n
	}
	return out
}

// Total returns the sum of all counts.
func (c Counts) Total() int64 {
	var total int64
	for _, n := range c {
		total += n
	}
	return total
}

// State is the whole counter document for one deployment.
//
// History always holds an entry mirroring the active period, so
// AllTime[u] equals the sum of History[p][u] over every period p.
// Current is what the weekly leaderboard and stats read; an administrative
// reset clears it without touching History.
type State struct {
	AllTime       Counts
	Current       Counts
	History       map[period.ID]Counts
	CurrentPeriod period.ID

	// WeekIndex is the ordinal of the active period under the ordinal policy.
	// Zero under the calendar policy.
	WeekIndex int
}

// New returns an empty state positioned at the given period.
func New(current period.ID, weekIndex int) *State {
	return &State{
		AllTime:       Counts{},
		Current:       Counts{},
		History:       map[period.ID]Counts{},
		CurrentPeriod: current,
		WeekIndex:     weekIndex,
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	history := make(map[period.ID]Counts, len(s.History))
	for id, counts := range s.History {
		history[id] = counts.Clone()
	}
	return &State{
		AllTime:       s.AllTime.Clone(),
		Current:       s.Current.Clone(),
		History:       history,
		CurrentPeriod: s.CurrentPeriod,
		WeekIndex:     s.WeekIndex,
	}
}

// Normalize replaces nil maps with empty ones.
func (s *State) Normalize() {
	if s.AllTime == nil {
		s.AllTime = Counts{}
	}
	if s.Current == nil {
		s.Current = Counts{}
	}
	if s.History == nil {
		s.History = map[period.ID]Counts{}
	}
	for id, counts := range s.History {
		if counts == nil {
			s.History[id] = Counts{}
		}
	}
}

// DerivedAllTime recomputes all-time totals from History.
func (s *State) DerivedAllTime() Counts {
	out := Counts{}
	for _, counts := range s.History {
		for user, n := range counts {
			out[user] += n
		}
	}
	return out
}

// DriftEntry describes a user whose stored all-time count disagrees with History.
type DriftEntry struct {
	UserID  string `json:"user_id" yaml:"user_id"`
	Stored  int64  `json:"stored" yaml:"stored"`
	Derived int64  `json:"derived" yaml:"derived"`
}

// Drift lists users whose stored all-time count differs from the derived
// total, ordered by user id. Legacy documents written before history was
// kept will usually drift.
func (s *State) Drift() []DriftEntry {
	derived := s.DerivedAllTime()

	users := make(map[string]struct{}, len(derived)+len(s.AllTime))
	for user := range derived {
		users[user] = struct{}{}
	}
	for user := range s.AllTime {
		users[user] = struct{}{}
	}

	var out []DriftEntry
	for user := range users {
		if s.AllTime[user] != derived[user] {
			out = append(out, DriftEntry{UserID: user, Stored: s.AllTime[user], Derived: derived[user]})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
