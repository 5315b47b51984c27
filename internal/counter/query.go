package counter

import (
	"sort"
	"strings"

	"github.com/aevon-lab/tally/internal/core/period"
	"github.com/aevon-lab/tally/internal/core/tally"
)

// Scope selects which counter a leaderboard ranks.
type Scope string

const (
	ScopePeriod  Scope = "period"
	ScopeAllTime Scope = "all"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ParseScope accepts the canonical scope names plus the aliases chat users
// type ("week", "weekly", "alltime", "all-time"). Empty means ScopePeriod.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "period", "week", "weekly":
		return ScopePeriod, nil
	case "all", "alltime", "all-time", "all_time":
		return ScopeAllTime, nil
	default:
		return "", invalidArgumentf("unknown scope %q (must be period or all)", s)
	}
}

// Row is one ranked user. Rank is the 1-based position after tie-breaking.
type Row struct {
	Rank   int    `json:"rank" yaml:"rank"`
	UserID string `json:"user_id" yaml:"user_id"`
	Count  int64  `json:"count" yaml:"count"`
}

// Ranking is the result of a leaderboard query.
type Ranking struct {
	Scope  Scope     `json:"scope" yaml:"scope"`
	Period period.ID `json:"period,omitempty" yaml:"period,omitempty"`
	Rows   []Row     `json:"rows" yaml:"rows"`

	// FromHistory is set when the counts come from the history entry of an
	// explicitly named period. For the active week that entry still holds
	// counts cleared by a reset, so it can differ from the live ranking.
	FromHistory bool `json:"from_history,omitempty" yaml:"from_history,omitempty"`
}

// Stats holds one user's counts. Absent users read as zero.
type Stats struct {
	UserID  string    `json:"user_id" yaml:"user_id"`
	Weekly  int64     `json:"weekly" yaml:"weekly"`
	AllTime int64     `json:"all_time" yaml:"all_time"`
	Period  period.ID `json:"period" yaml:"period"`
}

// Leaderboard ranks users by count descending, then user id ascending.
//
// For ScopePeriod an empty periodID ranks the active period's current
// counters; otherwise the archived counts for periodID are ranked. A period
// with nothing recorded yields an empty ranking. Limits above MaxLimit are
// clamped.
func (e *Engine) Leaderboard(scope Scope, periodID period.ID, limit int) (Ranking, error) {
	if limit <= 0 {
		return Ranking{}, invalidArgumentf("limit must be between 1 and %d, got %d", MaxLimit, limit)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if scope == ScopeAllTime && periodID != "" {
		return Ranking{}, invalidArgumentf("period cannot be combined with the all-time scope")
	}
	periodID = period.Canonical(periodID)
	if periodID != "" && !e.policy.Valid(periodID) {
		return Ranking{}, invalidArgumentf("malformed period %q for the %s policy", periodID, e.policy.Name())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return Ranking{}, ErrNotLoaded
	}

	out := Ranking{Scope: scope}
	var source tally.Counts
	switch scope {
	case ScopeAllTime:
		source = e.state.AllTime
	case ScopePeriod:
		if periodID == "" {
			out.Period = e.state.CurrentPeriod
			source = e.state.Current
		} else {
			out.Period = periodID
			out.FromHistory = true
			source = e.state.History[periodID]
		}
	default:
		return Ranking{}, invalidArgumentf("unknown scope %q", scope)
	}

	out.Rows = rank(source, limit)
	return out, nil
}

// rank sorts counts deterministically and truncates to limit.
// Zero counts are skipped.
func rank(counts tally.Counts, limit int) []Row {
	rows := make([]Row, 0, len(counts))
	for user, n := range counts {
		if n <= 0 {
			continue
		}
		rows = append(rows, Row{UserID: user, Count: n})
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].UserID < rows[j].UserID
	})

	if len(rows) > limit {
		rows = rows[:limit]
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// Stats returns the current-period and all-time counts for userID.
func (e *Engine) Stats(userID string) Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Stats{UserID: userID}
	if e.state == nil {
		return st
	}
	st.Weekly = e.state.Current[userID]
	st.AllTime = e.state.AllTime[userID]
	st.Period = e.state.CurrentPeriod
	return st
}

// Snapshot returns a deep copy of the whole state.
func (e *Engine) Snapshot() *tally.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil
	}
	return e.state.Clone()
}

// CurrentPeriod returns the active period identifier.
func (e *Engine) CurrentPeriod() period.ID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return ""
	}
	return e.state.CurrentPeriod
}

// Periods lists every period with recorded history, oldest first.
func (e *Engine) Periods() []period.ID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return nil
	}
	ids := make([]period.ID, 0, len(e.state.History))
	for id := range e.state.History {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return e.policy.Before(ids[i], ids[j]) })
	return ids
}

// Policy returns the active period policy.
func (e *Engine) Policy() period.Policy {
	return e.policy
}
