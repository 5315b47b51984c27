package counter

import (
	"github.com/aevon-lab/tally/internal/core/period"
	"github.com/aevon-lab/tally/internal/core/tally"
)

// NeedsRollover reports whether p is a later period than the one st is
// counting. Events stamped with an earlier period never reopen the past.
func NeedsRollover(st *tally.State, p period.ID, policy period.Policy) bool {
	return p != "" && p != st.CurrentPeriod && policy.Before(st.CurrentPeriod, p)
}

// Rollover closes the active period and makes p current.
//
// History already mirrors the active period, so closing it only needs to
// archive Current when no mirror exists (documents written before history
// was kept). An empty period leaves no history entry behind.
func Rollover(st *tally.State, p period.ID) {
	archive(st)
	st.Current = tally.Counts{}
	st.CurrentPeriod = p
}

func archive(st *tally.State) {
	if _, ok := st.History[st.CurrentPeriod]; ok || len(st.Current) == 0 {
		return
	}
	st.History[st.CurrentPeriod] = st.Current.Clone()
}

// increment applies amount to all three counters for user.
func increment(st *tally.State, user string, amount int64) {
	st.AllTime[user] += amount
	st.Current[user] += amount

	counts, ok := st.History[st.CurrentPeriod]
	if !ok {
		counts = tally.Counts{}
		st.History[st.CurrentPeriod] = counts
	}
	counts[user] += amount
}
