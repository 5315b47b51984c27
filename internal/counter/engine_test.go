package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aevon-lab/tally/internal/core/period"
	"github.com/aevon-lab/tally/internal/core/storage"
	"github.com/aevon-lab/tally/internal/core/storage/memory"
	"github.com/aevon-lab/tally/internal/core/tally"
	"github.com/stretchr/testify/require"
)

var (
	// Tuesday of ISO week 2025-W27 and the following Tuesday.
	week27 = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	week28 = week27.Add(7 * 24 * time.Hour)
)

func calendarPolicy() period.Policy {
	return period.CalendarWeek{Location: time.UTC, Start: period.DefaultWeekStart}
}

func newTestEngine(t *testing.T, store storage.StateStore, policy period.Policy, now time.Time) *Engine {
	t.Helper()
	e := NewEngine(store, policy)
	e.nowFn = func() time.Time { return now }
	require.NoError(t, e.Load(context.Background(), LoadOptions{}))
	return e
}

func recordN(t *testing.T, e *Engine, user string, ts time.Time, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, e.RecordEvent(context.Background(), user, ts))
	}
}

// loadErrorStore fails every Load with a fixed error.
type loadErrorStore struct {
	*memory.Store
	err error
}

func (s *loadErrorStore) Load(context.Context) (*tally.State, error) {
	return nil, s.err
}

func TestNewEngine_PanicsOnNilDeps(t *testing.T) {
	require.Panics(t, func() { NewEngine(nil, period.Ordinal{}) })
	require.Panics(t, func() { NewEngine(memory.NewStore(), nil) })
}

func TestEngine_LoadFresh(t *testing.T) {
	t.Run("calendar starts at the current week", func(t *testing.T) {
		store := memory.NewStore()
		e := newTestEngine(t, store, calendarPolicy(), week27)

		require.Equal(t, period.ID("2025-W27"), e.CurrentPeriod())
		require.Equal(t, 1, store.Saves(), "fresh state is persisted immediately")
	})

	t.Run("ordinal starts at W1", func(t *testing.T) {
		store := memory.NewStore()
		e := newTestEngine(t, store, period.Ordinal{}, week27)

		require.Equal(t, period.ID("W1"), e.CurrentPeriod())
		saved, err := store.Load(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, saved.WeekIndex)
	})
}

func TestEngine_UseBeforeLoad(t *testing.T) {
	e := NewEngine(memory.NewStore(), period.Ordinal{})

	require.ErrorIs(t, e.RecordEvent(context.Background(), "a", week27), ErrNotLoaded)
	_, err := e.Leaderboard(ScopeAllTime, "", 10)
	require.ErrorIs(t, err, ErrNotLoaded)
	require.Equal(t, Stats{UserID: "a"}, e.Stats("a"))
}

func TestEngine_LoadCorrupt(t *testing.T) {
	corrupt := fmt.Errorf("%w: unexpected end of JSON input", storage.ErrCorrupt)

	t.Run("fails fast by default", func(t *testing.T) {
		e := NewEngine(&loadErrorStore{Store: memory.NewStore(), err: corrupt}, period.Ordinal{})

		err := e.Load(context.Background(), LoadOptions{})
		require.ErrorIs(t, err, ErrStorageCorrupt)
		require.ErrorIs(t, err, storage.ErrCorrupt)
	})

	t.Run("init fresh quarantines and starts over", func(t *testing.T) {
		store := &loadErrorStore{Store: memory.NewStore(), err: corrupt}
		e := NewEngine(store, period.Ordinal{})

		quarantined := false
		err := e.Load(context.Background(), LoadOptions{
			InitFresh:  true,
			Quarantine: func() error { quarantined = true; return nil },
		})
		require.NoError(t, err)
		require.True(t, quarantined)
		require.Equal(t, period.ID("W1"), e.CurrentPeriod())
		require.Equal(t, 1, store.Saves())
	})

	t.Run("init fresh aborts when quarantine fails", func(t *testing.T) {
		store := &loadErrorStore{Store: memory.NewStore(), err: corrupt}
		e := NewEngine(store, period.Ordinal{})

		err := e.Load(context.Background(), LoadOptions{
			InitFresh:  true,
			Quarantine: func() error { return errors.New("read-only filesystem") },
		})
		require.Error(t, err)
		require.Zero(t, store.Saves())
	})

	t.Run("other load errors are returned", func(t *testing.T) {
		e := NewEngine(&loadErrorStore{Store: memory.NewStore(), err: errors.New("connection refused")}, period.Ordinal{})

		err := e.Load(context.Background(), LoadOptions{InitFresh: true})
		require.ErrorContains(t, err, "connection refused")
		require.NotErrorIs(t, err, ErrStorageCorrupt)
	})
}

func TestEngine_LoadExisting(t *testing.T) {
	tests := []struct {
		name    string
		policy  period.Policy
		state   *tally.State
		want    period.ID
		wantIdx int
		wantErr error
	}{
		{
			name:   "calendar state is kept",
			policy: calendarPolicy(),
			state:  tally.New("2025-W20", 0),
			want:   "2025-W20",
		},
		{
			name:    "ordinal state is kept",
			policy:  period.Ordinal{},
			state:   tally.New("W4", 4),
			want:    "W4",
			wantIdx: 4,
		},
		{
			name:    "legacy ordinal state without period uses week index",
			policy:  period.Ordinal{},
			state:   tally.New("", 3),
			want:    "W3",
			wantIdx: 3,
		},
		{
			name:   "legacy calendar state without period uses now",
			policy: calendarPolicy(),
			state:  tally.New("", 0),
			want:   "2025-W27",
		},
		{
			name:    "ordinal week index is filled in",
			policy:  period.Ordinal{},
			state:   tally.New("W2", 0),
			want:    "W2",
			wantIdx: 2,
		},
		{
			name:    "calendar id under ordinal policy",
			policy:  period.Ordinal{},
			state:   tally.New("2025-W27", 0),
			wantErr: ErrPolicyMismatch,
		},
		{
			name:    "ordinal id under calendar policy",
			policy:  calendarPolicy(),
			state:   tally.New("W3", 3),
			wantErr: ErrPolicyMismatch,
		},
		{
			name:    "week index disagrees with period",
			policy:  period.Ordinal{},
			state:   tally.New("W3", 5),
			wantErr: ErrPolicyMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(memory.NewStoreWith(tt.state), tt.policy)
			e.nowFn = func() time.Time { return week27 }

			err := e.Load(context.Background(), LoadOptions{})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, e.CurrentPeriod())
			require.Equal(t, tt.wantIdx, e.Snapshot().WeekIndex)
		})
	}
}

func TestEngine_LoadKeepsDriftingAllTime(t *testing.T) {
	legacy := tally.New("W1", 1)
	legacy.AllTime["a"] = 40
	legacy.Current["a"] = 2
	store := memory.NewStoreWith(legacy)

	e := newTestEngine(t, store, period.Ordinal{}, week27)

	require.Equal(t, Stats{UserID: "a", Weekly: 2, AllTime: 40, Period: "W1"}, e.Stats("a"))
	require.Zero(t, store.Saves(), "loading a current document does not rewrite it")
}

func TestEngine_ScenarioOrdinal(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, memory.NewStore(), period.Ordinal{}, week27)

	recordN(t, e, "A", week27, 3)
	recordN(t, e, "B", week27, 1)

	got, err := e.Leaderboard(ScopePeriod, "W1", 10)
	require.NoError(t, err)
	require.Equal(t, []Row{{1, "A", 3}, {2, "B", 1}}, got.Rows)
	require.Equal(t, Stats{UserID: "A", Weekly: 3, AllTime: 3, Period: "W1"}, e.Stats("A"))

	closed, err := e.ResetCurrentPeriod(ctx)
	require.NoError(t, err)
	require.Equal(t, period.ID("W1"), closed)
	require.Equal(t, period.ID("W2"), e.CurrentPeriod())

	recordN(t, e, "B", week27, 1)

	all, err := e.Leaderboard(ScopeAllTime, "", 10)
	require.NoError(t, err)
	require.Equal(t, []Row{{1, "A", 3}, {2, "B", 2}}, all.Rows)

	w1, err := e.Leaderboard(ScopePeriod, "W1", 10)
	require.NoError(t, err)
	require.Equal(t, []Row{{1, "A", 3}, {2, "B", 1}}, w1.Rows)

	w2, err := e.Leaderboard(ScopePeriod, "W2", 10)
	require.NoError(t, err)
	require.Equal(t, []Row{{1, "B", 1}}, w2.Rows)

	require.Equal(t, Stats{UserID: "A", Weekly: 0, AllTime: 3, Period: "W2"}, e.Stats("A"))
	require.Equal(t, []period.ID{"W1", "W2"}, e.Periods())
}

func TestEngine_CalendarRollover(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), calendarPolicy(), week27)

	recordN(t, e, "a", week27, 2)
	recordN(t, e, "b", week27, 1)
	recordN(t, e, "a", week28, 1)

	require.Equal(t, period.ID("2025-W28"), e.CurrentPeriod())

	st := e.Snapshot()
	require.Equal(t, tally.Counts{"a": 1}, st.Current)
	require.Equal(t, tally.Counts{"a": 3, "b": 1}, st.AllTime)
	require.Equal(t, tally.Counts{"a": 2, "b": 1}, st.History["2025-W27"])
	require.Equal(t, tally.Counts{"a": 1}, st.History["2025-W28"])
	require.Empty(t, st.Drift())
}

func TestEngine_RolloverIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	e := newTestEngine(t, store, calendarPolicy(), week27)
	recordN(t, e, "a", week27, 2)

	rolled, err := e.Tick(ctx, week28)
	require.NoError(t, err)
	require.True(t, rolled)

	saves := store.Saves()
	for i := 0; i < 3; i++ {
		rolled, err = e.Tick(ctx, week28.Add(time.Duration(i)*time.Hour))
		require.NoError(t, err)
		require.False(t, rolled)
	}
	require.Equal(t, saves, store.Saves(), "no-op ticks do not write")

	recordN(t, e, "a", week28, 1)
	st := e.Snapshot()
	require.Equal(t, tally.Counts{"a": 2}, st.History["2025-W27"])
	require.Equal(t, tally.Counts{"a": 1}, st.Current)
}

func TestEngine_SkippedWeeksLeaveNoHistory(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), calendarPolicy(), week27)
	recordN(t, e, "a", week27, 1)
	recordN(t, e, "a", week27.Add(3*7*24*time.Hour), 1)

	require.Equal(t, []period.ID{"2025-W27", "2025-W30"}, e.Periods())

	got, err := e.Leaderboard(ScopePeriod, "2025-W28", 10)
	require.NoError(t, err)
	require.Empty(t, got.Rows)
}

func TestEngine_LateEventCountsInActivePeriod(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), calendarPolicy(), week27)
	recordN(t, e, "a", week27, 1)
	recordN(t, e, "a", week28, 1)

	// Stamped in week 27 but delivered after the rollover.
	recordN(t, e, "b", week27, 1)

	st := e.Snapshot()
	require.Equal(t, period.ID("2025-W28"), st.CurrentPeriod)
	require.Equal(t, tally.Counts{"a": 1}, st.History["2025-W27"], "closed periods are never reopened")
	require.Equal(t, tally.Counts{"a": 1, "b": 1}, st.Current)
}

func TestEngine_HistoryIsImmutableAfterClose(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), period.Ordinal{}, week27)
	recordN(t, e, "a", week27, 2)
	_, err := e.ResetCurrentPeriod(context.Background())
	require.NoError(t, err)

	before := e.Snapshot().History["W1"]
	recordN(t, e, "a", week27, 5)
	require.NoError(t, e.ManualAdjust(context.Background(), "b", 7))
	_, err = e.ResetCurrentPeriod(context.Background())
	require.NoError(t, err)

	require.Equal(t, before, e.Snapshot().History["W1"])
}

func TestEngine_ManualAdjust(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, memory.NewStore(), period.Ordinal{}, week27)

	require.NoError(t, e.ManualAdjust(ctx, "a", 5))
	require.NoError(t, e.ManualAdjust(ctx, "a", 2))
	require.Equal(t, Stats{UserID: "a", Weekly: 7, AllTime: 7, Period: "W1"}, e.Stats("a"))

	for _, amount := range []int64{0, -3} {
		err := e.ManualAdjust(ctx, "a", amount)
		require.ErrorIs(t, err, ErrInvalidArgument)
	}
	require.ErrorIs(t, e.ManualAdjust(ctx, "", 1), ErrInvalidArgument)
	require.Equal(t, int64(7), e.Stats("a").AllTime, "rejected adjustments change nothing")
}

func TestEngine_ManualAdjustRollsOverFirst(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), calendarPolicy(), week27)
	recordN(t, e, "a", week27, 1)

	e.nowFn = func() time.Time { return week28 }
	require.NoError(t, e.ManualAdjust(context.Background(), "a", 4))

	st := e.Snapshot()
	require.Equal(t, period.ID("2025-W28"), st.CurrentPeriod)
	require.Equal(t, tally.Counts{"a": 4}, st.Current)
	require.Equal(t, tally.Counts{"a": 1}, st.History["2025-W27"])
}

func TestEngine_ResetCalendar(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), calendarPolicy(), week27)
	recordN(t, e, "a", week27, 3)

	closed, err := e.ResetCurrentPeriod(context.Background())
	require.NoError(t, err)
	require.Equal(t, period.ID("2025-W27"), closed)

	st := e.Snapshot()
	require.Equal(t, period.ID("2025-W27"), st.CurrentPeriod, "calendar period follows the clock")
	require.Empty(t, st.Current)
	require.Equal(t, tally.Counts{"a": 3}, st.AllTime)
	require.Equal(t, tally.Counts{"a": 3}, st.History["2025-W27"])

	recordN(t, e, "a", week27, 1)
	st = e.Snapshot()
	require.Equal(t, tally.Counts{"a": 1}, st.Current)
	require.Equal(t, tally.Counts{"a": 4}, st.History["2025-W27"])
	require.Empty(t, st.Drift())
}

func TestEngine_ResetArchivesLegacyCurrent(t *testing.T) {
	legacy := tally.New("W1", 1)
	legacy.AllTime["a"] = 9
	legacy.Current["a"] = 4
	e := newTestEngine(t, memory.NewStoreWith(legacy), period.Ordinal{}, week27)

	_, err := e.ResetCurrentPeriod(context.Background())
	require.NoError(t, err)

	st := e.Snapshot()
	require.Equal(t, tally.Counts{"a": 4}, st.History["W1"])
	require.Equal(t, int64(9), st.AllTime["a"])
	require.Equal(t, 2, st.WeekIndex)
}

func TestEngine_StorageFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	e := newTestEngine(t, store, period.Ordinal{}, week27)
	recordN(t, e, "a", week27, 2)
	before := e.Snapshot()

	store.FailSaves(errors.New("disk full"))

	require.ErrorIs(t, e.RecordEvent(ctx, "a", week27), ErrStorageFailure)
	require.ErrorIs(t, e.ManualAdjust(ctx, "b", 3), ErrStorageFailure)
	_, err := e.ResetCurrentPeriod(ctx)
	require.ErrorIs(t, err, ErrStorageFailure)

	require.Equal(t, before, e.Snapshot())

	store.FailSaves(nil)
	recordN(t, e, "a", week27, 1)
	require.Equal(t, int64(3), e.Stats("a").AllTime)

	persisted, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, e.Snapshot(), persisted)
}

func TestEngine_FailedRolloverIsRetried(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	e := newTestEngine(t, store, calendarPolicy(), week27)
	recordN(t, e, "a", week27, 1)

	store.FailSaves(errors.New("disk full"))
	require.ErrorIs(t, e.RecordEvent(ctx, "a", week28), ErrStorageFailure)
	require.Equal(t, period.ID("2025-W27"), e.CurrentPeriod())

	store.FailSaves(nil)
	recordN(t, e, "a", week28, 1)
	require.Equal(t, period.ID("2025-W28"), e.CurrentPeriod())
	require.Equal(t, tally.Counts{"a": 1}, e.Snapshot().History["2025-W27"])
}

func TestEngine_RecordEventRequiresUser(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), period.Ordinal{}, week27)
	require.ErrorIs(t, e.RecordEvent(context.Background(), "", week27), ErrInvalidArgument)
}

func TestEngine_AllTimeIsAdditive(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), calendarPolicy(), week27)

	ts := week27
	for i := 0; i < 5; i++ {
		recordN(t, e, "a", ts, i+1)
		recordN(t, e, "b", ts, 1)
		ts = ts.Add(7 * 24 * time.Hour)
	}

	st := e.Snapshot()
	require.Equal(t, tally.Counts{"a": 15, "b": 5}, st.AllTime)
	require.Equal(t, st.AllTime, st.DerivedAllTime())
}

func TestEngine_ConcurrentEvents(t *testing.T) {
	e := newTestEngine(t, memory.NewStore(), period.Ordinal{}, week27)

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			user := fmt.Sprintf("u%d", w%2)
			for i := 0; i < perWorker; i++ {
				if err := e.RecordEvent(context.Background(), user, week27); err != nil {
					t.Error(err)
				}
			}
		}(w)
	}
	wg.Wait()

	st := e.Snapshot()
	require.Equal(t, int64(workers*perWorker), st.AllTime.Total())
	require.Equal(t, st.AllTime, st.Current)
}
