// Package counter owns the counter state: it records tracked events,
// closes periods, and answers leaderboard and stats queries.
package counter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aevon-lab/tally/internal/core/period"
	"github.com/aevon-lab/tally/internal/core/storage"
	"github.com/aevon-lab/tally/internal/core/tally"
)

// Engine serializes every read and write of the counter state behind one
// mutex. Each mutation is applied to a copy, persisted, and only then made
// visible, so a failed save leaves memory and disk in agreement.
type Engine struct {
	mu     sync.Mutex
	store  storage.StateStore
	policy period.Policy
	state  *tally.State
	nowFn  func() time.Time
}

// LoadOptions controls startup behavior.
type LoadOptions struct {
	// InitFresh replaces a corrupt document with an empty state instead of
	// failing. Quarantine, if set, runs first so the old document survives.
	InitFresh  bool
	Quarantine func() error
}

// NewEngine creates an engine. Call Load before use.
func NewEngine(store storage.StateStore, policy period.Policy) *Engine {
	if store == nil {
		panic("counter: store must not be nil")
	}
	if policy == nil {
		panic("counter: policy must not be nil")
	}
	return &Engine{
		store:  store,
		policy: policy,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Load reads the persisted state, creating it when absent.
func (e *Engine) Load(ctx context.Context, opts LoadOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, err := e.store.Load(ctx)
	switch {
	case err == nil:
		return e.adopt(ctx, st)

	case errors.Is(err, storage.ErrNotFound):
		slog.Info("[Counter] No saved state, starting fresh", "policy", e.policy.Name())
		return e.startFresh(ctx)

	case errors.Is(err, storage.ErrCorrupt):
		if !opts.InitFresh {
			return fmt.Errorf("%w: %w", ErrStorageCorrupt, err)
		}
		slog.Warn("[Counter] Stored state is corrupt, initializing fresh state (init_fresh override)", "error", err)
		if opts.Quarantine != nil {
			if qerr := opts.Quarantine(); qerr != nil {
				return fmt.Errorf("failed to preserve corrupt state: %w", qerr)
			}
		}
		return e.startFresh(ctx)

	default:
		return fmt.Errorf("failed to load state: %w", err)
	}
}

func (e *Engine) startFresh(ctx context.Context) error {
	var st *tally.State
	if p, ok := e.policy.Key(e.nowFn()); ok {
		st = tally.New(p, 0)
	} else {
		st = tally.New(period.OrdinalID(1), 1)
	}

	if err := e.store.Save(ctx, st); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	e.state = st
	return nil
}

// adopt validates a loaded state against the active policy, upgrading
// legacy documents that carry no current period.
func (e *Engine) adopt(ctx context.Context, st *tally.State) error {
	st.Normalize()
	upgraded := false

	if st.CurrentPeriod == "" {
		if p, ok := e.policy.Key(e.nowFn()); ok {
			st.CurrentPeriod = p
		} else {
			if st.WeekIndex < 1 {
				st.WeekIndex = 1
			}
			st.CurrentPeriod = period.OrdinalID(st.WeekIndex)
		}
		upgraded = true
		slog.Info("[Counter] Legacy state without current period, positioning at", "period", st.CurrentPeriod)
	}

	if !e.policy.Valid(st.CurrentPeriod) {
		return fmt.Errorf("%w: %q under policy %s", ErrPolicyMismatch, st.CurrentPeriod, e.policy.Name())
	}

	if _, timed := e.policy.Key(e.nowFn()); !timed {
		n, _ := period.ParseOrdinal(st.CurrentPeriod)
		switch st.WeekIndex {
		case n:
		case 0:
			st.WeekIndex = n
			upgraded = true
		default:
			return fmt.Errorf("%w: weekIndex %d disagrees with period %q", ErrPolicyMismatch, st.WeekIndex, st.CurrentPeriod)
		}
	}

	if drift := st.Drift(); len(drift) > 0 {
		slog.Warn("[Counter] Stored all-time counts disagree with history; keeping stored values",
			"users", len(drift))
	}

	if upgraded {
		if err := e.store.Save(ctx, st); err != nil {
			return fmt.Errorf("%w: %w", ErrStorageFailure, err)
		}
	}

	e.state = st
	slog.Info("[Counter] State loaded",
		"policy", e.policy.Name(),
		"current_period", st.CurrentPeriod,
		"users", len(st.AllTime),
		"periods", len(st.History))
	return nil
}

// RecordEvent counts one tracked event by userID at ts.
// Crossing into a later period closes the active one first.
func (e *Engine) RecordEvent(ctx context.Context, userID string, ts time.Time) error {
	if userID == "" {
		return invalidArgumentf("user id is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.mutate(ctx, func(st *tally.State) {
		e.advance(st, ts)
		increment(st, userID, 1)
	})
}

// ManualAdjust credits amount events to userID in the active period.
func (e *Engine) ManualAdjust(ctx context.Context, userID string, amount int64) error {
	if userID == "" {
		return invalidArgumentf("user id is required")
	}
	if amount <= 0 {
		return invalidArgumentf("amount must be a positive integer, got %d", amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.mutate(ctx, func(st *tally.State) {
		e.advance(st, e.nowFn())
		increment(st, userID, amount)
	})
}

// ResetCurrentPeriod clears the current counters and returns the period
// that was closed. All-time counts and history are kept. Under the ordinal
// policy the week index moves on to the next period.
func (e *Engine) ResetCurrentPeriod(ctx context.Context) (period.ID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var closed period.ID
	err := e.mutate(ctx, func(st *tally.State) {
		now := e.nowFn()
		e.advance(st, now)

		closed = st.CurrentPeriod
		archive(st)
		st.Current = tally.Counts{}

		if _, timed := e.policy.Key(now); !timed {
			st.WeekIndex++
			st.CurrentPeriod = period.OrdinalID(st.WeekIndex)
		}
	})
	if err != nil {
		return "", err
	}

	slog.Info("[Counter] Current period reset", "closed", closed, "current", e.state.CurrentPeriod)
	return closed, nil
}

// Tick performs the period boundary check without counting anything.
// It writes only when a rollover is due, so repeated ticks are harmless.
func (e *Engine) Tick(ctx context.Context, now time.Time) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == nil {
		return false, ErrNotLoaded
	}
	p, ok := e.policy.Key(now)
	if !ok || !NeedsRollover(e.state, p, e.policy) {
		return false, nil
	}

	if err := e.mutate(ctx, func(st *tally.State) { e.advance(st, now) }); err != nil {
		return false, err
	}
	return true, nil
}

// advance rolls st over when ts belongs to a later period.
func (e *Engine) advance(st *tally.State, ts time.Time) {
	p, ok := e.policy.Key(ts)
	if !ok {
		return
	}
	if NeedsRollover(st, p, e.policy) {
		slog.Info("[Counter] Period rollover", "from", st.CurrentPeriod, "to", p)
		Rollover(st, p)
		return
	}
	if p != st.CurrentPeriod {
		slog.Debug("[Counter] Late event counted in active period", "event_period", p, "current_period", st.CurrentPeriod)
	}
}

// mutate applies fn to a copy of the state, persists it, then publishes it.
// Caller must hold e.mu.
func (e *Engine) mutate(ctx context.Context, fn func(st *tally.State)) error {
	if e.state == nil {
		return ErrNotLoaded
	}

	next := e.state.Clone()
	fn(next)

	if err := e.store.Save(ctx, next); err != nil {
		slog.Error("[Counter] Failed to persist state; change discarded", "error", err)
		return fmt.Errorf("%w: %w", ErrStorageFailure, err)
	}
	e.state = next
	return nil
}
