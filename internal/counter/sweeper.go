package counter

import (
	"context"
	"log/slog"
	"time"
)

// BoundaryChecker is the part of Engine the sweeper drives.
type BoundaryChecker interface {
	Tick(ctx context.Context, now time.Time) (bool, error)
}

// Sweeper runs the period boundary check on an interval so the current
// counters flip at the boundary even when no events arrive. Rollover stays
// lazy without it; the sweeper only makes it prompt.
type Sweeper struct {
	interval time.Duration
	checker  BoundaryChecker
	nowFn    func() time.Time
}

// NewSweeper creates a sweeper that checks every interval.
func NewSweeper(interval time.Duration, checker BoundaryChecker) *Sweeper {
	if checker == nil {
		panic("counter: boundary checker must not be nil")
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		interval: interval,
		checker:  checker,
		nowFn:    time.Now,
	}
}

// Start checks once immediately, then on every tick.
// Runs until context is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Sweeper] Starting period boundary sweeper", "interval", s.interval)

	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			slog.Info("[Sweeper] Stopping (context cancelled)")
			return nil
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	rolled, err := s.checker.Tick(ctx, s.nowFn())
	if err != nil {
		// Next tick retries; the boundary check is idempotent.
		slog.Error("[Sweeper] Boundary check failed", "error", err)
		return
	}
	if rolled {
		slog.Info("[Sweeper] Period closed by boundary sweep")
	}
}
