package command

import (
	"testing"

	"github.com/aevon-lab/tally/internal/counter"
	"github.com/sebdah/goldie/v2"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		result Result
	}{
		{
			name: "leaderboard_period",
			result: leaderboardResult("Week: 2025-W27", counter.Ranking{
				Scope:  counter.ScopePeriod,
				Period: "2025-W27",
				Rows:   []counter.Row{{Rank: 1, UserID: "111", Count: 42}, {Rank: 2, UserID: "222", Count: 17}, {Rank: 3, UserID: "333", Count: 17}},
			}),
		},
		{
			name: "leaderboard_all_time",
			result: leaderboardResult("All-Time Leaderboard", counter.Ranking{
				Scope: counter.ScopeAllTime,
				Rows:  []counter.Row{{Rank: 1, UserID: "111", Count: 1204}, {Rank: 2, UserID: "333", Count: 980}},
			}),
		},
		{
			name: "leaderboard_archived",
			result: leaderboardResult("Week: 2025-W26", counter.Ranking{
				Scope:       counter.ScopePeriod,
				Period:      "2025-W26",
				FromHistory: true,
				Rows:        []counter.Row{{Rank: 1, UserID: "222", Count: 8}},
			}),
		},
		{
			name:   "leaderboard_all_time_empty",
			result: leaderboardResult("All-Time Leaderboard", counter.Ranking{Scope: counter.ScopeAllTime}),
		},
		{
			name: "leaderboard_missing_period",
			result: leaderboardResult("Week: 2024-W01", counter.Ranking{
				Scope:  counter.ScopePeriod,
				Period: "2024-W01",
			}),
		},
		{
			name:   "stats",
			result: statsResult(counter.Stats{UserID: "111", Weekly: 42, AllTime: 1204}),
		},
		{
			name:   "ack_reset",
			result: ackResult("Weekly stats reset.", "2025-W27"),
		},
		{
			name:   "error_permission_denied",
			result: toErrorResult(ErrPermissionDenied),
		},
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.Assert(t, tt.name, []byte(Render(tt.result)))
		})
	}
}

func TestRender_MalformedResult(t *testing.T) {
	if got := Render(Result{Kind: KindStats}); got != "❌ Something went wrong." {
		t.Fatalf("unexpected render: %q", got)
	}
}
