package cli

import (
	"fmt"
	"strconv"
	"strings"

	v1 "github.com/aevon-lab/tally/internal/api/v1"
	"github.com/aevon-lab/tally/internal/core/tally"
	"github.com/spf13/cobra"
)

type commandRequest struct {
	name   string
	scope  string
	period string
	top    int
	topSet bool
	user   string
	amount int64
}

func (r commandRequest) build() v1.CommandRequest {
	req := v1.CommandRequest{
		Command:   r.name,
		InvokerID: operatorID,
		Scope:     r.scope,
		Period:    r.period,
		UserID:    r.user,
		Amount:    r.amount,
	}
	if r.topSet {
		top := r.top
		req.Top = &top
	}
	return req
}

// runCommand opens the store, dispatches req, and closes the store.
func runCommand(cmd *cobra.Command, opts *RootOptions, req commandRequest) error {
	s, err := opts.open(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer s.Close()
	return s.run(cmd.Context(), req)
}

// NewLeaderboardCommand creates the leaderboard command.
func NewLeaderboardCommand(opts *RootOptions) *cobra.Command {
	req := commandRequest{name: v1.CommandLeaderboard}

	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the ranked message counts",
		Long: `Show the ranked message counts for the current period, an archived
period, or all time.

Examples:
  tallyctl leaderboard
  tallyctl leaderboard --scope all --top 25
  tallyctl leaderboard --period 2025-W27 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.topSet = cmd.Flags().Changed("top")
			return runCommand(cmd, opts, req)
		},
	}

	cmd.Flags().StringVarP(&req.scope, "scope", "s", "period", "period or all")
	cmd.Flags().StringVarP(&req.period, "period", "p", "", "archived period id (default: current period)")
	cmd.Flags().IntVarP(&req.top, "top", "n", 0, "how many users to show (1-100, default from config)")

	return cmd
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <user-id>",
		Short: "Show one user's weekly and all-time counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, opts, commandRequest{name: v1.CommandStats, user: args[0]})
		},
	}
}

// NewResetWeekCommand creates the resetweek command.
func NewResetWeekCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resetweek",
		Short: "Close the current period and clear the weekly counts",
		Long: `Close the current period and clear the weekly counts. All-time counts
and history are kept. Under the ordinal policy the next period begins.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, opts, commandRequest{name: v1.CommandResetWeek})
		},
	}
}

// NewAddCommand creates the add command.
func NewAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <user-id> <amount>",
		Short: "Credit messages to a user in the current period",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid amount %q: must be a positive integer", args[1]))
			}
			return runCommand(cmd, opts, commandRequest{name: v1.CommandAddMessages, user: args[0], amount: amount})
		},
	}
}

// PeriodSummary is one row of the history listing.
type PeriodSummary struct {
	Period  string `json:"period" yaml:"period"`
	Users   int    `json:"users" yaml:"users"`
	Total   int64  `json:"total" yaml:"total"`
	Current bool   `json:"current" yaml:"current"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List recorded periods with their totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			st := s.engine.Snapshot()
			summaries := make([]PeriodSummary, 0, len(st.History))
			for _, id := range s.engine.Periods() {
				counts := st.History[id]
				summaries = append(summaries, PeriodSummary{
					Period:  string(id),
					Users:   len(counts),
					Total:   counts.Total(),
					Current: id == st.CurrentPeriod,
				})
			}

			return s.out.Print(summaries, formatHistory(summaries))
		},
	}
}

func formatHistory(summaries []PeriodSummary) string {
	if len(summaries) == 0 {
		return "No periods recorded yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %6s %8s", "PERIOD", "USERS", "MESSAGES")
	for _, p := range summaries {
		marker := ""
		if p.Current {
			marker = " (current)"
		}
		fmt.Fprintf(&b, "\n%-10s %6d %8d%s", p.Period, p.Users, p.Total, marker)
	}
	return b.String()
}

// CheckReport summarizes the stored state and its consistency.
type CheckReport struct {
	Storage       string             `json:"storage" yaml:"storage"`
	Policy        string             `json:"policy" yaml:"policy"`
	CurrentPeriod string             `json:"current_period" yaml:"current_period"`
	WeekIndex     int                `json:"week_index" yaml:"week_index"`
	Users         int                `json:"users" yaml:"users"`
	Periods       int                `json:"periods" yaml:"periods"`
	Drift         []tally.DriftEntry `json:"drift" yaml:"drift"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the stored state loads and all-time counts match history",
		Long: `Verify the stored state loads under the configured period policy and
that every all-time count equals the sum of that user's history.

Documents written before history was kept will report drift; their
all-time counts are kept as stored. Exits 1 when drift is found.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer s.Close()

			st := s.engine.Snapshot()
			report := CheckReport{
				Storage:       s.cfg.Storage.Type,
				Policy:        s.engine.Policy().Name(),
				CurrentPeriod: string(st.CurrentPeriod),
				WeekIndex:     st.WeekIndex,
				Users:         len(st.AllTime),
				Periods:       len(st.History),
				Drift:         st.Drift(),
			}
			if report.Drift == nil {
				report.Drift = []tally.DriftEntry{}
			}

			if err := s.out.Print(report, formatCheck(report)); err != nil {
				return err
			}
			if len(report.Drift) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%d users have all-time counts that differ from history", len(report.Drift)))
			}
			return nil
		},
	}
}

func formatCheck(r CheckReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "storage:        %s\n", r.Storage)
	fmt.Fprintf(&b, "policy:         %s\n", r.Policy)
	fmt.Fprintf(&b, "current period: %s\n", r.CurrentPeriod)
	if r.WeekIndex > 0 {
		fmt.Fprintf(&b, "week index:     %d\n", r.WeekIndex)
	}
	fmt.Fprintf(&b, "users:          %d\n", r.Users)
	fmt.Fprintf(&b, "periods:        %d\n", r.Periods)

	if len(r.Drift) == 0 {
		b.WriteString("all-time counts match history")
		return b.String()
	}
	fmt.Fprintf(&b, "drift (%d users):", len(r.Drift))
	for _, d := range r.Drift {
		fmt.Fprintf(&b, "\n  %s stored=%d history=%d", d.UserID, d.Stored, d.Derived)
	}
	return b.String()
}
