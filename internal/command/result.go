package command

import (
	"github.com/aevon-lab/tally/internal/core/period"
	"github.com/aevon-lab/tally/internal/counter"
)

// Kind tags which payload a Result carries.
type Kind string

const (
	KindLeaderboard Kind = "leaderboard"
	KindStats       Kind = "stats"
	KindAck         Kind = "ack"
	KindError       Kind = "error"
)

// ErrorKind classifies a failed command for the caller.
type ErrorKind string

const (
	ErrorPermissionDenied ErrorKind = "permission_denied"
	ErrorInvalidArgument  ErrorKind = "invalid_argument"
	ErrorUnknownCommand   ErrorKind = "unknown_command"
	ErrorStorageFailure   ErrorKind = "storage_failure"
	ErrorInternal         ErrorKind = "internal"
)

// Result is the outcome of one command. Exactly one payload is set,
// matching Kind.
type Result struct {
	Kind        Kind         `json:"kind" yaml:"kind"`
	Leaderboard *Leaderboard `json:"leaderboard,omitempty" yaml:"leaderboard,omitempty"`
	Stats       *Stats       `json:"stats,omitempty" yaml:"stats,omitempty"`
	Ack         *Ack         `json:"ack,omitempty" yaml:"ack,omitempty"`
	Error       *Error       `json:"error,omitempty" yaml:"error,omitempty"`
}

type Leaderboard struct {
	Title       string        `json:"title" yaml:"title"`
	Scope       counter.Scope `json:"scope" yaml:"scope"`
	Period      period.ID     `json:"period,omitempty" yaml:"period,omitempty"`
	FromHistory bool          `json:"from_history,omitempty" yaml:"from_history,omitempty"`
	Rows        []counter.Row `json:"rows" yaml:"rows"`
}

type Stats struct {
	UserID  string `json:"user_id" yaml:"user_id"`
	Weekly  int64  `json:"weekly" yaml:"weekly"`
	AllTime int64  `json:"all_time" yaml:"all_time"`
}

type Ack struct {
	Message string    `json:"message" yaml:"message"`
	Period  period.ID `json:"period,omitempty" yaml:"period,omitempty"`
}

type Error struct {
	Kind    ErrorKind `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
}

func leaderboardResult(title string, r counter.Ranking) Result {
	return Result{Kind: KindLeaderboard, Leaderboard: &Leaderboard{
		Title:       title,
		Scope:       r.Scope,
		Period:      r.Period,
		FromHistory: r.FromHistory,
		Rows:        r.Rows,
	}}
}

func statsResult(s counter.Stats) Result {
	return Result{Kind: KindStats, Stats: &Stats{UserID: s.UserID, Weekly: s.Weekly, AllTime: s.AllTime}}
}

func ackResult(message string, p period.ID) Result {
	return Result{Kind: KindAck, Ack: &Ack{Message: message, Period: p}}
}

func errorResult(kind ErrorKind, message string) Result {
	return Result{Kind: KindError, Error: &Error{Kind: kind, Message: message}}
}
