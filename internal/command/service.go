// Package command dispatches chat commands to the counter engine and
// renders their results.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	v1 "github.com/aevon-lab/tally/internal/api/v1"
	"github.com/aevon-lab/tally/internal/core/period"
	"github.com/aevon-lab/tally/internal/counter"
)

// ErrPermissionDenied is returned when a non-admin invokes an admin command.
var ErrPermissionDenied = errors.New("permission denied")

const msgStorageFailure = "Could not save the change, please try again."

// Engine is the subset of counter.Engine the commands use.
type Engine interface {
	Leaderboard(scope counter.Scope, periodID period.ID, limit int) (counter.Ranking, error)
	Stats(userID string) counter.Stats
	ResetCurrentPeriod(ctx context.Context) (period.ID, error)
	ManualAdjust(ctx context.Context, userID string, amount int64) error
	CurrentPeriod() period.ID
	Periods() []period.ID
}

// Options configures the command surface.
type Options struct {
	// AdminIDs may run resetweek and addmessages.
	AdminIDs []string

	// DefaultTop is the leaderboard size when the caller gives none.
	DefaultTop int

	// APIToken, when set, must be presented as a bearer token on
	// POST /v1/commands. The invoker id in the body is otherwise trusted.
	APIToken string
}

type handlerFunc func(ctx context.Context, req v1.CommandRequest) (Result, error)

type command struct {
	run   handlerFunc
	admin bool
}

type Service struct {
	engine     Engine
	admins     map[string]struct{}
	defaultTop int
	apiToken   string
	commands   map[string]command
}

func NewService(engine Engine, opts Options) *Service {
	if engine == nil {
		panic("command: engine must not be nil")
	}
	if opts.DefaultTop <= 0 || opts.DefaultTop > counter.MaxLimit {
		opts.DefaultTop = counter.DefaultLimit
	}

	s := &Service{
		engine:     engine,
		admins:     make(map[string]struct{}, len(opts.AdminIDs)),
		defaultTop: opts.DefaultTop,
		apiToken:   opts.APIToken,
	}
	for _, id := range opts.AdminIDs {
		s.admins[id] = struct{}{}
	}

	s.commands = map[string]command{
		v1.CommandLeaderboard: {run: s.leaderboard},
		v1.CommandStats:       {run: s.stats},
		v1.CommandResetWeek:   {run: s.resetWeek, admin: true},
		v1.CommandAddMessages: {run: s.addMessages, admin: true},
	}
	return s
}

// Commands lists the registered command names.
func (s *Service) Commands() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle runs one command. Failures are reported as an error Result,
// never as a Go error, so every invocation gets a reply.
func (s *Service) Handle(ctx context.Context, req v1.CommandRequest) Result {
	if err := req.Validate(); err != nil {
		return errorResult(ErrorInvalidArgument, err.Error())
	}
	return s.dispatch(ctx, req)
}

func (s *Service) dispatch(ctx context.Context, req v1.CommandRequest) Result {
	cmd, ok := s.commands[req.Command]
	if !ok {
		return errorResult(ErrorUnknownCommand, fmt.Sprintf("Unknown command %q.", req.Command))
	}

	if cmd.admin && !s.isAdmin(req.InvokerID) {
		slog.Warn("[Command] Admin command denied", "command", req.Command, "invoker_id", req.InvokerID)
		return toErrorResult(ErrPermissionDenied)
	}

	res, err := cmd.run(ctx, req)
	if err != nil {
		slog.Info("[Command] Command failed", "command", req.Command, "invoker_id", req.InvokerID, "error", err)
		return toErrorResult(err)
	}
	return res
}

func (s *Service) isAdmin(userID string) bool {
	_, ok := s.admins[userID]
	return ok
}

func (s *Service) leaderboard(_ context.Context, req v1.CommandRequest) (Result, error) {
	top := s.defaultTop
	if req.Top != nil {
		top = *req.Top
		if top < 1 || top > counter.MaxLimit {
			return Result{}, fmt.Errorf("%w: top must be between 1 and %d", counter.ErrInvalidArgument, counter.MaxLimit)
		}
	}

	scope, err := counter.ParseScope(req.Scope)
	if err != nil {
		return Result{}, err
	}

	ranking, err := s.engine.Leaderboard(scope, period.ID(req.Period), top)
	if err != nil {
		return Result{}, err
	}

	title := "All-Time Leaderboard"
	if scope == counter.ScopePeriod {
		title = fmt.Sprintf("Week: %s", ranking.Period)
	}
	return leaderboardResult(title, ranking), nil
}

func (s *Service) stats(_ context.Context, req v1.CommandRequest) (Result, error) {
	user := req.UserID
	if user == "" {
		user = req.InvokerID
	}
	return statsResult(s.engine.Stats(user)), nil
}

func (s *Service) resetWeek(ctx context.Context, req v1.CommandRequest) (Result, error) {
	closed, err := s.engine.ResetCurrentPeriod(ctx)
	if err != nil {
		return Result{}, err
	}
	slog.Info("[Command] Weekly stats reset", "invoker_id", req.InvokerID, "closed_period", closed)
	return ackResult("Weekly stats reset.", closed), nil
}

func (s *Service) addMessages(ctx context.Context, req v1.CommandRequest) (Result, error) {
	if req.UserID == "" {
		return Result{}, fmt.Errorf("%w: user_id is required", counter.ErrInvalidArgument)
	}
	if err := s.engine.ManualAdjust(ctx, req.UserID, req.Amount); err != nil {
		return Result{}, err
	}
	slog.Info("[Command] Messages added", "invoker_id", req.InvokerID, "user_id", req.UserID, "amount", req.Amount)
	return ackResult(fmt.Sprintf("Added %d messages to <@%s>.", req.Amount, req.UserID), s.engine.CurrentPeriod()), nil
}

func toErrorResult(err error) Result {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return errorResult(ErrorPermissionDenied, "You don't have permission.")
	case errors.Is(err, counter.ErrInvalidArgument):
		return errorResult(ErrorInvalidArgument, strings.TrimPrefix(err.Error(), counter.ErrInvalidArgument.Error()+": "))
	case errors.Is(err, counter.ErrStorageFailure):
		return errorResult(ErrorStorageFailure, msgStorageFailure)
	default:
		slog.Error("[Command] Unexpected command error", "error", err)
		return errorResult(ErrorInternal, "Something went wrong.")
	}
}
