// Package cli implements tallyctl, the operator's command line for the
// counter state.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/aevon-lab/tally/internal/app"
	"github.com/aevon-lab/tally/internal/command"
	"github.com/aevon-lab/tally/internal/core/config"
	"github.com/aevon-lab/tally/internal/counter"
	"github.com/spf13/cobra"
)

// operatorID is the invoker recorded for commands run from the shell.
// The operator is always an admin.
const operatorID = "tallyctl"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "text" | "json" | "yaml"
	Verbose    bool

	// loadConfig is swapped in tests.
	loadConfig func(path string) (*config.Config, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for tallyctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{loadConfig: config.Load}

	cmd := &cobra.Command{
		Use:   "tallyctl",
		Short: "Inspect and administer channel message counts",
		Long: `tallyctl reads and changes the counter state directly in the configured store.

Stop the tally service before changing state held in a jsonfile or sqlite
store; the service keeps its own copy in memory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level := slog.LevelWarn
			if opts.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "tally.yaml", "path to configuration file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewLeaderboardCommand(opts))
	cmd.AddCommand(NewStatsCommand(opts))
	cmd.AddCommand(NewResetWeekCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewCheckCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// session is an opened engine for the duration of one command.
type session struct {
	cfg    *config.Config
	engine *counter.Engine
	store  *app.Store
	out    *Printer
}

func (o *RootOptions) open(ctx context.Context, w io.Writer) (*session, error) {
	cfg, err := o.loadConfig(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	engine, store, err := app.NewEngine(ctx, cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open counter state", err)
	}

	return &session{
		cfg:    cfg,
		engine: engine,
		store:  store,
		out:    &Printer{Format: o.Format, Writer: w},
	}, nil
}

func (s *session) Close() error {
	return s.store.Close()
}

// run executes one command through the same dispatcher the service uses.
func (s *session) run(ctx context.Context, req commandRequest) error {
	svc := command.NewService(s.engine, command.Options{
		AdminIDs:   []string{operatorID},
		DefaultTop: s.cfg.Leaderboard.DefaultTop,
	})

	res := svc.Handle(ctx, req.build())
	if err := s.out.Print(res, command.Render(res)); err != nil {
		return err
	}
	if res.Kind == command.KindError {
		return NewExitError(ExitFailure, res.Error.Message)
	}
	return nil
}
