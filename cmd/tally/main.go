package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "time/tzdata"

	"github.com/aevon-lab/tally/internal/app"
	"github.com/aevon-lab/tally/internal/command"
	corecfg "github.com/aevon-lab/tally/internal/core/config"
	"github.com/aevon-lab/tally/internal/counter"
	"github.com/aevon-lab/tally/internal/ingestion"
	"github.com/aevon-lab/tally/internal/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "tally.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Bootstrap logger until config is read
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log))
	slog.Info("Loaded config",
		"storage", cfg.Storage.Type,
		"policy", cfg.Period.Policy,
		"timezone", cfg.Period.Timezone,
		"week_start", cfg.Period.WeekStart,
		"channel_id", cfg.Tracking.ChannelID,
		"admins", len(cfg.Tracking.AdminIDs))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 2. Open storage and load counter state
	engine, store, err := app.NewEngine(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize counter state", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 3. Initialize Ingestion and Commands
	ingestionSvc := ingestion.NewService(engine, ingestion.Options{
		ChannelID:     cfg.Tracking.ChannelID,
		IgnoreBots:    cfg.Tracking.IgnoreBots,
		MaxBodySizeMB: cfg.Server.MaxBodySizeMB,
		MaxClockSkew:  cfg.Tracking.ClockSkew(),
	})
	commandSvc := command.NewService(engine, command.Options{
		AdminIDs:   cfg.Tracking.AdminIDs,
		DefaultTop: cfg.Leaderboard.DefaultTop,
		APIToken:   cfg.Server.APIToken,
	})

	// 4. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), store, cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	commandSvc.RegisterRoutes(srv.Engine)

	// 5. Start Services
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Rollover.SweepEnabled {
		sweeper := counter.NewSweeper(cfg.Rollover.Interval(), engine)
		g.Go(func() error { return sweeper.Start(gctx) })
	} else {
		slog.Info("Rollover sweeper disabled by config; periods roll over on the next event")
	}

	// HTTP server blocks until ctx is cancelled.
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
		store.Close()
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}

func newLogger(cfg corecfg.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
