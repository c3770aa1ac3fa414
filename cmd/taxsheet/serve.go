package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eargollo/taxsheet/internal/api"
	"github.com/eargollo/taxsheet/internal/channel"
	"github.com/eargollo/taxsheet/internal/config"
	"github.com/eargollo/taxsheet/internal/db"
	"github.com/eargollo/taxsheet/internal/engine"
	"github.com/eargollo/taxsheet/internal/picker"
	"github.com/eargollo/taxsheet/internal/scheduler"
	"github.com/eargollo/taxsheet/internal/sheet"
	"github.com/eargollo/taxsheet/web"
)

// purgeSchedule runs history retention once a night.
const purgeSchedule = "0 3 * * *"

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server, event channel and scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context(), ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http_addr)")
	return cmd
}

func serve(parent context.Context, cc *commandContext, cfg *config.Config) error {
	slog.Info("taxsheet starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"db_path", cfg.DBPath,
		"extension", cfg.Extension)

	// ── Database ───────────────────────────────────────────────────────────
	st, database, err := cc.openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	lock, err := db.Lock(cfg.DBPath)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	// Runs left 'running' by a previous process can never finish.
	if err := st.MarkStaleRunsFailed(parent); err != nil {
		slog.Warn("mark stale runs", "error", err)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Engine and event channel ───────────────────────────────────────────
	hub := channel.NewHub(channel.DefaultBuffer)
	ctl := engine.NewController(hub, engine.Options{
		Extension:   cfg.Extension,
		Extractor:   sheet.ExtractorFor(cfg.Extension, cfg.Columns),
		Store:       st,
		LogCapacity: cfg.LogCapacity,
	})

	var pk picker.Picker = picker.Static{Source: cfg.SourceDir, Destination: cfg.DestinationDir}
	if len(cfg.PickerCommand) > 0 {
		pk = picker.Command{Argv: cfg.PickerCommand}
	}
	router := channel.NewRouter(ctx, ctl, pk)

	// ── Scheduler ──────────────────────────────────────────────────────────
	sched := scheduler.New()
	if cfg.Schedule != "" {
		if err := sched.SetJob(cfg.Schedule, scheduler.RunJob(ctx, ctl, cfg.SourceDir, cfg.DestinationDir)); err != nil {
			slog.Warn("invalid cron expression", "expr", cfg.Schedule, "error", err)
		}
	}
	if cfg.RetentionDays > 0 {
		if err := sched.AddJob(purgeSchedule, scheduler.PurgeJob(ctx, st, cfg.RetentionDays, time.Now)); err != nil {
			slog.Warn("failed to register purge job", "error", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// ── HTTP server ────────────────────────────────────────────────────────
	srv := api.New(cfg.HTTPAddr, api.Deps{
		Cfg:      cfg,
		Ctl:      ctl,
		Hub:      hub,
		Router:   router,
		Store:    st,
		Sched:    sched,
		Version:  version,
		RunBase:  ctx,
		StaticFS: web.Static(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		// A signal also cancels the active run; let it record its outcome.
		ctl.Wait()
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("taxsheet stopped")
	return nil
}
