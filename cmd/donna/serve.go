package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/donnabot/donna/internal/agent"
	"github.com/donnabot/donna/internal/capture"
	"github.com/donnabot/donna/internal/channels"
	"github.com/donnabot/donna/internal/channels/discord"
	"github.com/donnabot/donna/internal/channels/whatsapp"
	"github.com/donnabot/donna/internal/commands"
	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/dispatch"
	"github.com/donnabot/donna/internal/envelope"
	"github.com/donnabot/donna/internal/memory"
	"github.com/donnabot/donna/internal/observability"
	"github.com/donnabot/donna/internal/pipeline"
	"github.com/donnabot/donna/internal/reminders"
	"github.com/donnabot/donna/internal/schedule"
	"github.com/donnabot/donna/internal/skills"
)

const capturePruneEvery = 6 * time.Hour

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "donna",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	defer func() { _ = shutdownTracer(context.Background()) }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := schedule.OpenDB(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	execStore, err := schedule.NewSQLiteExecutionStore(db)
	if err != nil {
		return err
	}
	remStore, err := reminders.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	var captures capture.Recorder = capture.Nop{}
	if cfg.Capture.Enabled {
		captureStore, err := capture.NewStore(db, cfg.Capture.RetentionDays)
		if err != nil {
			return err
		}
		captures = captureStore
		go pruneCaptures(ctx, captureStore, logger)
	}

	skillReg := skills.NewRegistry(cfg.Skills.Dir, logger)
	if err := skillReg.Load(ctx); err != nil {
		logger.Warn(ctx, "skills not loaded", "dir", cfg.Skills.Dir, "error", err)
	}
	if cfg.Skills.Watch {
		if err := skillReg.StartWatching(ctx); err != nil {
			logger.Warn(ctx, "skills watcher unavailable", "error", err)
		}
	}
	defer skillReg.Close()

	builderOpts := []envelope.Option{
		envelope.WithIdentityFile(cfg.Identity.Path),
		envelope.WithKnowledgeFile(cfg.Knowledge.Path),
	}
	var memClient *memory.Client
	if cfg.Memory.BaseURL != "" {
		memClient = memory.NewClient(cfg.Memory)
		builderOpts = append(builderOpts, envelope.WithMemory(memClient, cfg.Memory.Timeout.Std()))
	}
	builder := envelope.NewBuilder(logger, builderOpts...)

	adapter, err := discord.NewAdapter(discord.Config{Token: cfg.Discord.BotToken}, logger)
	if err != nil {
		return err
	}
	sender := channels.NewRetryingSender(adapter, logger, metrics,
		channels.WithOperatorChannel(cfg.Discord.OperatorChannel))

	var mirror channels.Sender
	if cfg.WhatsApp.Enabled {
		wa := whatsapp.NewAdapter(cfg.WhatsApp, logger)
		if err := wa.Start(ctx); err != nil {
			logger.Warn(ctx, "whatsapp mirror unavailable", "error", err)
		} else {
			mirror = channels.NewRetryingSender(wa, logger, metrics)
			defer wa.Stop(context.Background())
		}
	}

	cmdReg := commands.NewRegistry(logger)

	d, err := dispatch.New(dispatch.Config{
		Logger:     logger,
		Metrics:    metrics,
		Tracer:     tracer,
		Builder:    builder,
		Invoker:    agent.New(cfg.Agent, logger, metrics),
		Pipeline:   pipeline.New(),
		Sender:     sender,
		Typer:      adapter,
		Mirror:     mirror,
		Skills:     skillReg,
		Commands:   cmdReg,
		Memory:     memClient,
		Captures:   captures,
		Aliases:    channels.NewAliases(cfg.Channels.Aliases),
		BufferSize: cfg.Channels.BufferSize,
	})
	if err != nil {
		return err
	}

	quiet, err := schedule.NewQuietHours(cfg.QuietHours)
	if err != nil {
		return err
	}
	sched := schedule.New(d, execStore, quiet, logger, metrics)

	reload := func(ctx context.Context) (int, []string, error) {
		if err := skillReg.Load(ctx); err != nil {
			logger.Warn(ctx, "skills reload failed", "error", err)
		}
		data, err := os.ReadFile(cfg.Schedule.Path)
		if err != nil {
			return 0, nil, fmt.Errorf("read schedule: %w", err)
		}
		jobs, rowErrs := sched.Reload(ctx, data)
		msgs := make([]string, 0, len(rowErrs))
		for _, re := range rowErrs {
			msgs = append(msgs, re.Error())
		}
		return jobs, msgs, nil
	}
	if _, _, err := reload(ctx); err != nil {
		logger.Warn(ctx, "initial schedule load failed", "error", err)
	}
	sched.Start(ctx)
	defer sched.Stop()

	if cfg.Schedule.Watch {
		go watchFile(ctx, cfg.Schedule.Path, logger, func() {
			if _, _, err := reload(ctx); err != nil {
				logger.Warn(ctx, "schedule reload failed", "error", err)
			}
		})
	}

	loc, err := time.LoadLocation(cfg.QuietHours.Timezone)
	if err != nil {
		loc = time.UTC
	}
	started := time.Now()
	err = commands.RegisterBuiltins(cmdReg, commands.Deps{
		ReloadSchedule: reload,
		Status: func(ctx context.Context) commands.Status {
			return commands.Status{
				Version:          version,
				Uptime:           time.Since(started),
				ActiveChannels:   d.ActiveChannels(),
				JobsLoaded:       len(sched.Jobs()),
				SkillsLoaded:     len(skillReg.List()),
				PendingReminders: countPending(ctx, db),
			}
		},
		Skills:    skillReg,
		Reminders: remStore,
		Location:  loc,
	})
	if err != nil {
		return err
	}

	remDispatcher := reminders.NewDispatcher(remStore, reminders.DelivererFunc(d.DeliverReminder),
		logger, metrics,
		reminders.WithPollInterval(cfg.Reminders.PollInterval.Std()),
		reminders.WithMaxAttempts(cfg.Reminders.MaxAttempts))
	remDispatcher.Start(ctx)
	defer remDispatcher.Stop()

	if cfg.Metrics.Addr != "" {
		go func() {
			if err := observability.ServeMetrics(ctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error(ctx, "metrics listener failed", "error", err)
			}
		}()
	}

	if err := adapter.Start(ctx); err != nil {
		return err
	}
	defer adapter.Stop(context.Background())
	logger.Info(ctx, "donna serving", "version", version)

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "shutting down, draining in-flight requests")
			d.Wait()
			return nil
		case in, ok := <-adapter.Inbound():
			if !ok {
				d.Wait()
				return nil
			}
			d.HandleInbound(ctx, in)
		}
	}
}

// watchFile re-runs fn when path changes, debounced. The parent directory
// is watched because editors typically replace the file.
func watchFile(ctx context.Context, path string, logger *observability.Logger, fn func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn(ctx, "schedule watcher unavailable", "error", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		logger.Warn(ctx, "schedule watcher unavailable", "error", err)
		return
	}
	base := filepath.Base(path)

	var timer *time.Timer
	const debounce = 250 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, fn)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn(ctx, "schedule watcher error", "error", err)
		}
	}
}

func pruneCaptures(ctx context.Context, store *capture.Store, logger *observability.Logger) {
	ticker := time.NewTicker(capturePruneEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := store.Prune(ctx); err != nil {
				logger.Warn(ctx, "capture prune failed", "error", err)
			} else if n > 0 {
				logger.Info(ctx, "captures pruned", "rows", n)
			}
		}
	}
}

func countPending(ctx context.Context, db *sql.DB) int {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminders WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		return 0
	}
	return n
}
