package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/promptfactory/internal/config"
	"github.com/JonMunkholm/promptfactory/internal/core"
	"github.com/JonMunkholm/promptfactory/internal/logging"
	"github.com/JonMunkholm/promptfactory/internal/notify"
	"github.com/JonMunkholm/promptfactory/internal/store"
	"github.com/JonMunkholm/promptfactory/internal/web"
)

func main() {
	// Overload lets .env win over the inherited environment.
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"run_max_concurrent", cfg.Run.MaxConcurrent,
		"dispatch_max_workers", cfg.Dispatch.MaxWorkers,
		"rate_limit_enabled", cfg.Rate.Enabled,
		"events_enabled", cfg.Events.NATSURL != "",
	)
	slog.Debug("effective configuration", "config", cfg.String())

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	kind, _ := store.Kind(cfg.Database.URL)
	slog.Info("store ready", "backend", kind)

	var opts []core.ServiceOption
	if cfg.Events.NATSURL != "" {
		pub, err := notify.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			slog.Error("failed to connect event bus", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		opts = append(opts, core.WithObserver(pub))
		slog.Info("publishing run events", "prefix", cfg.Events.SubjectPrefix)
	}

	service := core.NewService(st, cfg, opts...)
	server := web.NewServer(service, cfg)

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	go service.StartRetentionScheduler(jobCtx, core.RetentionConfig{
		RunRetentionDays: cfg.Retention.RunRetentionDays,
		CheckInterval:    cfg.Retention.CheckInterval,
	})

	// Start returns as soon as Shutdown begins; idle closes once it is done.
	idle := make(chan struct{})
	go func() {
		defer close(idle)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := service.RunLimiterStatus(); status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := service.WaitForRuns(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			} else {
				slog.Info("all runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-idle
	slog.Info("server stopped")
}
