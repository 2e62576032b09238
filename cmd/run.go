package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
	"github.com/nextlevelbuilder/tgmirror/internal/notify"
	"github.com/nextlevelbuilder/tgmirror/internal/relay"
	"github.com/nextlevelbuilder/tgmirror/internal/telegram"
	"github.com/nextlevelbuilder/tgmirror/internal/tracing"
	"github.com/nextlevelbuilder/tgmirror/internal/watermark"
)

func runRelay() {
	// Setup structured logging
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Configuration errors are fatal at startup: a relay with no valid
	// routes or no credentials must not start as a silent no-op.
	routes, err := cfg.ParseRoutes()
	if err != nil {
		slog.Error("invalid route configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("routes configured", "routes", len(routes.Routes), "legacy_mode", routes.LegacyMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	client, err := telegram.New(cfg.Telegram)
	if err != nil {
		slog.Error("failed to create telegram client", "error", err)
		os.Exit(1)
	}

	readyCtx, cancelReady := context.WithTimeout(ctx, cfg.ReadyTimeout())
	err = client.WaitUntilReady(readyCtx)
	cancelReady()
	if err != nil {
		slog.Error("telegram client not ready", "error", err)
		os.Exit(1)
	}

	opts := relay.RouterOptions{}
	if wh := notify.New(cfg.Webhook); wh != nil {
		opts.Notifier = wh
	}
	if cfg.Watermark.Enabled {
		opts.Cleaner = watermark.New(cfg.Watermark.CropBottomPx)
	}

	router := relay.NewRouter(ctx, client, cfg, routes, opts)
	router.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Start(gctx)
	})
	g.Go(func() error {
		return config.Watch(gctx, cfgPath, func(next *config.Config) {
			nextRoutes, parseErr := next.ParseRoutes()
			if parseErr != nil {
				slog.Warn("reloaded config has invalid routes, keeping previous", "error", parseErr)
				return
			}
			router.UpdateConfig(next, nextRoutes)
		})
	})
	if err := g.Wait(); err != nil {
		slog.Error("relay startup failed", "error", err)
		os.Exit(1)
	}

	slog.Info("relay running", "sources", len(routes.SourceChatIDs()))
	<-ctx.Done()

	slog.Info("shutting down")
	if err := client.Stop(context.Background()); err != nil {
		slog.Warn("client stop failed", "error", err)
	}
	router.Drain()
	slog.Info("shutdown complete", "mapped_messages", router.Mapper().Len())
}
