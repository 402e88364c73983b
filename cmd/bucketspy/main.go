package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/api"
	"github.com/dgnsrekt/bucketspy/internal/browser"
	"github.com/dgnsrekt/bucketspy/internal/capture"
	"github.com/dgnsrekt/bucketspy/internal/cdp"
	"github.com/dgnsrekt/bucketspy/internal/config"
	"github.com/dgnsrekt/bucketspy/internal/control"
	"github.com/dgnsrekt/bucketspy/internal/netutil"
	"github.com/dgnsrekt/bucketspy/internal/notify"
	"github.com/dgnsrekt/bucketspy/internal/relay"
	"github.com/dgnsrekt/bucketspy/internal/settings"
	"github.com/dgnsrekt/bucketspy/internal/storage"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}

	slog.Info("Starting BucketSpy")
	slog.Info("Configuration loaded",
		"cdp_address", cfg.CDPAddress,
		"cdp_port", cfg.CDPPort,
		"bind_addr", cfg.BindAddr,
		"max_requests", cfg.MaxRequests,
		"settings_db", cfg.SettingsDB,
		"journal_dir", cfg.JournalDir,
		"focus_poll", cfg.FocusPollInterval,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := settings.OpenSQLite(cfg.SettingsDB)
	if err != nil {
		slog.Error("Failed to open settings store", "path", cfg.SettingsDB, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("Settings store close failed", "error", err)
		}
	}()
	if cfg.SeedSettings {
		if err := store.Seed(ctx, cfg.SettingsDefaults); err != nil {
			slog.Warn("Failed to seed settings", "error", err)
		}
	}

	broker := relay.NewBroker(relay.FeedBadge)
	publisher := relay.NewPublisher(broker)

	observers := []capture.Observer{publisher}
	if cfg.JournalDir != "" {
		journal := storage.NewJournal(cfg.JournalDir, cfg.JournalBufferSize, cfg.JournalMaxFileMB)
		defer func() {
			if err := journal.Close(); err != nil {
				slog.Warn("Journal close failed", "error", err)
			}
		}()
		observers = append(observers, journal)
	}
	if cfg.NotifyURL != "" {
		notifier := notify.NewBucketNotifier(cfg.NotifyURL, &http.Client{Timeout: 10 * time.Second})
		defer notifier.Close()
		observers = append(observers, notifier)
	}

	if cfg.LaunchBrowser {
		launcher := browser.NewLauncher(browser.Config{
			CDPAddress: cfg.CDPAddress,
			CDPPort:    cfg.CDPPort,
			ProfileDir: cfg.BrowserProfileDir,
			Headless:   cfg.BrowserHeadless,
		})
		if err := launcher.Launch(ctx); err != nil {
			slog.Error("Failed to launch browser", "error", err)
			os.Exit(1)
		}
		defer launcher.Stop()
	}

	cdpClient := cdp.NewClient(cfg, nil, cdp.NewTabRegistry())

	engine := capture.NewEngine(capture.Options{
		Capacity:     cfg.MaxRequests,
		QueueSize:    cfg.QueueSize,
		BadgeColor:   cfg.BadgeColor,
		BadgeTimeout: cfg.EvalTimeout(),
	}, store, cdpClient, publisher, observers...)
	cdpClient.SetSink(engine)

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := engine.Run(ctx); err != nil {
			slog.Error("Capture engine stopped", "error", err)
		}
	}()

	go forwardSettingChanges(ctx, store, engine)

	if err := cdpClient.Connect(ctx); err != nil {
		slog.Error("Failed to connect to browser", "error", err)
		slog.Info("Make sure Chromium is running with remote debugging enabled, or set BUCKETSPY_LAUNCH_BROWSER=true")
		os.Exit(1)
	}
	defer func() {
		if err := cdpClient.Close(); err != nil {
			slog.Warn("CDP close failed", "error", err)
		}
	}()

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("Failed to bind HTTP API", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()

	h := api.NewServer(control.NewDispatcher(engine, store), engine, broker)
	srv := &http.Server{Addr: bindAddr, Handler: h, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("BucketSpy listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("BucketSpy running", "tabs", cdpClient.GetTabCount())
	slog.Info("Press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("Shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	// Streams stay open until their subscription ends, so close the broker first.
	broker.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	cancel()
	<-engineDone
	slog.Info("BucketSpy stopped", "stats", engine.Stats())
}

// forwardSettingChanges feeds settings store notifications into the engine.
func forwardSettingChanges(ctx context.Context, store settings.Store, engine *capture.Engine) {
	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			slog.Info("Setting changed", "key", ch.Key, "value", ch.Value)
			if err := engine.Submit(ctx, capture.SettingChanged{Key: ch.Key, Value: ch.Value}); err != nil {
				slog.Debug("Setting change dropped", "key", ch.Key, "error", err)
			}
		}
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
