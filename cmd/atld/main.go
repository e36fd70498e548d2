// Command atld runs the audio translation layer as a standalone daemon.
//
// It binds the configured backend, drives external frames at the configured
// rate and exposes the runtime to remote clients over WebSocket, next to
// health, metrics and diagnostics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/atl/internal/app"
	"github.com/MrWong99/atl/internal/config"
	"github.com/MrWong99/atl/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "atld.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload the configuration file when it changes or on SIGHUP")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "atld: config file %q not found, pass one with -config\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "atld: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("atld starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"backend", cfg.Backend.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	if !cfg.Telemetry.Disabled {
		shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:      cfg.Telemetry.ServiceName,
			ServiceVersion:   version,
			Backend:          cfg.Backend.Name,
			Fallbacks:        fallbackNames(cfg.Backend),
			InvariantPolicy:  string(cfg.Runtime.InvariantPolicy),
			TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
		})
		if err != nil {
			slog.Error("failed to initialise telemetry", "err", err)
			return 1
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Warn("telemetry shutdown error", "err", err)
			}
		}()
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(cfg, app.WithLogger(logger), app.WithLevelVar(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch {
		w, err := config.NewWatcher(*configPath, application.Reload,
			config.WithWatcherLogger(logger.With("component", "config")))
		if err != nil {
			slog.Error("failed to watch config file", "err", err)
			return 1
		}
		defer w.Stop()

		// SIGHUP reloads the file without waiting for the next poll.
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-hup:
					if !w.Reload() {
						slog.Info("SIGHUP: configuration unchanged")
					}
				}
			}
		}()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

func fallbackNames(b config.BackendConfig) []string {
	names := make([]string, 0, len(b.Fallbacks))
	for _, f := range b.Fallbacks {
		names = append(names, f.Name)
	}
	return names
}
