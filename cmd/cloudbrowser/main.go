package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/cloudbrowser/api"
	"github.com/use-agent/cloudbrowser/cloudapi"
	"github.com/use-agent/cloudbrowser/config"
	"github.com/use-agent/cloudbrowser/pipeline"
	"github.com/use-agent/cloudbrowser/pool"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)

	if err := cfg.CloudBrowser.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("cloudbrowser starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"apiHost", cfg.CloudBrowser.APIHost,
		"numBrowsers", cfg.CloudBrowser.NumBrowsers,
		"pagesPerBrowser", cfg.CloudBrowser.PagesPerBrowser,
	)

	// ── 3. Initialise provisioning client and session pool ──────────
	client := cloudapi.NewClient(cfg.CloudBrowser)

	p, err := pool.New(cfg.CloudBrowser, client)
	if err != nil {
		slog.Error("failed to construct browser pool", "error", err)
		os.Exit(1)
	}

	ext := pipeline.New(p)

	// Warm-up failures for individual slots are logged and retried in
	// the background; only a hard failure (shutdown raced) is fatal.
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	if err := ext.Start(warmCtx); err != nil {
		slog.Warn("warm-up finished with errors, pool will keep refilling", "error", err)
	}
	warmCancel()

	// ── 4. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(p, ext, cfg, startTime)

	// ── 5. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 6. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Tear down every remote session; abandon stragglers after 30s.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := ext.Stop(stopCtx); err != nil {
		slog.Error("pool shutdown failed", "error", err)
	}

	slog.Info("cloudbrowser stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
