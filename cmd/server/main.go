package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudzz-dev/cldzchat/internal/server/config"
	"github.com/cloudzz-dev/cldzchat/internal/server/handlers"
	"github.com/cloudzz-dev/cldzchat/internal/server/ratelimit"
	"github.com/cloudzz-dev/cldzchat/internal/server/storage"
	"github.com/cloudzz-dev/cldzchat/internal/server/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		slog.Error("Failed to create upload directory", "dir", cfg.UploadDir, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := storage.New()
	limiter := ratelimit.New(cfg.MaxConnsPerIP, cfg.AuthPerMinute)
	go limiter.Run(ctx)

	hub := ws.NewHub(store, logger)
	go hub.Run(ctx)

	h := &handlers.Handler{
		Store:     store,
		Hub:       hub,
		Limiter:   limiter,
		UploadDir: cfg.UploadDir,
		MaxUpload: cfg.MaxUploadBytes,
		Log:       logger,
	}
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		maxConns, maxAuth := limiter.Limits()
		slog.Info("Server listening", "addr", srv.Addr, "max_conns_per_ip", maxConns, "auth_per_min", maxAuth)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()
	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}
