// Package app assembles the ReelNotes backend and runs its commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/reelnotes/backend/internal/config"
	"github.com/reelnotes/backend/internal/db"
	"github.com/reelnotes/backend/internal/handlers"
	"github.com/reelnotes/backend/internal/httpserver"
	"github.com/reelnotes/backend/internal/logging"
)

// NewLogger builds the process logger: JSON to stdout at the configured level.
func NewLogger(cfg config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: true,
		Level:     logging.ParseLevel(cfg.LogLevel),
	}))
}

// Serve runs the HTTP API until ctx ends or the process is signalled.
func Serve(ctx context.Context, cfg config.Config) error {
	logger := NewLogger(cfg)
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}

	srv := httpserver.New(cfg.AppPort, handlers.NewRouter(deps), logger)

	logger.Info("starting http server",
		"port", cfg.AppPort,
		"write_mode", cfg.WriteMode,
		"change_feed", cfg.ChangeFeed,
		"file_storage", deps.Assets != nil,
	)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	case sig := <-signalCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	return errors.Join(serveErr, srv.Shutdown(shutdownCtx), cleanup(shutdownCtx))
}

// resolveDir makes a configured directory absolute relative to the working directory.
func resolveDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}
