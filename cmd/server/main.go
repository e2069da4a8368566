package main

import (
	"channel-chat/app"
	"channel-chat/infrastructure/rest"
	"channel-chat/internal"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes reported to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run keeps every deferred cleanup on the exit path, os.Exit is only
// called once it has returned.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Components
	application, err := app.New(ctx, logger, config, db)
	if err != nil {
		return exitRuntime, err
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		inspector := internal.StartDebugServer(logger, db, config.DebugPort, "/inspect", internal.DefaultMapper,
			func() map[string]any { return application.Monitoring.Snapshot().Map() })
		defer func() { _ = inspector.Close() }()
	}

	errChan := make(chan error, 1)
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		application.Run(ctx)
	}()

	// 4. HTTP surface
	server := rest.CreateServer(config.Address(), application.Handler)
	go func() {
		logger.Info("Starting HTTP server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	code := exitOK
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errChan:
		logger.Error("Server failed", "error", err)
		code = exitRuntime
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if shutdownErr := rest.ShutdownServer(logger, server, config.ShutdownTimeout); shutdownErr != nil {
		logger.Warn("HTTP shutdown incomplete", "error", shutdownErr)
	}
	if shutdownErr := application.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("Application shutdown incomplete", "error", shutdownErr)
	}
	<-workersDone
	logger.Info("Program stopped cleanly")
	return code, err
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if logger.Enabled(ctx, slog.LevelDebug) {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.INFO)
}
