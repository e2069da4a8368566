// Package rest is the HTTP surface of the chat backend.
package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// CreateServer applies the production timeouts to handler.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// ShutdownServer waits for in-flight requests until timeout elapses.
func ShutdownServer(log *slog.Logger, server *http.Server, timeout time.Duration) error {
	log.Info("Shutting down HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
		return err
	}
	log.Info("HTTP server shutdown completed")
	return nil
}
