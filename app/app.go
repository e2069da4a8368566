// Package app assembles the chat backend from its configuration.
package app

import (
	"channel-chat/auth"
	"channel-chat/infrastructure/rest"
	"channel-chat/infrastructure/ws"
	"channel-chat/internal"
	"channel-chat/moderation"
	"channel-chat/observability"
	"channel-chat/repositories"
	"channel-chat/runtime"
	"channel-chat/runtime/workers"
	"channel-chat/services"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dgraph-io/badger/v4"
)

type App struct {
	log          *slog.Logger
	config       internal.Config
	channels     *repositories.ChannelRepository
	messages     *repositories.MessageRepository
	wsHandler    *ws.Handler
	Monitoring   *observability.Monitoring
	Orchestrator *runtime.Orchestrator
	Handler      http.Handler
}

// New wires every component on top of an open database. The persisted
// channels are loaded before New returns.
func New(ctx context.Context, log *slog.Logger, config internal.Config, db *badger.DB) (*App, error) {
	channels, err := repositories.NewChannelRepository(db, log)
	if err != nil {
		return nil, err
	}
	messages, err := repositories.NewMessageRepository(db, log)
	if err != nil {
		_ = channels.Close()
		return nil, err
	}
	users := repositories.NewUserRepository(db)
	issuer := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	monitoring := observability.NewMonitoring()

	runtimeConfig := runtime.Config{MaxContentLength: config.MaxContentLength, MetricInterval: config.MetricInterval}
	moderator, err := moderation.NewModerator(log, config.Words(), config.CensorRune())
	if err != nil {
		_ = channels.Close()
		_ = messages.Close()
		return nil, fmt.Errorf("moderation dictionary: %w", err)
	}
	if moderator != nil {
		runtimeConfig.Filter = moderator
	}

	orchestrator := runtime.NewOrchestrator(log,
		workers.NewSupervisor(log, monitoring, config.RestartInterval),
		channels, messages, issuer, monitoring, runtimeConfig,
	)
	if err := orchestrator.Prepare(ctx); err != nil {
		_ = channels.Close()
		_ = messages.Close()
		return nil, fmt.Errorf("channel registry loading failed: %w", err)
	}

	wsHandler := ws.NewHandler(log, orchestrator.Sessions, orchestrator.Router, monitoring, ws.Config{
		BufferSize:      config.ConnectionBufferSize,
		MaxFrameSize:    config.MaxFrameSize,
		AllowedOrigins:  config.Origins(),
		RateLimitBurst:  config.RateLimitBurst,
		RateLimitRefill: config.RateLimitRefillInterval,
	})
	handler := rest.NewRouter(log, rest.Deps{
		Auth:           services.NewAuthService(log, users, issuer),
		Chat:           services.NewChatService(log, orchestrator.Registry, orchestrator.Sessions, messages, config.HistoryPageSize),
		Verifier:       issuer,
		Monitoring:     monitoring,
		WebSocket:      wsHandler,
		AllowedOrigins: config.Origins(),
	})

	return &App{
		log:          log,
		config:       config,
		channels:     channels,
		messages:     messages,
		wsHandler:    wsHandler,
		Monitoring:   monitoring,
		Orchestrator: orchestrator,
		Handler:      handler,
	}, nil
}

// Run starts the supervised workers and blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) {
	a.Orchestrator.Start(ctx)
}

// Shutdown closes live WebSockets, stops the workers and returns the
// leased ids to the store. The database itself belongs to the caller.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.wsHandler.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
	}
	a.Orchestrator.Stop()
	if err := a.messages.Close(); err != nil {
		errs = append(errs, fmt.Errorf("message sequence release: %w", err))
	}
	if err := a.channels.Close(); err != nil {
		errs = append(errs, fmt.Errorf("channel sequence release: %w", err))
	}
	return stderrors.Join(errs...)
}
