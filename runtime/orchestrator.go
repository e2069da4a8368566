// Package runtime holds the live state of the chat: channel membership,
// presence, sessions and message routing.
// It orchestrates the system without containing transport or storage code.
package runtime

import (
	"channel-chat/contract"
	"channel-chat/observability"
	"channel-chat/runtime/workers"
	"context"
	"log/slog"
	"time"
)

type Config struct {
	MaxContentLength int
	MetricInterval   time.Duration
	// Filter is optional, nil keeps bodies as typed.
	Filter contract.ContentFilter
}

type Orchestrator struct {
	log        *slog.Logger
	supervisor contract.ISupervisor
	monitoring *observability.Monitoring
	config     Config

	Registry *Registry
	Presence *Presence
	Sessions *SessionManager
	Router   *Router
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, channels contract.IChannelStore,
	messages contract.IMessageStore, verifier contract.TokenVerifier,
	monitoring *observability.Monitoring, config Config) *Orchestrator {
	registry := NewRegistry(log, channels)
	presence := NewPresence()
	router := NewRouter(log, registry, messages, monitoring, config.MaxContentLength)
	if config.Filter != nil {
		router.WithFilter(config.Filter)
	}
	return &Orchestrator{
		log:        log,
		supervisor: supervisor,
		monitoring: monitoring,
		config:     config,
		Registry:   registry,
		Presence:   presence,
		Sessions:   NewSessionManager(log, verifier, registry, presence, monitoring),
		Router:     router,
	}
}

// Prepare loads the persisted channels. It must succeed before any session
// is accepted.
func (o *Orchestrator) Prepare(ctx context.Context) error {
	return o.Registry.Load(ctx)
}

// Start registers the background workers and blocks until ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.supervisor.Add(
		workers.NewPresenceNotifier(o.log, o.Presence, o.Sessions),
		workers.NewTelemetryWorker(o.log, o.monitoring, o.config.MetricInterval),
	)
	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
}

func (o *Orchestrator) Stop() {
	o.supervisor.Stop()
}
