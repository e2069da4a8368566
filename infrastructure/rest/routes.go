package rest

import (
	"channel-chat/auth"
	"channel-chat/contract"
	"channel-chat/observability"
	"channel-chat/services"
	"log/slog"
	"net/http"
)

type Deps struct {
	Auth           services.IAuthService
	Chat           services.IChatService
	Verifier       contract.TokenVerifier
	Monitoring     *observability.Monitoring
	WebSocket      http.Handler
	AllowedOrigins []string
}

// NewRouter mounts every route. The WebSocket endpoint authenticates on its
// own so it sits outside the bearer middleware.
func NewRouter(log *slog.Logger, deps Deps) http.Handler {
	h := &handlers{log: log, auth: deps.Auth, chat: deps.Chat, monitoring: deps.Monitoring}
	protected := auth.Middleware(deps.Verifier, h.writeError)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.live)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /signup", h.signup)
	mux.HandleFunc("POST /login", h.login)

	mux.Handle("GET /channels", protected(http.HandlerFunc(h.listChannels)))
	mux.Handle("POST /channels", protected(http.HandlerFunc(h.createChannel)))
	mux.Handle("POST /channels/join", protected(http.HandlerFunc(h.joinChannel)))
	mux.Handle("POST /channels/leave", protected(http.HandlerFunc(h.leaveChannel)))
	mux.Handle("GET /channels/{id}/members", protected(http.HandlerFunc(h.members)))
	mux.Handle("GET /messages/{channelId}", protected(http.HandlerFunc(h.history)))

	if deps.WebSocket != nil {
		mux.Handle("GET /ws", deps.WebSocket)
	}
	return withCORS(deps.AllowedOrigins, withRequestLog(log, mux))
}
