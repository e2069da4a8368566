// Package ws is the real-time surface: it upgrades authenticated requests
// to WebSockets and binds each connection to a chat session.
package ws

import (
	"channel-chat/auth"
	"channel-chat/errors"
	"channel-chat/observability"
	"channel-chat/runtime"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type Config struct {
	BufferSize      int
	MaxFrameSize    int64
	AllowedOrigins  []string
	RateLimitBurst  int
	RateLimitRefill time.Duration
}

type Handler struct {
	log        *slog.Logger
	sessions   *runtime.SessionManager
	router     *runtime.Router
	monitoring *observability.Monitoring
	config     Config
	upgrader   websocket.Upgrader
	origins    originPolicy

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

func NewHandler(log *slog.Logger, sessions *runtime.SessionManager, router *runtime.Router,
	monitoring *observability.Monitoring, config Config) *Handler {
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	if config.MaxFrameSize <= 0 {
		config.MaxFrameSize = 8192
	}
	if config.RateLimitBurst <= 0 {
		config.RateLimitBurst = 5
	}
	if config.RateLimitRefill <= 0 {
		config.RateLimitRefill = time.Second
	}
	h := &Handler{
		log:        log,
		sessions:   sessions,
		router:     router,
		monitoring: monitoring,
		config:     config,
		origins:    newOriginPolicy(log, config.AllowedOrigins),
		clients:    make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.origins.check,
	}
	return h
}

// ServeHTTP authenticates before upgrading, so a bad token gets a plain 401.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if !h.origins.check(r) {
		writeError(w, http.StatusForbidden, "forbidden_origin", "Origin not allowed")
		return
	}
	identity, err := h.sessions.Authenticate(auth.BearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, errors.Code(err), "Unauthorized")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	// The request context ends with this handler, the connection outlives it.
	ctx := context.WithoutCancel(r.Context())
	client := newClient(h.log, conn, h, r.RemoteAddr)
	h.track(client)
	client.session = h.sessions.Attach(ctx, identity, client)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump(ctx)
	}()
}

func (h *Handler) track(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// release ends the session of a connection. Safe to call more than once.
func (h *Handler) release(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.sessions.Close(c.session)
}

// Shutdown closes every connection with a going away frame and waits for
// the pumps to exit, or for ctx to end.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for c := range h.clients {
		c.shutdown()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}
