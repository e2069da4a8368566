package ws

import (
	"bytes"
	"channel-chat/auth"
	"channel-chat/domain"
	"channel-chat/domain/event"
	"channel-chat/observability"
	"channel-chat/repositories"
	"channel-chat/runtime"
	"channel-chat/runtime/workers"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	url          string
	issuer       *auth.TokenIssuer
	users        repositories.IUserRepository
	orchestrator *runtime.Orchestrator
	handler      *Handler
}

func newTestServer(t *testing.T, config Config) *testServer {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	channels, err := repositories.NewChannelRepository(db, log)
	require.NoError(t, err)
	messages, err := repositories.NewMessageRepository(db, log)
	require.NoError(t, err)
	monitoring := observability.NewMonitoring()
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)

	orchestrator := runtime.NewOrchestrator(log, workers.NewSupervisor(log, monitoring, 0),
		channels, messages, issuer, monitoring, runtime.Config{MaxContentLength: 2000, MetricInterval: time.Second})
	require.NoError(t, orchestrator.Prepare(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	go orchestrator.Start(ctx)

	handler := NewHandler(log, orchestrator.Sessions, orchestrator.Router, monitoring, config)
	server := httptest.NewServer(handler)
	t.Cleanup(func() {
		_ = handler.Shutdown(context.Background())
		server.Close()
		cancel()
	})

	return &testServer{
		url:          "ws" + strings.TrimPrefix(server.URL, "http"),
		issuer:       issuer,
		users:        repositories.NewUserRepository(db),
		orchestrator: orchestrator,
		handler:      handler,
	}
}

func (s *testServer) token(t *testing.T, name string) (domain.User, string) {
	t.Helper()
	user, err := s.users.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	token, err := s.issuer.GenerateToken(user.Identity())
	require.NoError(t, err)
	return user, token
}

// peer reads newline separated envelopes out of batched frames.
type peer struct {
	t       *testing.T
	conn    *websocket.Conn
	pending [][]byte
}

func (s *testServer) dial(t *testing.T, token string) *peer {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { _ = conn.Close() })
	return &peer{t: t, conn: conn}
}

func (p *peer) send(eventName string, data any) {
	p.t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteJSON(Envelope{Event: eventName, Data: raw}))
}

func (p *peer) next() (Envelope, error) {
	for len(p.pending) == 0 {
		_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, frame, err := p.conn.ReadMessage()
		if err != nil {
			return Envelope{}, err
		}
		p.pending = bytes.Split(frame, []byte{'\n'})
	}
	line := p.pending[0]
	p.pending = p.pending[1:]
	var envelope Envelope
	err := json.Unmarshal(line, &envelope)
	return envelope, err
}

// expect skips events until one named eventName arrives.
func (p *peer) expect(eventName string, into any) {
	p.t.Helper()
	for {
		envelope, err := p.next()
		require.NoError(p.t, err, "waiting for %s", eventName)
		if envelope.Event != eventName {
			continue
		}
		if into != nil {
			require.NoError(p.t, json.Unmarshal(envelope.Data, into))
		}
		return
	}
}

// waitOnline reads presence snapshots until one reports count users.
func (p *peer) waitOnline(count int) {
	p.t.Helper()
	for {
		var online OnlineUsersView
		p.expect(event.NameOnlineUsers, &online)
		if online.Count == count {
			return
		}
	}
}

func (s *testServer) createChannel(t *testing.T, name string) domain.Channel {
	t.Helper()
	channel, err := s.orchestrator.Registry.Create(context.Background(), name)
	require.NoError(t, err)
	return channel
}

func TestHandler_Rejects_Missing_Token(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Config{})

	_, resp, err := websocket.DefaultDialer.Dial(s.url, nil)

	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_Rejects_Invalid_Token(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Config{})

	_, resp, err := websocket.DefaultDialer.Dial(s.url+"?token=forged", nil)

	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_Rejects_Disallowed_Origin(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Config{AllowedOrigins: []string{"https://chat.example.com"}})
	_, token := s.token(t, "alice")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(s.url+"?token="+token, header)

	req.ErrorIs(err, websocket.ErrBadHandshake)
	req.Equal(http.StatusForbidden, resp.StatusCode)
}

func TestHandler_General_Scenario(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Config{})
	alice, aliceToken := s.token(t, "alice")
	_, bobToken := s.token(t, "bob")
	general := s.createChannel(t, "general")

	a := s.dial(t, aliceToken)
	b := s.dial(t, bobToken)

	// Given both joined "general"
	a.send(EventJoinChannel, general.ID)
	a.expect(event.NameChannelJoined, nil)
	b.send(EventJoinChannel, map[string]any{"channel_id": general.ID})
	b.expect(event.NameChannelJoined, nil)

	// When A sends "hi" pretending to be someone else
	a.send(EventSendMessage, map[string]any{
		"channel_id": general.ID,
		"message":    "hi",
		"user":       map[string]string{"id": "mallory", "username": "Mallory"},
	})

	// Then both receive the message authored by A
	for _, p := range []*peer{a, b} {
		var view MessageView
		p.expect(event.NameReceiveMessage, &view)
		req.Equal("hi", view.Message)
		req.Equal(general.ID, view.ChannelID)
		req.Equal(alice.ID, view.User.ID)
		req.Equal("alice", view.User.Username)
	}
}

func TestHandler_Send_Without_Join(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Config{})
	_, token := s.token(t, "alice")
	general := s.createChannel(t, "general")
	a := s.dial(t, token)

	a.send(EventSendMessage, map[string]any{"channel_id": general.ID, "message": "hi"})

	var failure ErrorView
	a.expect(event.NameError, &failure)
	req.Equal("not_subscribed", failure.Code)
	req.Equal(EventSendMessage, failure.Command)
}

func TestHandler_Join_Unknown_Channel(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Config{})
	_, token := s.token(t, "alice")
	a := s.dial(t, token)

	a.send(EventJoinChannel, 404)

	var failure ErrorView
	a.expect(event.NameError, &failure)
	req.Equal("not_found", failure.Code)
}

func TestHandler_Presence_Follows_Connections(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Config{})
	_, aliceToken := s.token(t, "alice")
	_, bobToken := s.token(t, "bob")

	a := s.dial(t, aliceToken)
	var online OnlineUsersView
	a.expect(event.NameOnlineUsers, &online)
	req.Equal(1, online.Count)

	// When B connects A sees two users
	b := s.dial(t, bobToken)
	a.waitOnline(2)

	// When B disconnects A sees one user again
	req.NoError(b.conn.Close())
	a.waitOnline(1)
	req.Equal(1, s.orchestrator.Presence.OnlineCount())
}

func TestHandler_Rate_Limit(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Config{RateLimitBurst: 1, RateLimitRefill: time.Hour})
	_, token := s.token(t, "alice")
	general := s.createChannel(t, "general")
	a := s.dial(t, token)

	a.send(EventJoinChannel, general.ID)
	a.expect(event.NameChannelJoined, nil)
	a.send(EventSendMessage, map[string]any{"channel_id": general.ID, "message": "too fast"})

	var failure ErrorView
	a.expect(event.NameError, &failure)
	req.Equal("rate_limited", failure.Code)
}

func TestHandler_Shutdown_Closes_Sessions(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t, Config{})
	_, token := s.token(t, "alice")
	a := s.dial(t, token)
	a.expect(event.NameOnlineUsers, nil)

	req.NoError(s.handler.Shutdown(context.Background()))

	req.Eventually(func() bool {
		return s.orchestrator.Sessions.Count() == 0
	}, time.Second, 10*time.Millisecond)
	for {
		if _, err := a.next(); err != nil {
			req.True(websocket.IsCloseError(err, websocket.CloseGoingAway))
			break
		}
	}
}
