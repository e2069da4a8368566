package runtime

import (
	"channel-chat/domain"
	"channel-chat/domain/event"
	"channel-chat/errors"
	"channel-chat/observability"
	"channel-chat/repositories"
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

// recordingSink keeps every event it accepts. A non nil err makes it refuse.
type recordingSink struct {
	mu     sync.Mutex
	events []event.DomainEvent
	err    error
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) received() []event.MessageReceived {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.MessageReceived
	for _, e := range s.events {
		if m, ok := e.(event.MessageReceived); ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *recordingSink) lastOnlineUsers() (event.OnlineUsers, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if o, ok := s.events[i].(event.OnlineUsers); ok {
			return o, true
		}
	}
	return event.OnlineUsers{}, false
}

func (s *recordingSink) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Name() == name {
			n++
		}
	}
	return n
}

// stubVerifier treats the token as "userID:name".
type stubVerifier map[string]domain.Identity

func (v stubVerifier) Verify(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, errors.ErrMissingToken
	}
	identity, ok := v[token]
	if !ok {
		return domain.Identity{}, errors.ErrInvalidToken
	}
	return identity, nil
}

type core struct {
	*Orchestrator
	channels *repositories.ChannelRepository
	messages *repositories.MessageRepository
	users    repositories.IUserRepository
	verifier stubVerifier
}

func newCore(t *testing.T) *core {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	channels, err := repositories.NewChannelRepository(db, log)
	require.NoError(t, err)
	messages, err := repositories.NewMessageRepository(db, log)
	require.NoError(t, err)

	verifier := stubVerifier{}
	orchestrator := NewOrchestrator(log, nil, channels, messages, verifier,
		observability.NewMonitoring(), Config{MaxContentLength: 2000})
	require.NoError(t, orchestrator.Prepare(context.Background()))
	return &core{
		Orchestrator: orchestrator,
		channels:     channels,
		messages:     messages,
		users:        repositories.NewUserRepository(db),
		verifier:     verifier,
	}
}

// signup persists a user and returns a token the stub verifier accepts.
func (c *core) signup(t *testing.T, name string) (domain.Identity, string) {
	t.Helper()
	user, err := c.users.CreateUser(context.Background(), name, name+"@example.com", "hash")
	require.NoError(t, err)
	token := "token-" + name
	c.verifier[token] = user.Identity()
	return user.Identity(), token
}

func (c *core) open(t *testing.T, token string) (*Session, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	session, err := c.Sessions.Open(context.Background(), token, sink)
	require.NoError(t, err)
	return session, sink
}

func (c *core) channel(t *testing.T, name string) domain.Channel {
	t.Helper()
	channel, err := c.Registry.Create(context.Background(), name)
	require.NoError(t, err)
	return channel
}

func bodiesOf(events []event.MessageReceived) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Body)
	}
	return out
}
