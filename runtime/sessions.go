package runtime

import (
	"channel-chat/contract"
	"channel-chat/domain"
	"channel-chat/domain/event"
	"channel-chat/errors"
	"channel-chat/observability"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Session is one live connection bound to an identity.
type Session struct {
	ID       domain.SessionID
	Identity domain.Identity
	sink     contract.EventSink

	mu       sync.Mutex
	channels map[domain.ChannelID]struct{}
	closed   bool
}

// Channels returns the joined channels in id order.
func (s *Session) Channels() []domain.ChannelID {
	s.mu.Lock()
	ids := lo.Keys(s.channels)
	s.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Session) IsSubscribed(channelID domain.ChannelID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.channels[channelID]
	return ok
}

func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Deliver hands an event to the session sink. Closed sessions refuse events.
func (s *Session) Deliver(ctx context.Context, e event.DomainEvent) error {
	if s.Closed() {
		return errors.ErrSessionClosed
	}
	return s.sink.Consume(ctx, e)
}

type SessionManager struct {
	log        *slog.Logger
	verifier   contract.TokenVerifier
	registry   *Registry
	presence   *Presence
	monitoring *observability.Monitoring

	mu       sync.RWMutex
	sessions map[domain.SessionID]*Session
	byUser   map[domain.UserID]map[domain.SessionID]*Session
}

func NewSessionManager(log *slog.Logger, verifier contract.TokenVerifier, registry *Registry,
	presence *Presence, monitoring *observability.Monitoring) *SessionManager {
	return &SessionManager{
		log:        log,
		verifier:   verifier,
		registry:   registry,
		presence:   presence,
		monitoring: monitoring,
		sessions:   make(map[domain.SessionID]*Session),
		byUser:     make(map[domain.UserID]map[domain.SessionID]*Session),
	}
}

// Open authenticates the token and attaches a new session to sink.
func (m *SessionManager) Open(ctx context.Context, token string, sink contract.EventSink) (*Session, error) {
	identity, err := m.Authenticate(token)
	if err != nil {
		return nil, err
	}
	return m.Attach(ctx, identity, sink), nil
}

// Authenticate resolves a token, every failure is reported as unauthenticated.
func (m *SessionManager) Authenticate(token string) (domain.Identity, error) {
	identity, err := m.verifier.Verify(token)
	if err == nil {
		return identity, nil
	}
	if stderrors.Is(err, errors.ErrUnauthenticated) {
		return domain.Identity{}, err
	}
	return domain.Identity{}, fmt.Errorf("%w: %w", errors.ErrUnauthenticated, err)
}

// Attach registers a session for an already verified identity. The new
// session receives the current presence snapshot right away, the others
// are notified through the presence change signal.
func (m *SessionManager) Attach(ctx context.Context, identity domain.Identity, sink contract.EventSink) *Session {
	session := &Session{
		ID:       domain.NewSessionID(),
		Identity: identity,
		sink:     sink,
		channels: make(map[domain.ChannelID]struct{}),
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	userSessions, ok := m.byUser[identity.UserID]
	if !ok {
		userSessions = make(map[domain.SessionID]*Session)
		m.byUser[identity.UserID] = userSessions
	}
	userSessions[session.ID] = session
	m.mu.Unlock()

	m.presence.Connect(identity.UserID, identity.Name)
	m.monitoring.SessionOpened()
	m.monitoring.SetOnlineUsers(m.presence.OnlineCount())

	if err := session.Deliver(ctx, event.OnlineUsers{Users: m.presence.Snapshot()}); err != nil {
		m.log.Debug("Initial presence snapshot not delivered", "session_id", session.ID, "error", err)
	}
	m.log.Info("Session opened", "session_id", session.ID, "user_id", identity.UserID)
	return session
}

// Close releases every subscription and the presence of the session.
// Closing twice is a no-op.
func (m *SessionManager) Close(session *Session) {
	if session == nil {
		return
	}
	session.mu.Lock()
	if session.closed {
		session.mu.Unlock()
		return
	}
	session.closed = true
	channels := lo.Keys(session.channels)
	session.channels = make(map[domain.ChannelID]struct{})
	session.mu.Unlock()

	for _, channelID := range channels {
		m.registry.Unsubscribe(channelID, session.Identity.UserID, session.ID)
	}

	m.mu.Lock()
	delete(m.sessions, session.ID)
	if userSessions, ok := m.byUser[session.Identity.UserID]; ok {
		delete(userSessions, session.ID)
		if len(userSessions) == 0 {
			delete(m.byUser, session.Identity.UserID)
		}
	}
	m.mu.Unlock()

	m.presence.Disconnect(session.Identity.UserID)
	m.monitoring.SessionClosed()
	m.monitoring.SetOnlineUsers(m.presence.OnlineCount())
	m.log.Info("Session closed", "session_id", session.ID, "user_id", session.Identity.UserID)
}

// Join subscribes the session to a channel. Joining twice is a no-op.
func (m *SessionManager) Join(ctx context.Context, session *Session, channelID domain.ChannelID) error {
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.closed {
		return errors.ErrSessionClosed
	}
	if err := m.registry.Subscribe(ctx, channelID, session.Identity.UserID, session.ID, session.sink); err != nil {
		return err
	}
	session.channels[channelID] = struct{}{}
	return nil
}

// Leave unsubscribes the session from a channel it joined, otherwise no-op.
func (m *SessionManager) Leave(_ context.Context, session *Session, channelID domain.ChannelID) error {
	session.mu.Lock()
	defer session.mu.Unlock()
	if _, ok := session.channels[channelID]; !ok {
		return nil
	}
	delete(session.channels, channelID)
	m.registry.Unsubscribe(channelID, session.Identity.UserID, session.ID)
	return nil
}

// JoinUser makes the user a member of the channel and subscribes every live
// session of that user, which is told with a channel_joined event.
func (m *SessionManager) JoinUser(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) error {
	if err := m.registry.AddMember(ctx, channelID, userID); err != nil {
		return err
	}
	for _, session := range m.userSessions(userID) {
		if session.IsSubscribed(channelID) {
			continue
		}
		if err := m.Join(ctx, session, channelID); err != nil {
			if stderrors.Is(err, errors.ErrSessionClosed) {
				continue
			}
			return err
		}
		m.notify(ctx, session, event.ChannelJoined{Channel: channelID})
	}
	return nil
}

// LeaveUser removes the user from the channel on every live session.
func (m *SessionManager) LeaveUser(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) error {
	if _, err := m.registry.Get(ctx, channelID); err != nil {
		return err
	}
	for _, session := range m.userSessions(userID) {
		if !session.IsSubscribed(channelID) {
			continue
		}
		_ = m.Leave(ctx, session, channelID)
		m.notify(ctx, session, event.ChannelLeft{Channel: channelID})
	}
	return m.registry.RemoveMember(ctx, channelID, userID)
}

// Broadcast delivers e to every open session and returns how many accepted it.
func (m *SessionManager) Broadcast(ctx context.Context, e event.DomainEvent) int {
	m.mu.RLock()
	sessions := lo.Values(m.sessions)
	m.mu.RUnlock()

	delivered := 0
	for _, session := range sessions {
		if err := session.Deliver(ctx, e); err != nil {
			m.monitoring.IncrDeliveryFailures()
			m.log.Debug("Broadcast not delivered", "session_id", session.ID, "event", e.Name(), "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Count returns the number of open sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) userSessions(userID domain.UserID) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Values(m.byUser[userID])
}

func (m *SessionManager) notify(ctx context.Context, session *Session, e event.DomainEvent) {
	if err := session.Deliver(ctx, e); err != nil {
		m.monitoring.IncrDeliveryFailures()
		m.log.Debug("Event not delivered", "session_id", session.ID, "event", e.Name(), "error", err)
	}
}
