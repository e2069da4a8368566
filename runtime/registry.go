package runtime

import (
	"channel-chat/contract"
	"channel-chat/domain"
	"channel-chat/errors"
	"context"
	stderrors "errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// directHold is the membership hold taken by the REST join, independent of
// any live session.
const directHold = "direct"

type Set map[string]struct{}

// Subscriber is a live session listening to a channel.
type Subscriber struct {
	SessionID domain.SessionID
	UserID    domain.UserID
	Sink      contract.EventSink
}

// channelState is guarded by its own lock, the registry lock only protects
// the lookup map. lane serialises submissions so that the persistence order
// is also the delivery order.
type channelState struct {
	mu          sync.RWMutex
	lane        sync.Mutex
	channel     domain.Channel
	members     map[domain.UserID]Set
	subscribers map[domain.SessionID]Subscriber
}

type Registry struct {
	log      *slog.Logger
	store    contract.IChannelStore
	createMu sync.Mutex
	mu       sync.RWMutex
	channels map[domain.ChannelID]*channelState
}

func NewRegistry(log *slog.Logger, store contract.IChannelStore) *Registry {
	return &Registry{
		log:      log,
		store:    store,
		channels: make(map[domain.ChannelID]*channelState),
	}
}

// Load warms the registry with every persisted channel.
func (r *Registry) Load(ctx context.Context) error {
	channels, err := r.store.List(ctx)
	if err != nil {
		return err
	}
	for _, c := range channels {
		r.insert(c)
	}
	r.log.Info("Channels loaded", "count", len(channels))
	return nil
}

// Create checks the name against known channels under the creation lock, the
// store enforces it again in its own transaction.
func (r *Registry) Create(ctx context.Context, name string) (domain.Channel, error) {
	normalized, ok := domain.NormalizeChannelName(name)
	if !ok {
		return domain.Channel{}, errors.ErrInvalidChannelName
	}
	r.createMu.Lock()
	defer r.createMu.Unlock()

	key := domain.ChannelNameKey(normalized)
	r.mu.RLock()
	taken := lo.ContainsBy(lo.Values(r.channels), func(s *channelState) bool {
		return domain.ChannelNameKey(s.channel.Name) == key
	})
	r.mu.RUnlock()
	if taken {
		return domain.Channel{}, errors.ErrDuplicateName
	}

	channel, err := r.store.Create(ctx, normalized)
	if err != nil {
		return domain.Channel{}, err
	}
	r.insert(channel)
	r.log.Info("Channel created", "channel_id", channel.ID, "name", channel.Name)
	return channel, nil
}

func (r *Registry) List(ctx context.Context) ([]domain.Channel, error) {
	return r.store.List(ctx)
}

func (r *Registry) Get(ctx context.Context, id domain.ChannelID) (domain.Channel, error) {
	state, err := r.state(ctx, id)
	if err != nil {
		return domain.Channel{}, err
	}
	return state.channel, nil
}

func (r *Registry) Exists(ctx context.Context, id domain.ChannelID) (bool, error) {
	_, err := r.state(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case stderrors.Is(err, errors.ErrChannelNotFound):
		return false, nil
	default:
		return false, err
	}
}

// AddMember takes the direct hold of userID on the channel. Idempotent.
func (r *Registry) AddMember(ctx context.Context, channelID domain.ChannelID, userID domain.UserID) error {
	state, err := r.state(ctx, channelID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.hold(userID, directHold)
	return nil
}

// RemoveMember drops every hold of userID, including its live subscriptions.
// Removing a non member is a no-op.
func (r *Registry) RemoveMember(ctx context.Context, channelID domain.ChannelID, userID domain.UserID) error {
	state, err := r.state(ctx, channelID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	delete(state.members, userID)
	for id, sub := range state.subscribers {
		if sub.UserID == userID {
			delete(state.subscribers, id)
		}
	}
	return nil
}

// Subscribe attaches a live session to the channel. Subscribing twice
// replaces the sink and keeps a single hold.
func (r *Registry) Subscribe(ctx context.Context, channelID domain.ChannelID, userID domain.UserID,
	sessionID domain.SessionID, sink contract.EventSink) error {
	state, err := r.state(ctx, channelID)
	if err != nil {
		return err
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.hold(userID, sessionID.String())
	state.subscribers[sessionID] = Subscriber{SessionID: sessionID, UserID: userID, Sink: sink}
	return nil
}

// Unsubscribe releases the session hold. The user stays a member while any
// other hold remains.
func (r *Registry) Unsubscribe(channelID domain.ChannelID, userID domain.UserID, sessionID domain.SessionID) {
	r.mu.RLock()
	state, ok := r.channels[channelID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	delete(state.subscribers, sessionID)
	if holds, ok := state.members[userID]; ok {
		delete(holds, sessionID.String())
		if len(holds) == 0 {
			delete(state.members, userID)
		}
	}
}

func (r *Registry) MemberCount(ctx context.Context, id domain.ChannelID) (int, error) {
	state, err := r.state(ctx, id)
	if err != nil {
		return 0, err
	}
	state.mu.RLock()
	defer state.mu.RUnlock()
	return len(state.members), nil
}

func (r *Registry) IsMember(ctx context.Context, id domain.ChannelID, userID domain.UserID) (bool, error) {
	state, err := r.state(ctx, id)
	if err != nil {
		return false, err
	}
	state.mu.RLock()
	defer state.mu.RUnlock()
	_, ok := state.members[userID]
	return ok, nil
}

// Members returns the member ids in a stable order.
func (r *Registry) Members(ctx context.Context, id domain.ChannelID) ([]domain.UserID, error) {
	state, err := r.state(ctx, id)
	if err != nil {
		return nil, err
	}
	state.mu.RLock()
	members := lo.Keys(state.members)
	state.mu.RUnlock()
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members, nil
}

// Subscribers returns a copy of the live subscribers, safe to range over
// without holding any lock.
func (r *Registry) Subscribers(id domain.ChannelID) []Subscriber {
	r.mu.RLock()
	state, ok := r.channels[id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	state.mu.RLock()
	defer state.mu.RUnlock()
	return lo.Values(state.subscribers)
}

// state returns the in-memory state of a channel, loading it from the store
// when another process created it.
func (r *Registry) state(ctx context.Context, id domain.ChannelID) (*channelState, error) {
	r.mu.RLock()
	state, ok := r.channels[id]
	r.mu.RUnlock()
	if ok {
		return state, nil
	}
	channel, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.insert(channel), nil
}

func (r *Registry) insert(channel domain.Channel) *channelState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.channels[channel.ID]; ok {
		return state
	}
	state := &channelState{
		channel:     channel,
		members:     make(map[domain.UserID]Set),
		subscribers: make(map[domain.SessionID]Subscriber),
	}
	r.channels[channel.ID] = state
	return state
}

func (s *channelState) hold(userID domain.UserID, holder string) {
	holds, ok := s.members[userID]
	if !ok {
		holds = make(Set)
		s.members[userID] = holds
	}
	holds[holder] = struct{}{}
}
