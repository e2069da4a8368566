package runtime

import (
	"channel-chat/contract"
	"channel-chat/domain"
	"channel-chat/domain/event"
	"channel-chat/errors"
	"channel-chat/observability"
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Router validates, persists and fans out chat messages.
type Router struct {
	log              *slog.Logger
	registry         *Registry
	messages         contract.IMessageStore
	monitoring       *observability.Monitoring
	filter           contract.ContentFilter
	maxContentLength int
}

func NewRouter(log *slog.Logger, registry *Registry, messages contract.IMessageStore,
	monitoring *observability.Monitoring, maxContentLength int) *Router {
	return &Router{
		log:              log,
		registry:         registry,
		messages:         messages,
		monitoring:       monitoring,
		maxContentLength: maxContentLength,
	}
}

// WithFilter censors every body before it is persisted.
func (r *Router) WithFilter(filter contract.ContentFilter) *Router {
	r.filter = filter
	return r
}

// Submit persists body as a message of the session user and delivers it to
// every session subscribed to the channel, the sender included.
// The channel lane is held from the append until the last enqueue, so every
// subscriber observes the persistence order.
func (r *Router) Submit(ctx context.Context, session *Session, channelID domain.ChannelID, body string) (domain.Message, error) {
	state, err := r.registry.state(ctx, channelID)
	if err != nil {
		return domain.Message{}, err
	}
	if !session.IsSubscribed(channelID) {
		return domain.Message{}, errors.ErrNotSubscribed
	}
	body, err = r.validate(body)
	if err != nil {
		return domain.Message{}, err
	}
	if r.filter != nil {
		var words []string
		if body, words = r.filter.Censor(body); len(words) > 0 {
			r.monitoring.IncrMessagesCensored()
		}
	}

	state.lane.Lock()
	defer state.lane.Unlock()

	message, err := r.messages.Append(ctx, channelID, session.Identity.UserID, body)
	if err != nil {
		return domain.Message{}, err
	}
	if message.AuthorName == "" {
		message.AuthorName = session.Identity.Name
	}
	r.monitoring.IncrMessagesSent()

	received := event.FromMessage(message)
	for _, sub := range r.registry.Subscribers(channelID) {
		if err := sub.Sink.Consume(ctx, received); err != nil {
			r.monitoring.IncrDeliveryFailures()
			r.log.Warn("Message not delivered",
				"channel_id", channelID, "message_id", message.ID, "session_id", sub.SessionID, "error", err)
		}
	}
	r.log.Debug("Message routed", "channel_id", channelID, "message_id", message.ID)
	return message, nil
}

func (r *Router) validate(body string) (string, error) {
	body = strings.TrimSpace(body)
	switch {
	case body == "":
		return "", errors.ErrEmptyBody
	case r.maxContentLength > 0 && utf8.RuneCountInString(body) > r.maxContentLength:
		return "", errors.ErrBodyTooLong
	default:
		return body, nil
	}
}
