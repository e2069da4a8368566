package event

import (
	"channel-chat/domain"
	"time"
)

// Names of the server to client events on the wire.
const (
	NameReceiveMessage = "receive_message"
	NameOnlineUsers    = "online_users"
	NameChannelJoined  = "channel_joined"
	NameChannelLeft    = "channel_left"
	NameError          = "error"
)

// DomainEvent is anything a session sink can be asked to deliver.
type DomainEvent interface {
	Name() string
}

// MessageReceived is fanned out to every session subscribed to the channel,
// the sender included.
type MessageReceived struct {
	ID         domain.MessageID
	Channel    domain.ChannelID
	AuthorID   domain.UserID
	AuthorName string
	Body       string
	At         time.Time
}

func (MessageReceived) Name() string { return NameReceiveMessage }

func (m MessageReceived) ChannelID() domain.ChannelID { return m.Channel }

func FromMessage(m domain.Message) MessageReceived {
	return MessageReceived{
		ID:         m.ID,
		Channel:    m.ChannelID,
		AuthorID:   m.AuthorID,
		AuthorName: m.AuthorName,
		Body:       m.Body,
		At:         m.CreatedAt,
	}
}

// OnlineUsers is a presence snapshot delivered to every session.
type OnlineUsers struct {
	Users []domain.OnlineUser
}

func (OnlineUsers) Name() string { return NameOnlineUsers }

func (o OnlineUsers) Count() int { return len(o.Users) }

type ChannelJoined struct {
	Channel domain.ChannelID
}

func (ChannelJoined) Name() string { return NameChannelJoined }

type ChannelLeft struct {
	Channel domain.ChannelID
}

func (ChannelLeft) Name() string { return NameChannelLeft }

// CommandFailed reports a rejected command back to its sender only.
type CommandFailed struct {
	Command string
	Code    string
	Message string
}

func (CommandFailed) Name() string { return NameError }
