package ws

import (
	"bytes"
	"channel-chat/domain"
	"channel-chat/domain/event"
	"channel-chat/errors"
	"encoding/json"
	"fmt"
	"time"
)

// Events a client may send.
const (
	EventJoinChannel  = "join_channel"
	EventLeaveChannel = "leave_channel"
	EventSendMessage  = "send_message"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// channelRef accepts 7, "7" or {"channel_id": 7}.
type channelRef domain.ChannelID

func (c *channelRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			ChannelID *channelRef `json:"channel_id"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		if wrapped.ChannelID == nil {
			return fmt.Errorf("missing channel_id")
		}
		*c = *wrapped.ChannelID
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		if v < 1 || v != float64(uint64(v)) {
			return fmt.Errorf("invalid channel id %v", v)
		}
		*c = channelRef(uint64(v))
	case string:
		id, err := domain.ParseChannelID(v)
		if err != nil || id == 0 {
			return fmt.Errorf("invalid channel id %q", v)
		}
		*c = channelRef(id)
	default:
		return fmt.Errorf("invalid channel id %s", string(data))
	}
	return nil
}

// sendMessagePayload ignores any "user" field: the author is the session.
type sendMessagePayload struct {
	ChannelID *channelRef `json:"channel_id"`
	Message   string      `json:"message"`
}

// DecodeCommand parses one client frame into a command.
func DecodeCommand(frame []byte) (domain.Command, error) {
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, fmt.Errorf("%w: malformed frame", errors.ErrInvalidRequest)
	}
	switch envelope.Event {
	case EventJoinChannel, EventLeaveChannel:
		var ref channelRef
		if err := json.Unmarshal(envelope.Data, &ref); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
		}
		if envelope.Event == EventJoinChannel {
			return domain.JoinChannelCommand{Channel: domain.ChannelID(ref)}, nil
		}
		return domain.LeaveChannelCommand{Channel: domain.ChannelID(ref)}, nil
	case EventSendMessage:
		var payload sendMessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
		}
		if payload.ChannelID == nil {
			return nil, fmt.Errorf("%w: missing channel_id", errors.ErrInvalidRequest)
		}
		return domain.SendMessageCommand{Channel: domain.ChannelID(*payload.ChannelID), Body: payload.Message}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", errors.ErrInvalidRequest, envelope.Event)
	}
}

// CommandName is the wire event of a command, used in error replies.
func CommandName(cmd domain.Command) string {
	switch cmd.(type) {
	case domain.JoinChannelCommand:
		return EventJoinChannel
	case domain.LeaveChannelCommand:
		return EventLeaveChannel
	case domain.SendMessageCommand:
		return EventSendMessage
	default:
		return ""
	}
}

type UserView struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

type MessageView struct {
	ID        domain.MessageID `json:"id"`
	ChannelID domain.ChannelID `json:"channel_id"`
	Message   string           `json:"message"`
	User      UserView         `json:"user"`
	Timestamp time.Time        `json:"timestamp"`
}

type OnlineUsersView struct {
	Count int        `json:"count"`
	Users []UserView `json:"users"`
}

type ChannelView struct {
	ChannelID domain.ChannelID `json:"channel_id"`
}

type ErrorView struct {
	Command string `json:"command,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EncodeEvent renders a server event as an envelope.
func EncodeEvent(e event.DomainEvent) ([]byte, error) {
	var data any
	switch v := e.(type) {
	case event.MessageReceived:
		data = MessageView{
			ID:        v.ID,
			ChannelID: v.Channel,
			Message:   v.Body,
			User:      UserView{ID: v.AuthorID, Username: v.AuthorName},
			Timestamp: v.At,
		}
	case event.OnlineUsers:
		users := make([]UserView, 0, len(v.Users))
		for _, u := range v.Users {
			users = append(users, UserView{ID: u.UserID, Username: u.Name})
		}
		data = OnlineUsersView{Count: v.Count(), Users: users}
	case event.ChannelJoined:
		data = ChannelView{ChannelID: v.Channel}
	case event.ChannelLeft:
		data = ChannelView{ChannelID: v.Channel}
	case event.CommandFailed:
		data = ErrorView{Command: v.Command, Code: v.Code, Message: v.Message}
	default:
		return nil, fmt.Errorf("%w: unsupported event %s", errors.ErrInternal, e.Name())
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: e.Name(), Data: raw})
}
