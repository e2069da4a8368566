// Package domain contains core concepts of the chat system.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"strconv"

	"github.com/google/uuid"
)

type UserID string

type ChannelID uint64

func (c ChannelID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ParseChannelID accepts the decimal form used on the wire.
func ParseChannelID(s string) (ChannelID, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return ChannelID(id), nil
}

// MessageID is the durable ordering key of a message.
type MessageID uint64

type SessionID uuid.UUID

func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

func (s SessionID) String() string {
	return uuid.UUID(s).String()
}
