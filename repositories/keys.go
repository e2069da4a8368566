package repositories

import (
	"channel-chat/domain"
	"channel-chat/errors"
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Key layout. Numeric parts are zero padded to 20 digits so that the
// lexicographic order of Badger keys matches the numeric order.
const (
	PrefixChannel     = "channel:"
	PrefixChannelName = "channel_name:"
	PrefixMessage     = "msg:"
	PrefixUser        = "user:"
	PrefixUserEmail   = "user_email:"

	sequenceChannel = "seq:channel"
	sequenceMessage = "seq:message"
	sequenceBand    = 100
)

func channelKey(id domain.ChannelID) []byte {
	return []byte(fmt.Sprintf("%s%020d", PrefixChannel, uint64(id)))
}

func channelNameKey(name string) []byte {
	return []byte(PrefixChannelName + domain.ChannelNameKey(name))
}

func messagePrefix(channelID domain.ChannelID) []byte {
	return []byte(fmt.Sprintf("%s%020d:", PrefixMessage, uint64(channelID)))
}

func messageKey(channelID domain.ChannelID, id domain.MessageID) []byte {
	return []byte(fmt.Sprintf("%s%020d:%020d", PrefixMessage, uint64(channelID), uint64(id)))
}

func userKey(id domain.UserID) []byte {
	return []byte(PrefixUser + string(id))
}

func userEmailKey(email string) []byte {
	return []byte(PrefixUserEmail + NormalizeEmail(email))
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseMessageKey splits a message key into its channel and message ids.
func ParseMessageKey(key string) (domain.ChannelID, domain.MessageID, bool) {
	rest, ok := strings.CutPrefix(key, PrefixMessage)
	if !ok {
		return 0, 0, false
	}
	channelPart, idPart, ok := strings.Cut(rest, ":")
	if !ok {
		return 0, 0, false
	}
	channelID, err := strconv.ParseUint(channelPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return domain.ChannelID(channelID), domain.MessageID(id), true
}

// guard refuses to start, or to report success for, an operation whose
// context is already done.
func guard(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errors.Storage(op, err)
	}
	return nil
}
