package repositories

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// Entry is a human readable view of a raw key/value pair, used by the
// debug inspector and cmd/inspect. Password hashes are never exposed.
type Entry struct {
	Key       string
	Kind      string
	ID        string
	Timestamp time.Time
	Detail    string
}

func Describe(key string, val []byte) Entry {
	entry := Entry{Key: key, Kind: "RAW", Detail: fmt.Sprintf("%d bytes", len(val))}
	switch {
	case strings.HasPrefix(key, PrefixMessage):
		var record messageRecord
		if unmarshal(val, &record) != nil {
			return entry
		}
		entry.Kind = "MESSAGE"
		entry.ID = fmt.Sprintf("%d/%d", record.ChannelID, record.ID)
		entry.Timestamp = time.Unix(0, record.CreatedAt).UTC()
		entry.Detail = fmt.Sprintf("%s: %s", shortID(record.AuthorID), record.Body)
	case strings.HasPrefix(key, PrefixChannelName):
		entry.Kind = "CHANNEL_NAME"
		entry.ID = strings.TrimPrefix(key, PrefixChannelName)
		entry.Detail = "channel " + string(val)
	case strings.HasPrefix(key, PrefixChannel):
		var record channelRecord
		if unmarshal(val, &record) != nil {
			return entry
		}
		entry.Kind = "CHANNEL"
		entry.ID = fmt.Sprintf("%d", record.ID)
		entry.Timestamp = time.Unix(0, record.CreatedAt).UTC()
		entry.Detail = record.Name
	case strings.HasPrefix(key, PrefixUserEmail):
		entry.Kind = "USER_EMAIL"
		entry.ID = shortID(string(val))
		entry.Detail = strings.TrimPrefix(key, PrefixUserEmail)
	case strings.HasPrefix(key, PrefixUser):
		var record userRecord
		if unmarshal(val, &record) != nil {
			return entry
		}
		entry.Kind = "USER"
		entry.ID = shortID(record.ID)
		entry.Timestamp = time.Unix(0, record.CreatedAt).UTC()
		entry.Detail = fmt.Sprintf("%s <%s>", record.Name, record.Email)
	case key == sequenceChannel || key == sequenceMessage:
		entry.Kind = "SEQUENCE"
		if len(val) == 8 {
			entry.Detail = fmt.Sprintf("leased up to %d", binary.BigEndian.Uint64(val))
		}
	}
	return entry
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
