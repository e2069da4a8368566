package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const MaxChannelNameLength = 64

type Channel struct {
	ID        ChannelID
	Name      string
	CreatedAt time.Time
}

// NormalizeChannelName trims the name and reports whether it is usable.
func NormalizeChannelName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxChannelNameLength {
		return "", false
	}
	return name, true
}

// ChannelNameKey is the case-insensitive form used for uniqueness.
func ChannelNameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
