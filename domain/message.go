package domain

import "time"

// Message is immutable once persisted. AuthorName is joined on read.
type Message struct {
	ID         MessageID
	ChannelID  ChannelID
	AuthorID   UserID
	AuthorName string
	Body       string
	CreatedAt  time.Time
}

// Cursor bounds a history page. The zero value selects the newest page.
// When both are set, Before wins.
type Cursor struct {
	Before   MessageID
	BeforeAt time.Time
}

func (c Cursor) IsZero() bool {
	return c.Before == 0 && c.BeforeAt.IsZero()
}

// Admits reports whether m is strictly older than the cursor.
func (c Cursor) Admits(m Message) bool {
	switch {
	case c.Before != 0:
		return m.ID < c.Before
	case !c.BeforeAt.IsZero():
		return m.CreatedAt.Before(c.BeforeAt)
	default:
		return true
	}
}
