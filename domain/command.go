package domain

// Command is a channel scoped request issued by a live connection.
type Command interface {
	ChannelID() ChannelID
}

type JoinChannelCommand struct {
	Channel ChannelID
}

func (c JoinChannelCommand) ChannelID() ChannelID { return c.Channel }

type LeaveChannelCommand struct {
	Channel ChannelID
}

func (c LeaveChannelCommand) ChannelID() ChannelID { return c.Channel }

// SendMessageCommand carries no author: the author is always the session.
type SendMessageCommand struct {
	Channel ChannelID
	Body    string
}

func (c SendMessageCommand) ChannelID() ChannelID { return c.Channel }
