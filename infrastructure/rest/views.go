package rest

import (
	"channel-chat/domain"
	"channel-chat/observability"
	"time"

	"github.com/samber/lo"
)

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

type loginResponse struct {
	Message string   `json:"message"`
	Token   string   `json:"token"`
	User    userView `json:"user"`
}

type createChannelRequest struct {
	Name string `json:"name"`
}

type channelRequest struct {
	ChannelID domain.ChannelID `json:"channel_id"`
}

type channelView struct {
	ID        domain.ChannelID `json:"id"`
	Name      string           `json:"name"`
	CreatedAt time.Time        `json:"created_at"`
}

type createChannelResponse struct {
	Message string      `json:"message"`
	Channel channelView `json:"channel"`
}

type membersResponse struct {
	Count int `json:"count"`
}

type historyView struct {
	ID        domain.MessageID `json:"id"`
	ChannelID domain.ChannelID `json:"channel_id"`
	Message   string           `json:"message"`
	UserID    domain.UserID    `json:"user_id"`
	Username  string           `json:"username"`
	Timestamp time.Time        `json:"timestamp"`
}

type healthResponse struct {
	Status string              `json:"status"`
	Stats  observability.Stats `json:"stats"`
}

func toChannelView(c domain.Channel) channelView {
	return channelView{ID: c.ID, Name: c.Name, CreatedAt: c.CreatedAt}
}

func toChannelViews(channels []domain.Channel) []channelView {
	return lo.Map(channels, func(c domain.Channel, _ int) channelView {
		return toChannelView(c)
	})
}

func toHistoryViews(messages []domain.Message) []historyView {
	return lo.Map(messages, func(m domain.Message, _ int) historyView {
		return historyView{
			ID:        m.ID,
			ChannelID: m.ChannelID,
			Message:   m.Body,
			UserID:    m.AuthorID,
			Username:  m.AuthorName,
			Timestamp: m.CreatedAt,
		}
	})
}
