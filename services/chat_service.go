//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"channel-chat/auth"
	"channel-chat/contract"
	"channel-chat/domain"
	"channel-chat/errors"
	"context"
	"log/slog"
	"slices"
)

type IChatService interface {
	CreateChannel(ctx context.Context, name string) (domain.Channel, error)
	ListChannels(ctx context.Context) ([]domain.Channel, error)
	JoinChannel(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) error
	LeaveChannel(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) error
	MemberCount(ctx context.Context, channelID domain.ChannelID) (int, error)
	History(ctx context.Context, userID domain.UserID, channelID domain.ChannelID, cursor domain.Cursor, limit int) ([]domain.Message, error)
}

// ChatService is the use case layer behind the REST surface.
type ChatService struct {
	log        *slog.Logger
	registry   contract.IChannelRegistry
	membership contract.IMembership
	messages   contract.IMessageStore
	pageSize   int
}

func NewChatService(log *slog.Logger, registry contract.IChannelRegistry, membership contract.IMembership,
	messages contract.IMessageStore, pageSize int) *ChatService {
	return &ChatService{
		log:        log,
		registry:   registry,
		membership: membership,
		messages:   messages,
		pageSize:   pageSize,
	}
}

func (s *ChatService) CreateChannel(ctx context.Context, name string) (domain.Channel, error) {
	if err := auth.ValidateCreateChannel(auth.CreateChannelRequest{Name: name}); err != nil {
		return domain.Channel{}, err
	}
	return s.registry.Create(ctx, name)
}

func (s *ChatService) ListChannels(ctx context.Context) ([]domain.Channel, error) {
	return s.registry.List(ctx)
}

func (s *ChatService) JoinChannel(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) error {
	return s.membership.JoinUser(ctx, userID, channelID)
}

func (s *ChatService) LeaveChannel(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) error {
	return s.membership.LeaveUser(ctx, userID, channelID)
}

func (s *ChatService) MemberCount(ctx context.Context, channelID domain.ChannelID) (int, error) {
	return s.registry.MemberCount(ctx, channelID)
}

// History returns one page of messages older than the cursor, oldest first.
// Only members of the channel may read it. A limit outside (0, page size]
// falls back to the configured page size.
func (s *ChatService) History(ctx context.Context, userID domain.UserID, channelID domain.ChannelID,
	cursor domain.Cursor, limit int) ([]domain.Message, error) {
	member, err := s.registry.IsMember(ctx, channelID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, errors.ErrNotSubscribed
	}
	if limit <= 0 || limit > s.pageSize {
		limit = s.pageSize
	}
	page, err := s.messages.Page(ctx, channelID, cursor, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(page)
	s.log.Debug("History served", "channel_id", channelID, "user_id", userID, "count", len(page))
	return page, nil
}
