//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"channel-chat/domain"
	"channel-chat/domain/event"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself, the supervisor restarts it after a panic.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is the outbound side of one live connection.
// Consume must not block: a sink that cannot accept an event returns an error.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IMessageStore is the durable, append-only message log.
type IMessageStore interface {
	Append(ctx context.Context, channelID domain.ChannelID, authorID domain.UserID, body string) (domain.Message, error)
	Page(ctx context.Context, channelID domain.ChannelID, cursor domain.Cursor, limit int) ([]domain.Message, error)
}

// IChannelStore persists channels and enforces name uniqueness.
type IChannelStore interface {
	Create(ctx context.Context, name string) (domain.Channel, error)
	Get(ctx context.Context, id domain.ChannelID) (domain.Channel, error)
	List(ctx context.Context) ([]domain.Channel, error)
}

// TokenVerifier resolves a session token to an identity.
type TokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type IChannelRegistry interface {
	Create(ctx context.Context, name string) (domain.Channel, error)
	List(ctx context.Context) ([]domain.Channel, error)
	Exists(ctx context.Context, id domain.ChannelID) (bool, error)
	MemberCount(ctx context.Context, id domain.ChannelID) (int, error)
	IsMember(ctx context.Context, id domain.ChannelID, userID domain.UserID) (bool, error)
}

// IMembership mutates user level membership across every live session.
type IMembership interface {
	JoinUser(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) error
	LeaveUser(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) error
}

type IPresence interface {
	Snapshot() []domain.OnlineUser
	Changes() <-chan struct{}
}

// IBroadcaster delivers an event to every open session and returns how many accepted it.
type IBroadcaster interface {
	Broadcast(ctx context.Context, e event.DomainEvent) int
}

// ContentFilter masks forbidden words and reports the ones it found.
type ContentFilter interface {
	Censor(text string) (string, []string)
}
