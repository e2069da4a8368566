package runtime

import (
	"channel-chat/domain"
	"channel-chat/errors"
	"channel-chat/moderation"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRouter_General_Scenario(t *testing.T) {
	req := require.New(t)
	c := newCore(t)
	ctx := context.Background()
	alice, aliceToken := c.signup(t, "alice")
	_, bobToken := c.signup(t, "bob")
	general := c.channel(t, "general")

	// Given A and B both joined "general"
	aliceSession, aliceSink := c.open(t, aliceToken)
	bobSession, bobSink := c.open(t, bobToken)
	req.NoError(c.Sessions.Join(ctx, aliceSession, general.ID))
	req.NoError(c.Sessions.Join(ctx, bobSession, general.ID))

	// When A sends "hi"
	message, err := c.Router.Submit(ctx, aliceSession, general.ID, "hi")
	req.NoError(err)

	// Then both receive exactly one receive_message carrying A's identity
	for _, sink := range []*recordingSink{aliceSink, bobSink} {
		received := sink.received()
		req.Len(received, 1)
		req.Equal("hi", received[0].Body)
		req.Equal(alice.UserID, received[0].AuthorID)
		req.Equal("alice", received[0].AuthorName)
		req.Equal(message.ID, received[0].ID)
	}

	// And history holds the message with A's username
	page, err := c.messages.Page(ctx, general.ID, domain.Cursor{}, 10)
	req.NoError(err)
	req.Len(page, 1)
	req.Equal("hi", page[0].Body)
	req.Equal("alice", page[0].AuthorName)
}

func TestRouter_Leave_Scenario(t *testing.T) {
	req := require.New(t)
	c := newCore(t)
	ctx := context.Background()
	_, aliceToken := c.signup(t, "alice")
	_, bobToken := c.signup(t, "bob")
	general := c.channel(t, "general")

	aliceSession, aliceSink := c.open(t, aliceToken)
	bobSession, bobSink := c.open(t, bobToken)
	req.NoError(c.Sessions.Join(ctx, aliceSession, general.ID))
	req.NoError(c.Sessions.Join(ctx, bobSession, general.ID))

	// When B leaves and A sends
	req.NoError(c.Sessions.Leave(ctx, bobSession, general.ID))
	_, err := c.Router.Submit(ctx, aliceSession, general.ID, "anyone?")
	req.NoError(err)

	// Then B gets nothing and A gets its own message
	req.Empty(bobSink.received())
	req.Equal([]string{"anyone?"}, bodiesOf(aliceSink.received()))

	// And B can no longer send there
	_, err = c.Router.Submit(ctx, bobSession, general.ID, "me too")
	req.ErrorIs(err, errors.ErrNotSubscribed)
}

func TestRouter_Unknown_Channel_Persists_Nothing(t *testing.T) {
	req := require.New(t)
	c := newCore(t)
	ctx := context.Background()
	_, token := c.signup(t, "alice")
	session, _ := c.open(t, token)

	_, err := c.Router.Submit(ctx, session, domain.ChannelID(77), "hello")

	req.ErrorIs(err, errors.ErrChannelNotFound)
	page, err := c.messages.Page(ctx, domain.ChannelID(77), domain.Cursor{}, 10)
	req.NoError(err)
	req.Empty(page)
}

func TestRouter_Rejects_Invalid_Bodies(t *testing.T) {
	req := require.New(t)
	c := newCore(t)
	ctx := context.Background()
	_, token := c.signup(t, "alice")
	general := c.channel(t, "general")
	session, sink := c.open(t, token)
	req.NoError(c.Sessions.Join(ctx, session, general.ID))

	_, err := c.Router.Submit(ctx, session, general.ID, " \n\t ")
	req.ErrorIs(err, errors.ErrEmptyBody)

	_, err = c.Router.Submit(ctx, session, general.ID, strings.Repeat("é", 2001))
	req.ErrorIs(err, errors.ErrBodyTooLong)

	message, err := c.Router.Submit(ctx, session, general.ID, "  trimmed  ")
	req.NoError(err)
	req.Equal("trimmed", message.Body)
	req.Len(sink.received(), 1)
}

func TestRouter_Failing_Sink_Does_Not_Affect_Others(t *testing.T) {
	req := require.New(t)
	c := newCore(t)
	ctx := context.Background()
	_, aliceToken := c.signup(t, "alice")
	_, bobToken := c.signup(t, "bob")
	_, carolToken := c.signup(t, "carol")
	general := c.channel(t, "general")

	aliceSession, aliceSink := c.open(t, aliceToken)
	bobSession, bobSink := c.open(t, bobToken)
	carolSession, carolSink := c.open(t, carolToken)
	for _, s := range []*Session{aliceSession, bobSession, carolSession} {
		req.NoError(c.Sessions.Join(ctx, s, general.ID))
	}

	// Given B's connection cannot keep up
	bobSink.mu.Lock()
	bobSink.err = errors.ErrSlowConsumer
	bobSink.mu.Unlock()

	// When A sends
	_, err := c.Router.Submit(ctx, aliceSession, general.ID, "still here")

	// Then the message is persisted and the others receive it
	req.NoError(err)
	req.Len(aliceSink.received(), 1)
	req.Len(carolSink.received(), 1)
	req.Empty(bobSink.received())
	req.Equal(uint64(1), c.monitoring.Snapshot().DeliveryFailures)

	page, err := c.messages.Page(ctx, general.ID, domain.Cursor{}, 10)
	req.NoError(err)
	req.Len(page, 1)
}

func TestRouter_Concurrent_Senders_Share_One_Order(t *testing.T) {
	req := require.New(t)
	c := newCore(t)
	ctx := context.Background()
	general := c.channel(t, "general")

	const senders, perSender = 5, 20
	sessions := make([]*Session, 0, senders)
	sinks := make([]*recordingSink, 0, senders)
	for i := 0; i < senders; i++ {
		_, token := c.signup(t, fmt.Sprintf("user%d", i))
		session, sink := c.open(t, token)
		req.NoError(c.Sessions.Join(ctx, session, general.ID))
		sessions = append(sessions, session)
		sinks = append(sinks, sink)
	}

	// When every session sends concurrently
	var wg sync.WaitGroup
	for i, session := range sessions {
		wg.Add(1)
		go func(i int, session *Session) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				_, err := c.Router.Submit(ctx, session, general.ID, fmt.Sprintf("%d-%d", i, j))
				if err != nil {
					t.Errorf("submit: %v", err)
				}
			}
		}(i, session)
	}
	wg.Wait()

	// Then every subscriber saw the same sequence, in id order
	reference := sinks[0].received()
	req.Len(reference, senders*perSender)
	for i := 1; i < len(reference); i++ {
		req.Greater(reference[i].ID, reference[i-1].ID)
	}
	for _, sink := range sinks[1:] {
		req.Equal(reference, sink.received())
	}
}

func TestRouter_Censors_Before_Persisting(t *testing.T) {
	req := require.New(t)
	c := newCore(t)
	ctx := context.Background()
	moderator, err := moderation.NewModerator(slog.Default(), []string{"badger"}, '*')
	req.NoError(err)
	c.Router.WithFilter(moderator)
	_, aliceToken := c.signup(t, "alice")
	general := c.channel(t, "general")
	session, sink := c.open(t, aliceToken)
	req.NoError(c.Sessions.Join(ctx, session, general.ID))

	// When a body contains a forbidden word in leet speak
	message, err := c.Router.Submit(ctx, session, general.ID, "the B4DG3R is here")

	// Then the stored and delivered body is masked
	req.NoError(err)
	req.Equal("the ****** is here", message.Body)
	req.Equal([]string{"the ****** is here"}, bodiesOf(sink.received()))
	page, err := c.messages.Page(ctx, general.ID, domain.Cursor{}, 10)
	req.NoError(err)
	req.Equal("the ****** is here", page[0].Body)
	req.Equal(uint64(1), c.monitoring.Snapshot().MessagesCensored)
}
