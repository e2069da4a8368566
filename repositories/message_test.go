package repositories

import (
	"channel-chat/domain"
	"channel-chat/errors"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type fixture struct {
	db       *badger.DB
	channels *ChannelRepository
	messages *MessageRepository
	users    IUserRepository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := openDB(t)
	channels, err := NewChannelRepository(db, slog.Default())
	require.NoError(t, err)
	messages, err := NewMessageRepository(db, slog.Default())
	require.NoError(t, err)
	return fixture{db: db, channels: channels, messages: messages, users: NewUserRepository(db)}
}

// steppingClock returns a clock advancing by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := start.Add(-step)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(step)
		return current
	}
}

func Test_Append_Unknown_Channel_Persists_Nothing(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	// When a message is appended to a channel that was never created
	_, err := f.messages.Append(ctx, domain.ChannelID(42), "alice", "hello")

	// Then it fails as not found
	req.ErrorIs(err, errors.ErrChannelNotFound)
	req.ErrorIs(err, errors.ErrNotFound)

	// And nothing was written
	page, err := f.messages.Page(ctx, domain.ChannelID(42), domain.Cursor{}, 10)
	req.NoError(err)
	req.Empty(page)
}

func Test_Append_Empty_Body(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	channel, err := f.channels.Create(ctx, "general")
	req.NoError(err)

	_, err = f.messages.Append(ctx, channel.ID, "alice", "   ")

	req.ErrorIs(err, errors.ErrEmptyBody)
	req.ErrorIs(err, errors.ErrValidation)
}

func Test_Page_Newest_First_With_Author_Name(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	alice, err := f.users.CreateUser(ctx, "Alice", "alice@example.com", "hash")
	req.NoError(err)
	channel, err := f.channels.Create(ctx, "general")
	req.NoError(err)

	// Given three messages
	for _, body := range []string{"one", "two", "three"} {
		_, err = f.messages.Append(ctx, channel.ID, alice.ID, body)
		req.NoError(err)
	}

	// When the newest page is read
	page, err := f.messages.Page(ctx, channel.ID, domain.Cursor{}, 10)

	// Then messages come newest first, joined with the author name
	req.NoError(err)
	req.Len(page, 3)
	req.Equal([]string{"three", "two", "one"}, bodies(page))
	for _, m := range page {
		req.Equal("Alice", m.AuthorName)
		req.Equal(channel.ID, m.ChannelID)
	}
	req.Greater(page[0].ID, page[1].ID)
	req.Greater(page[1].ID, page[2].ID)
}

func Test_Page_Is_Scoped_To_Channel(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	general, err := f.channels.Create(ctx, "general")
	req.NoError(err)
	random, err := f.channels.Create(ctx, "random")
	req.NoError(err)

	_, err = f.messages.Append(ctx, general.ID, "alice", "in general")
	req.NoError(err)
	_, err = f.messages.Append(ctx, random.ID, "alice", "in random")
	req.NoError(err)

	page, err := f.messages.Page(ctx, general.ID, domain.Cursor{}, 10)
	req.NoError(err)
	req.Equal([]string{"in general"}, bodies(page))
}

func Test_Pagination_Round_Trip(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	channel, err := f.channels.Create(ctx, "general")
	req.NoError(err)

	// Given 23 messages
	var inserted []domain.MessageID
	for i := 0; i < 23; i++ {
		m, err := f.messages.Append(ctx, channel.ID, "alice", fmt.Sprintf("message %d", i))
		req.NoError(err)
		inserted = append(inserted, m.ID)
	}

	// When pages of 5 are read until an empty page comes back
	var collected []domain.MessageID
	cursor := domain.Cursor{}
	for {
		page, err := f.messages.Page(ctx, channel.ID, cursor, 5)
		req.NoError(err)
		if len(page) == 0 {
			break
		}
		req.LessOrEqual(len(page), 5)
		for _, m := range page {
			collected = append(collected, m.ID)
		}
		cursor = domain.Cursor{Before: page[len(page)-1].ID}
	}

	// Then the reversed concatenation is the full history without gaps or duplicates
	slices.Reverse(collected)
	req.Equal(inserted, collected)
}

func Test_Pagination_Same_Timestamp_Uses_Id(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	frozen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.messages.WithClock(func() time.Time { return frozen })
	channel, err := f.channels.Create(ctx, "general")
	req.NoError(err)

	// Given seven messages sharing the same timestamp
	var inserted []domain.MessageID
	for i := 0; i < 7; i++ {
		m, err := f.messages.Append(ctx, channel.ID, "alice", fmt.Sprintf("tick %d", i))
		req.NoError(err)
		req.Equal(frozen, m.CreatedAt)
		inserted = append(inserted, m.ID)
	}

	// When paginating by id with pages of 3
	var collected []domain.MessageID
	cursor := domain.Cursor{}
	for {
		page, err := f.messages.Page(ctx, channel.ID, cursor, 3)
		req.NoError(err)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			collected = append(collected, m.ID)
		}
		cursor = domain.Cursor{Before: page[len(page)-1].ID}
	}

	// Then no message is lost nor repeated
	slices.Reverse(collected)
	req.Equal(inserted, collected)
}

func Test_Page_Before_Timestamp_Of_Fifth_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.messages.WithClock(steppingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute))
	channel, err := f.channels.Create(ctx, "general")
	req.NoError(err)

	var messages []domain.Message
	for i := 1; i <= 6; i++ {
		m, err := f.messages.Append(ctx, channel.ID, "alice", fmt.Sprintf("#%d", i))
		req.NoError(err)
		messages = append(messages, m)
	}

	// When asking for messages before the timestamp of #5 with a limit of 3
	page, err := f.messages.Page(ctx, channel.ID, domain.Cursor{BeforeAt: messages[4].CreatedAt}, 3)

	// Then exactly #4, #3 and #2 are returned
	req.NoError(err)
	req.Equal([]string{"#4", "#3", "#2"}, bodies(page))

	// And the id cursor gives the same page
	page, err = f.messages.Page(ctx, channel.ID, domain.Cursor{Before: messages[4].ID}, 3)
	req.NoError(err)
	req.Equal([]string{"#4", "#3", "#2"}, bodies(page))
}

func Test_Concurrent_Appends_Get_Distinct_Increasing_Ids(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	channel, err := f.channels.Create(ctx, "general")
	req.NoError(err)

	const writers = 20
	var wg sync.WaitGroup
	ids := make(chan domain.MessageID, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := f.messages.Append(ctx, channel.ID, "alice", fmt.Sprintf("w%d", i))
			if err == nil {
				ids <- m.ID
			}
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[domain.MessageID]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	req.Len(seen, writers)

	page, err := f.messages.Page(ctx, channel.ID, domain.Cursor{}, writers)
	req.NoError(err)
	req.Len(page, writers)
	for i := 1; i < len(page); i++ {
		req.Greater(page[i-1].ID, page[i].ID)
	}
}

func Test_Canceled_Context_Is_Storage_Unavailable(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	channel, err := f.channels.Create(context.Background(), "general")
	req.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.messages.Append(ctx, channel.ID, "alice", "late")
	req.ErrorIs(err, errors.ErrStorageUnavailable)
	_, err = f.messages.Page(ctx, channel.ID, domain.Cursor{}, 10)
	req.ErrorIs(err, errors.ErrStorageUnavailable)
}

func Test_Parse_Message_Key(t *testing.T) {
	req := require.New(t)

	channelID, id, ok := ParseMessageKey(string(messageKey(7, 1234)))
	req.True(ok)
	req.Equal(domain.ChannelID(7), channelID)
	req.Equal(domain.MessageID(1234), id)

	_, _, ok = ParseMessageKey("channel:0001")
	req.False(ok)
}

func bodies(messages []domain.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.Body)
	}
	return out
}
