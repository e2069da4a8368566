package repositories

import (
	"channel-chat/domain"
	"channel-chat/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
	seq *badger.Sequence
	now func() time.Time
}

type messageRecord struct {
	ID        uint64 `cbor:"1,keyasint"`
	ChannelID uint64 `cbor:"2,keyasint"`
	AuthorID  string `cbor:"3,keyasint"`
	Body      string `cbor:"4,keyasint"`
	CreatedAt int64  `cbor:"5,keyasint"`
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) (*MessageRepository, error) {
	seq, err := db.GetSequence([]byte(sequenceMessage), sequenceBand)
	if err != nil {
		return nil, errors.Storage("message sequence", err)
	}
	return &MessageRepository{db: db, log: log, seq: seq, now: time.Now}, nil
}

// WithClock replaces the time source used to stamp new messages.
func (r *MessageRepository) WithClock(now func() time.Time) *MessageRepository {
	r.now = now
	return r
}

func (r *MessageRepository) Close() error {
	return r.seq.Release()
}

// Append persists a message.
// The key is formatted as "msg:{channel_id}:{message_id}", both zero padded,
// so a reverse prefix scan yields the channel history newest first.
// The id comes from a Badger sequence: strictly increasing and never reused,
// even across restarts. The channel is checked inside the write transaction.
func (r *MessageRepository) Append(ctx context.Context, channelID domain.ChannelID,
	authorID domain.UserID, body string) (domain.Message, error) {
	if strings.TrimSpace(body) == "" {
		return domain.Message{}, errors.ErrEmptyBody
	}
	if err := guard(ctx, "append message"); err != nil {
		return domain.Message{}, err
	}

	next, err := r.seq.Next()
	if err != nil {
		return domain.Message{}, errors.Storage("message sequence", err)
	}
	message := domain.Message{
		ID:        domain.MessageID(next + 1),
		ChannelID: channelID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: r.now().UTC(),
	}
	data, err := marshal(toMessageRecord(message))
	if err != nil {
		return domain.Message{}, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(channelKey(channelID)); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return errors.ErrChannelNotFound
			}
			return err
		}
		name, err := authorName(txn, authorID)
		if err != nil {
			return err
		}
		message.AuthorName = name
		return txn.Set(messageKey(channelID, message.ID), data)
	})
	switch {
	case err == nil:
		return message, nil
	case stderrors.Is(err, errors.ErrChannelNotFound):
		return domain.Message{}, err
	default:
		return domain.Message{}, errors.Storage("append message", err)
	}
}

// Page returns up to limit messages strictly older than the cursor, newest
// first, each joined with its author display name. An empty page means the
// history is exhausted.
func (r *MessageRepository) Page(ctx context.Context, channelID domain.ChannelID,
	cursor domain.Cursor, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", errors.ErrValidation)
	}
	if err := guard(ctx, "page messages"); err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, limit)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(channelID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Reverse iteration seeks to the greatest key lower or equal to the seek key.
		var seekKey []byte
		if cursor.Before != 0 {
			seekKey = messageKey(channelID, cursor.Before-1)
		} else {
			seekKey = append(append([]byte{}, prefix...), 0xFF)
		}

		names := make(map[domain.UserID]string)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if len(messages) == limit {
				break
			}
			var record messageRecord
			if err := it.Item().Value(func(val []byte) error {
				return unmarshal(val, &record)
			}); err != nil {
				return err
			}
			message := toMessage(record)
			if !cursor.Admits(message) {
				continue
			}
			name, ok := names[message.AuthorID]
			if !ok {
				var err error
				if name, err = authorName(txn, message.AuthorID); err != nil {
					return err
				}
				names[message.AuthorID] = name
			}
			message.AuthorName = name
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Storage("page messages", err)
	}
	r.log.Debug("History page read", "channel_id", channelID, "count", len(messages))
	return messages, guard(ctx, "page messages")
}

// authorName resolves a display name, empty when the user record is absent.
func authorName(txn *badger.Txn, id domain.UserID) (string, error) {
	item, err := txn.Get(userKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var record userRecord
	if err = item.Value(func(val []byte) error {
		return unmarshal(val, &record)
	}); err != nil {
		return "", err
	}
	return record.Name, nil
}

func toMessageRecord(m domain.Message) messageRecord {
	return messageRecord{
		ID:        uint64(m.ID),
		ChannelID: uint64(m.ChannelID),
		AuthorID:  string(m.AuthorID),
		Body:      m.Body,
		CreatedAt: m.CreatedAt.UnixNano(),
	}
}

func toMessage(r messageRecord) domain.Message {
	return domain.Message{
		ID:        domain.MessageID(r.ID),
		ChannelID: domain.ChannelID(r.ChannelID),
		AuthorID:  domain.UserID(r.AuthorID),
		Body:      r.Body,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}
