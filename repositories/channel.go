package repositories

import (
	"channel-chat/domain"
	"channel-chat/errors"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const maxConflictRetries = 3

type ChannelRepository struct {
	db  *badger.DB
	log *slog.Logger
	seq *badger.Sequence
	now func() time.Time
}

type channelRecord struct {
	ID        uint64 `cbor:"1,keyasint"`
	Name      string `cbor:"2,keyasint"`
	CreatedAt int64  `cbor:"3,keyasint"`
}

func NewChannelRepository(db *badger.DB, log *slog.Logger) (*ChannelRepository, error) {
	seq, err := db.GetSequence([]byte(sequenceChannel), sequenceBand)
	if err != nil {
		return nil, errors.Storage("channel sequence", err)
	}
	return &ChannelRepository{db: db, log: log, seq: seq, now: time.Now}, nil
}

// Close hands the leased sequence range back to the store.
func (r *ChannelRepository) Close() error {
	return r.seq.Release()
}

// Create persists a channel. The name index is read and written in the same
// transaction, so two concurrent creations of the same name conflict and the
// retry observes the winner.
func (r *ChannelRepository) Create(ctx context.Context, name string) (domain.Channel, error) {
	name, ok := domain.NormalizeChannelName(name)
	if !ok {
		return domain.Channel{}, errors.ErrInvalidChannelName
	}
	if err := guard(ctx, "create channel"); err != nil {
		return domain.Channel{}, err
	}

	next, err := r.seq.Next()
	if err != nil {
		return domain.Channel{}, errors.Storage("channel sequence", err)
	}
	channel := domain.Channel{
		ID:        domain.ChannelID(next + 1),
		Name:      name,
		CreatedAt: r.now().UTC(),
	}
	data, err := marshal(toChannelRecord(channel))
	if err != nil {
		return domain.Channel{}, err
	}

	for attempt := 0; ; attempt++ {
		err = r.db.Update(func(txn *badger.Txn) error {
			nameKey := channelNameKey(name)
			if _, err := txn.Get(nameKey); err == nil {
				return errors.ErrDuplicateName
			} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(nameKey, []byte(channel.ID.String())); err != nil {
				return err
			}
			return txn.Set(channelKey(channel.ID), data)
		})
		if !stderrors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			break
		}
		r.log.Debug("Channel creation conflicted, retrying", "name", name, "attempt", attempt+1)
	}
	switch {
	case err == nil:
		return channel, guard(ctx, "create channel")
	case stderrors.Is(err, errors.ErrDuplicateName):
		return domain.Channel{}, err
	default:
		return domain.Channel{}, errors.Storage("create channel", err)
	}
}

func (r *ChannelRepository) Get(ctx context.Context, id domain.ChannelID) (domain.Channel, error) {
	if err := guard(ctx, "get channel"); err != nil {
		return domain.Channel{}, err
	}
	var record channelRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(channelKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshal(val, &record)
		})
	})
	switch {
	case err == nil:
		return toChannel(record), nil
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return domain.Channel{}, errors.ErrChannelNotFound
	default:
		return domain.Channel{}, errors.Storage("get channel", err)
	}
}

// GetByName resolves a channel through the name index.
func (r *ChannelRepository) GetByName(ctx context.Context, name string) (domain.Channel, error) {
	if err := guard(ctx, "get channel by name"); err != nil {
		return domain.Channel{}, err
	}
	var id domain.ChannelID
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(channelNameKey(name))
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		parsed, err := strconv.ParseUint(string(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupted name index for %q: %w", name, err)
		}
		id = domain.ChannelID(parsed)
		return nil
	})
	switch {
	case err == nil:
		return r.Get(ctx, id)
	case stderrors.Is(err, badger.ErrKeyNotFound):
		return domain.Channel{}, errors.ErrChannelNotFound
	default:
		return domain.Channel{}, errors.Storage("get channel by name", err)
	}
}

// List returns every channel in id order.
func (r *ChannelRepository) List(ctx context.Context) ([]domain.Channel, error) {
	if err := guard(ctx, "list channels"); err != nil {
		return nil, err
	}
	channels := make([]domain.Channel, 0)
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(PrefixChannel)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record channelRecord
			if err := it.Item().Value(func(val []byte) error {
				return unmarshal(val, &record)
			}); err != nil {
				return err
			}
			channels = append(channels, toChannel(record))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Storage("list channels", err)
	}
	return channels, nil
}

func toChannelRecord(c domain.Channel) channelRecord {
	return channelRecord{ID: uint64(c.ID), Name: c.Name, CreatedAt: c.CreatedAt.UnixNano()}
}

func toChannel(r channelRecord) domain.Channel {
	return domain.Channel{
		ID:        domain.ChannelID(r.ID),
		Name:      r.Name,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}
