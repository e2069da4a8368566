//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"channel-chat/domain"
	"channel-chat/errors"
	"context"
	stderrors "errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(ctx context.Context, name, email, hashedPassword string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByID(ctx context.Context, id domain.UserID) (domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

type userRecord struct {
	ID           string `cbor:"1,keyasint"`
	Name         string `cbor:"2,keyasint"`
	Email        string `cbor:"3,keyasint"`
	PasswordHash string `cbor:"4,keyasint"`
	CreatedAt    int64  `cbor:"5,keyasint"`
}

// CreateUser persists the user under "user:{id}" and reserves the email in
// "user_email:{email}" within a single transaction.
// The password must already be hashed.
func (u *UserRepository) CreateUser(ctx context.Context, name, email, hashedPassword string) (domain.User, error) {
	if err := guard(ctx, "create user"); err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		ID:           domain.UserID(uuid.NewString()),
		Name:         name,
		Email:        NormalizeEmail(email),
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := marshal(toUserRecord(user))
	if err != nil {
		return domain.User{}, err
	}

	for attempt := 0; ; attempt++ {
		err = u.db.Update(func(txn *badger.Txn) error {
			emailKey := userEmailKey(user.Email)
			if _, err := txn.Get(emailKey); err == nil {
				return errors.ErrUserAlreadyExists
			} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Set(emailKey, []byte(user.ID)); err != nil {
				return err
			}
			return txn.Set(userKey(user.ID), data)
		})
		if !stderrors.Is(err, badger.ErrConflict) || attempt >= maxConflictRetries {
			break
		}
	}
	switch {
	case err == nil:
		return user, nil
	case stderrors.Is(err, errors.ErrUserAlreadyExists):
		return domain.User{}, err
	default:
		return domain.User{}, errors.Storage("create user", err)
	}
}

func (u *UserRepository) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	if err := guard(ctx, "get user by email"); err != nil {
		return domain.User{}, err
	}
	var record userRecord
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(email))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return readUser(txn, domain.UserID(id), &record)
	})
	if err != nil {
		return domain.User{}, userError("get user by email", err)
	}
	return toUser(record), nil
}

func (u *UserRepository) GetUserByID(ctx context.Context, id domain.UserID) (domain.User, error) {
	if err := guard(ctx, "get user"); err != nil {
		return domain.User{}, err
	}
	var record userRecord
	err := u.db.View(func(txn *badger.Txn) error {
		return readUser(txn, id, &record)
	})
	if err != nil {
		return domain.User{}, userError("get user", err)
	}
	return toUser(record), nil
}

func readUser(txn *badger.Txn, id domain.UserID, record *userRecord) error {
	item, err := txn.Get(userKey(id))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return unmarshal(val, record)
	})
}

func userError(op string, err error) error {
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return errors.ErrUserNotFound
	}
	return errors.Storage(op, err)
}

func toUserRecord(u domain.User) userRecord {
	return userRecord{
		ID:           string(u.ID),
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt.UnixNano(),
	}
}

func toUser(r userRecord) domain.User {
	return domain.User{
		ID:           domain.UserID(r.ID),
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		CreatedAt:    time.Unix(0, r.CreatedAt).UTC(),
	}
}
