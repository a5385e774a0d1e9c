package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/tricol-console/internal/config"
	"github.com/stemsi/tricol-console/internal/model"
)

// RedisStore keeps each slot under its own key. Writes go through MULTI so
// readers never see a mix of old and new slots.
type RedisStore struct {
	rdb  *redis.Client
	keys *config.SlotKeyStruct
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore returns a store using keys namespaced by prefix.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, keys: config.NewSlotKeyStruct(prefix)}
}

// Load fetches the three slots in one round trip.
func (s *RedisStore) Load(ctx context.Context) (*model.Session, error) {
	if s.rdb == nil {
		return nil, errors.New("redis client is nil")
	}

	values, err := s.rdb.MGet(ctx, s.keys.AccessTokenKey(), s.keys.RefreshTokenKey(), s.keys.CurrentUserKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load session slots: %w", err)
	}

	slots := make([]string, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			return nil, ErrNoSession
		}
		slots[i] = str
	}
	return assemble(slots[0], slots[1], slots[2])
}

// Save replaces all three slots atomically.
func (s *RedisStore) Save(ctx context.Context, sess *model.Session) error {
	if s.rdb == nil {
		return errors.New("redis client is nil")
	}
	if err := validateForSave(sess); err != nil {
		return err
	}
	user, err := encodeUser(sess.User)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keys.AccessTokenKey(), sess.AccessToken, 0)
	pipe.Set(ctx, s.keys.RefreshTokenKey(), sess.RefreshToken, 0)
	pipe.Set(ctx, s.keys.CurrentUserKey(), user, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session slots: %w", err)
	}
	return nil
}

// Clear deletes all three slots.
func (s *RedisStore) Clear(ctx context.Context) error {
	if s.rdb == nil {
		return errors.New("redis client is nil")
	}
	if err := s.rdb.Del(ctx, s.keys.AccessTokenKey(), s.keys.RefreshTokenKey(), s.keys.CurrentUserKey()).Err(); err != nil {
		return fmt.Errorf("clear session slots: %w", err)
	}
	return nil
}
