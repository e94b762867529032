// Package redis stores presence records as Redis hashes so every relay
// process sharing the Redis instance sees the same presence state.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// swapNickname updates the username field only while the hash exists and
// returns the previous value. A missing hash yields nil (redis.Nil).
var swapNickname = goredis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return false
end
local old = redis.call("HGET", KEYS[1], ARGV[1])
redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
if not old then
	return ""
end
return old
`)

// Store is a Redis-backed presence store.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

var _ store.Store = (*Store)(nil)

// New wraps an existing client. Keys are prefix + connection id.
func New(client goredis.UniversalClient, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) key(connID string) string {
	return s.prefix + connID
}

func (s *Store) Create(ctx context.Context, rec store.Record) error {
	fields := rec.Fields()
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.client.HSet(ctx, s.key(rec.ConnectionID), args...).Err(); err != nil {
		return fmt.Errorf("presence create: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, connID string) (store.Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key(connID)).Result()
	if err != nil {
		return store.Record{}, fmt.Errorf("presence get: %w", err)
	}
	if len(fields) == 0 {
		return store.Record{}, store.ErrNotFound
	}
	rec, err := store.RecordFromFields(fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("presence decode: %w", err)
	}
	return rec, nil
}

func (s *Store) SetNickname(ctx context.Context, connID, nickname string) (string, error) {
	old, err := swapNickname.Run(ctx, s.client, []string{s.key(connID)}, store.FieldUsername, nickname).Text()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("presence set nickname: %w", err)
	}
	return old, nil
}

func (s *Store) Delete(ctx context.Context, connID string) error {
	if err := s.client.Del(ctx, s.key(connID)).Err(); err != nil {
		return fmt.Errorf("presence delete: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
