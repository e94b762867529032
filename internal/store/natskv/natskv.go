// Package natskv stores presence records in a NATS JetStream key-value
// bucket, one JSON object per connection.
package natskv

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// maxSwapAttempts bounds the compare-and-set loop in SetNickname.
const maxSwapAttempts = 8

// Store is a JetStream KV presence store.
type Store struct {
	kv jetstream.KeyValue
}

var _ store.Store = (*Store)(nil)

// New opens (or creates) the bucket on the given JetStream context.
func New(ctx context.Context, js jetstream.JetStream, bucket string) (*Store, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "wirechat presence records",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("open presence bucket %q: %w", bucket, err)
	}
	return &Store{kv: kv}, nil
}

func (s *Store) Create(ctx context.Context, rec store.Record) error {
	data, err := json.Marshal(rec.Fields())
	if err != nil {
		return fmt.Errorf("presence encode: %w", err)
	}
	if _, err := s.kv.Put(ctx, rec.ConnectionID, data); err != nil {
		return fmt.Errorf("presence create: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, connID string) (store.Record, error) {
	rec, _, err := s.load(ctx, connID)
	return rec, err
}

func (s *Store) load(ctx context.Context, connID string) (store.Record, uint64, error) {
	entry, err := s.kv.Get(ctx, connID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return store.Record{}, 0, store.ErrNotFound
		}
		return store.Record{}, 0, fmt.Errorf("presence get: %w", err)
	}
	var fields map[string]string
	if err := json.Unmarshal(entry.Value(), &fields); err != nil {
		return store.Record{}, 0, fmt.Errorf("presence decode: %w", err)
	}
	rec, err := store.RecordFromFields(fields)
	if err != nil {
		return store.Record{}, 0, fmt.Errorf("presence decode: %w", err)
	}
	return rec, entry.Revision(), nil
}

// SetNickname swaps the nickname with an optimistic revision check so a
// concurrent Delete is never undone.
func (s *Store) SetNickname(ctx context.Context, connID, nickname string) (string, error) {
	for range maxSwapAttempts {
		rec, rev, err := s.load(ctx, connID)
		if err != nil {
			return "", err
		}
		old := rec.Nickname
		rec.Nickname = nickname
		data, err := json.Marshal(rec.Fields())
		if err != nil {
			return "", fmt.Errorf("presence encode: %w", err)
		}
		if _, err := s.kv.Update(ctx, connID, data, rev); err != nil {
			if errors.Is(err, jetstream.ErrKeyExists) {
				continue
			}
			return "", fmt.Errorf("presence set nickname: %w", err)
		}
		return old, nil
	}
	return "", fmt.Errorf("presence set nickname: too many concurrent updates for %s", connID)
}

func (s *Store) Delete(ctx context.Context, connID string) error {
	if err := s.kv.Purge(ctx, connID); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("presence delete: %w", err)
	}
	return nil
}

// Close is a no-op; the NATS connection is owned by the caller.
func (s *Store) Close() error {
	return nil
}
