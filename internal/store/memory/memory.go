// Package memory is a process-local presence store for single-node
// deployments and tests.
package memory

import (
	"context"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Store keeps presence records in a concurrent map.
type Store struct {
	records *xsync.Map[string, store.Record]
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{records: xsync.NewMap[string, store.Record]()}
}

func (s *Store) Create(_ context.Context, rec store.Record) error {
	s.records.Store(rec.ConnectionID, rec)
	return nil
}

func (s *Store) Get(_ context.Context, connID string) (store.Record, error) {
	rec, ok := s.records.Load(connID)
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) SetNickname(_ context.Context, connID, nickname string) (string, error) {
	var old string
	_, ok := s.records.Compute(connID, func(rec store.Record, loaded bool) (store.Record, xsync.ComputeOp) {
		if !loaded {
			return rec, xsync.CancelOp
		}
		old = rec.Nickname
		rec.Nickname = nickname
		return rec, xsync.UpdateOp
	})
	if !ok {
		return "", store.ErrNotFound
	}
	return old, nil
}

func (s *Store) Delete(_ context.Context, connID string) error {
	s.records.Delete(connID)
	return nil
}

// Len reports how many records are held.
func (s *Store) Len() int {
	return s.records.Size()
}

func (s *Store) Close() error {
	return nil
}
