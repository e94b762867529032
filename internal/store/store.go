package store

import (
	"context"
	"errors"
	"time"
)

// DefaultNickname is assigned to every connection until it sets its own.
const DefaultNickname = "anonymous"

// ErrNotFound is returned when no presence record exists for a connection.
var ErrNotFound = errors.New("presence record not found")

// Record is the presence metadata kept for one live connection.
type Record struct {
	ConnectionID string
	Nickname     string
	ConnectedAt  time.Time
}

// Store keeps one presence record per live connection. Implementations
// must be safe for concurrent use and shared between server processes
// when more than one process serves the same chat.
type Store interface {
	// Create writes the record for a freshly connected client.
	Create(ctx context.Context, rec Record) error

	// Get returns the record for a connection or ErrNotFound.
	Get(ctx context.Context, connID string) (Record, error)

	// SetNickname replaces the nickname and returns the previous one.
	// Returns ErrNotFound when the record no longer exists; it never
	// recreates a deleted record.
	SetNickname(ctx context.Context, connID, nickname string) (string, error)

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, connID string) error

	// Close releases backend resources.
	Close() error
}

// Field names of the persisted record, shared by all backends.
const (
	FieldConnectionDate = "connectionDate"
	FieldSocketID       = "socketID"
	FieldUsername       = "username"
)

// Fields renders a record in its persisted layout.
func (r Record) Fields() map[string]string {
	return map[string]string{
		FieldConnectionDate: r.ConnectedAt.UTC().Format(time.RFC3339Nano),
		FieldSocketID:       r.ConnectionID,
		FieldUsername:       r.Nickname,
	}
}

// RecordFromFields parses the persisted layout back into a record.
func RecordFromFields(fields map[string]string) (Record, error) {
	id, ok := fields[FieldSocketID]
	if !ok || id == "" {
		return Record{}, ErrNotFound
	}
	rec := Record{
		ConnectionID: id,
		Nickname:     fields[FieldUsername],
	}
	if raw := fields[FieldConnectionDate]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Record{}, err
		}
		rec.ConnectedAt = ts
	}
	return rec, nil
}
