package utils

import "github.com/google/uuid"

// NewID returns a random identifier for connections and relay nodes.
// Ids are never reused while the process runs.
func NewID() string {
	return uuid.NewString()
}
