package core

import (
	"maps"
	"slices"
	"strings"
	"sync"
)

// NormalizeRoom strips every whitespace rune from a room name.
// "lob by" and "lobby" name the same room.
func NormalizeRoom(name string) string {
	return strings.Join(strings.Fields(name), "")
}

// Registry is the membership relation between connections and rooms.
// It holds edges for local sessions and edges mirrored from other
// processes. A room exists only while it has at least one edge.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]struct{}
	conns map[string]map[string]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]map[string]struct{}),
		conns: make(map[string]map[string]struct{}),
	}
}

// Add records connID as a member of room. Returns true if newly added.
func (r *Registry) Add(room, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	if _, exists := members[connID]; exists {
		return false
	}
	members[connID] = struct{}{}

	joined, ok := r.conns[connID]
	if !ok {
		joined = make(map[string]struct{})
		r.conns[connID] = joined
	}
	joined[room] = struct{}{}
	return true
}

// Remove deletes the edge. Returns true if it existed.
func (r *Registry) Remove(room, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(room, connID)
}

func (r *Registry) removeLocked(room, connID string) bool {
	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	if _, exists := members[connID]; !exists {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	if joined, ok := r.conns[connID]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(r.conns, connID)
		}
	}
	return true
}

// Drop removes every edge of connID and returns the rooms it was in.
func (r *Registry) Drop(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := slices.Sorted(maps.Keys(r.conns[connID]))
	for _, room := range rooms {
		r.removeLocked(room, connID)
	}
	return rooms
}

// Has reports whether connID is a member of room.
func (r *Registry) Has(room, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][connID]
	return ok
}

// RoomsOf returns the sorted rooms of connID.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.conns[connID]))
}

// Members returns the sorted connection ids in room.
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.rooms[room]))
}

// Rooms returns every non-empty room, sorted.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.rooms))
}

// Empty returns true if no room has members.
func (r *Registry) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms) == 0
}
