package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/vovakirdan/wirechat-relay/internal/bus"
)

type frameKind int

const (
	// frameEvent carries a room-scoped Event.
	frameEvent frameKind = iota
	// frameSyncRequest asks peers to announce their local membership.
	frameSyncRequest
	// frameEdges announces membership edges held by the sender.
	frameEdges
)

// envelope is the unit published on the bus. Seq orders the frames of one
// node: an edges snapshot carries the sequence of the last event its sender
// had published when the snapshot was taken.
type envelope struct {
	Node  string    `json:"node"`
	Kind  frameKind `json:"kind"`
	Seq   uint64    `json:"seq,omitempty"`
	Event *Event    `json:"event,omitempty"`
	Edges []edge    `json:"edges,omitempty"`
}

type edge struct {
	Room   string `json:"room"`
	ConnID string `json:"conn_id"`
}

// Broadcast publishes ev to every member of room on every process.
func (h *Hub) Broadcast(ctx context.Context, room string, ev *Event) error {
	if room == bus.ControlChannel {
		return ErrBadRequest
	}
	return h.publish(ctx, room, envelope{Node: h.node, Kind: frameEvent, Seq: h.seq.Add(1), Event: ev})
}

// BroadcastAll sends text from ServerBot to every non-empty room.
func (h *Hub) BroadcastAll(ctx context.Context, text string) error {
	var errs []error
	now := time.Now()
	for _, room := range h.registry.Rooms() {
		if room == bus.ControlChannel {
			continue
		}
		ev := &Event{
			Kind: EventRoomMessage,
			Room: room,
			Message: &Message{
				Room:      room,
				From:      ServerBotName,
				Text:      text,
				CreatedAt: now,
			},
		}
		if err := h.Broadcast(ctx, room, ev); err != nil {
			errs = append(errs, err)
			continue
		}
		messagesRelayed.WithLabelValues("server").Inc()
	}
	h.events.Log(LogBroadcastMessage, map[string]any{"msg": text})
	return errors.Join(errs...)
}

func (h *Hub) publish(ctx context.Context, channel string, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		busErrors.WithLabelValues("encode").Inc()
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := h.bus.Publish(ctx, channel, payload); err != nil {
		busErrors.WithLabelValues("publish").Inc()
		h.log.Warn().Err(err).Str("channel", channel).Msg("bus publish failed")
		return err
	}
	return nil
}

// onFrame runs on the bus subscription goroutine.
func (h *Hub) onFrame(channel string, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		busErrors.WithLabelValues("decode").Inc()
		h.log.Warn().Err(err).Str("channel", channel).Msg("undecodable bus frame")
		return
	}
	remote := env.Node != h.node

	if channel == bus.ControlChannel {
		if remote {
			h.onControl(env)
		}
		return
	}
	if env.Kind != frameEvent || env.Event == nil {
		return
	}

	ev := env.Event
	if remote {
		// Presence events double as membership deltas from the origin node.
		switch ev.Kind {
		case EventUserJoined:
			h.deltas.record(env.Node, channel, ev.ConnID, env.Seq)
			h.registry.Add(channel, ev.ConnID)
		case EventUserLeft:
			h.deltas.record(env.Node, channel, ev.ConnID, env.Seq)
			h.registry.Remove(channel, ev.ConnID)
		}
	}
	h.deliver(channel, ev)
}

func (h *Hub) onControl(env envelope) {
	switch env.Kind {
	case frameSyncRequest:
		// Load the sequence first: every change missing from the snapshot
		// is announced by an event numbered after it.
		seq := h.seq.Load()
		edges := h.localEdges()
		if len(edges) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.publish(ctx, bus.ControlChannel, envelope{Node: h.node, Kind: frameEdges, Seq: seq, Edges: edges})
	case frameEdges:
		applied := 0
		for _, e := range env.Edges {
			if h.deltas.newerThan(env.Node, e.Room, e.ConnID, env.Seq) {
				continue
			}
			h.registry.Add(e.Room, e.ConnID)
			applied++
		}
		h.log.Debug().Str("peer", env.Node).Int("edges", len(env.Edges)).Int("applied", applied).Msg("membership snapshot applied")
	}
}

// deliver hands ev to the local sessions currently in room.
func (h *Hub) deliver(room string, ev *Event) {
	for _, id := range h.registry.Members(room) {
		if s, ok := h.sessions.Load(id); ok {
			s.send(ev)
		}
	}
}

func (h *Hub) localEdges() []edge {
	var edges []edge
	h.sessions.Range(func(id string, _ *Session) bool {
		for _, room := range h.registry.RoomsOf(id) {
			edges = append(edges, edge{Room: room, ConnID: id})
		}
		return true
	})
	return edges
}

// deltaRetention bounds how long a membership delta can veto snapshot
// edges. Snapshots are answered within seconds of the sync request.
const deltaRetention = time.Minute

type deltaKey struct {
	node, room, conn string
}

type deltaMark struct {
	seq uint64
	at  time.Time
}

// deltaLog remembers the newest join or leave seen per remote edge so an
// older edges snapshot cannot undo it.
type deltaLog struct {
	mu     sync.Mutex
	marks  map[deltaKey]deltaMark
	pruned time.Time
}

func newDeltaLog() *deltaLog {
	return &deltaLog{marks: make(map[deltaKey]deltaMark), pruned: time.Now()}
}

func (d *deltaLog) record(node, room, conn string, seq uint64) {
	now := time.Now()
	d.mu.Lock()
	defer d.mu.Unlock()

	k := deltaKey{node: node, room: room, conn: conn}
	if m, ok := d.marks[k]; !ok || seq > m.seq {
		d.marks[k] = deltaMark{seq: seq, at: now}
	}
	if now.Sub(d.pruned) < deltaRetention {
		return
	}
	for key, m := range d.marks {
		if now.Sub(m.at) >= deltaRetention {
			delete(d.marks, key)
		}
	}
	d.pruned = now
}

// newerThan reports whether a delta numbered after seq was seen for the edge.
func (d *deltaLog) newerThan(node, room, conn string, seq uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.marks[deltaKey{node: node, room: room, conn: conn}]
	return ok && m.seq > seq
}
