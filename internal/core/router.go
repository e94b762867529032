package core

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

// Handle dispatches one inbound command for s. Commands of one session
// must be handled sequentially; different sessions may run concurrently.
func (h *Hub) Handle(ctx context.Context, s *Session, cmd *Command) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	switch cmd.Kind {
	case CommandSubscribe:
		h.handleSubscribe(ctx, s, cmd.Rooms)
	case CommandUnsubscribe:
		h.handleUnsubscribe(ctx, s, cmd.Rooms)
	case CommandGetRooms:
		h.handleGetRooms(s)
	case CommandGetUsersInRoom:
		h.handleGetUsersInRoom(ctx, s, cmd.Room)
	case CommandSetNickname:
		h.handleSetNickname(ctx, s, cmd.Username)
	case CommandSendRoomMessage:
		h.handleRoomMessage(ctx, s, cmd.Room, cmd.Text)
	default:
		return ErrUnknownEvent
	}
	return nil
}

func (h *Hub) handleSubscribe(ctx context.Context, s *Session, rooms []string) {
	nickname := h.nickname(ctx, s)
	for _, room := range rooms {
		h.join(ctx, s, room, nickname)
	}
}

func (h *Hub) handleUnsubscribe(ctx context.Context, s *Session, rooms []string) {
	nickname := h.nickname(ctx, s)
	for _, room := range rooms {
		h.leave(ctx, s, room, nickname)
	}
}

func (h *Hub) handleGetRooms(s *Session) {
	s.send(&Event{Kind: EventRoomsReceived, Rooms: h.ListRoomsOf(s.ID)})
	h.events.Log(LogUserGetsRooms, map[string]any{"socket": s.ID})
}

func (h *Hub) handleGetUsersInRoom(ctx context.Context, s *Session, room string) {
	room = NormalizeRoom(room)
	s.send(&Event{Kind: EventUsersInRoom, Room: room, Members: h.ListMembers(ctx, room)})
}

func (h *Hub) handleSetNickname(ctx context.Context, s *Session, nickname string) {
	// Rooms are taken before the update; a concurrent join is not notified.
	rooms := h.registry.RoomsOf(s.ID)

	old, err := h.store.SetNickname(ctx, s.ID, nickname)
	if err != nil {
		h.storeFailure("set_nickname", s.ID, err)
		return
	}
	s.setNickname(nickname)
	h.events.Log(LogUserSetsNickname, map[string]any{
		"socket":      s.ID,
		"oldUsername": old,
		"newUsername": nickname,
	})

	for _, room := range rooms {
		_ = h.Broadcast(ctx, room, &Event{
			Kind:    EventNicknameUpdated,
			Room:    room,
			OldUser: old,
			User:    nickname,
			ConnID:  s.ID,
		})
	}
}

func (h *Hub) handleRoomMessage(ctx context.Context, s *Session, room, text string) {
	room = NormalizeRoom(room)
	if !h.registry.Has(room, s.ID) {
		messagesRejected.Inc()
		h.log.Debug().Str("conn_id", s.ID).Str("room", room).Msg("message to unjoined room dropped")
		return
	}

	rec, err := h.store.Get(ctx, s.ID)
	if err != nil {
		h.storeFailure("get", s.ID, err)
		return
	}

	msg := Message{
		Room:      room,
		From:      rec.Nickname,
		Text:      text,
		CreatedAt: time.Now(),
	}
	if err := h.Broadcast(ctx, room, &Event{Kind: EventRoomMessage, Room: room, Message: &msg}); err != nil {
		return
	}
	messagesRelayed.WithLabelValues("client").Inc()
	h.events.Log(LogNewMessage, map[string]any{
		"room":     msg.Room,
		"username": msg.From,
		"msg":      msg.Text,
		"date":     msg.CreatedAt,
	})
}

// join confirms the subscription to s, records the edge and announces the
// joiner to the whole room, the joiner included. Joining a room twice only
// repeats the confirmation.
func (h *Hub) join(ctx context.Context, s *Session, raw, nickname string) {
	room := NormalizeRoom(raw)
	if room == "" {
		return
	}
	already := h.registry.Has(room, s.ID)

	// An unconfirmed join must not create membership.
	if !s.send(&Event{Kind: EventSubscriptionConfirmed, Room: room}) {
		h.log.Debug().Str("conn_id", s.ID).Str("room", room).Msg("join dropped: confirmation not queued")
		return
	}
	if already {
		return
	}
	h.registry.Add(room, s.ID)
	h.events.Log(LogUserJoinsRoom, map[string]any{"socket": s.ID, "username": nickname, "room": room})

	_ = h.Broadcast(ctx, room, &Event{
		Kind:   EventUserJoined,
		Room:   room,
		User:   nickname,
		ConnID: s.ID,
		Text:   JoinedNotice,
	})
}

// leave removes s from room and tells the remaining members. The main room
// cannot be left; leaving a room s is not in only repeats the confirmation.
func (h *Hub) leave(ctx context.Context, s *Session, raw, nickname string) {
	room := NormalizeRoom(raw)
	if room == "" || room == h.mainRoom {
		return
	}
	removed := h.registry.Remove(room, s.ID)

	s.send(&Event{Kind: EventUnsubscriptionConfirmed, Room: room})
	if !removed {
		return
	}
	h.events.Log(LogUserLeavesRoom, map[string]any{"socket": s.ID, "username": nickname, "room": room})

	_ = h.Broadcast(ctx, room, &Event{
		Kind:   EventUserLeft,
		Room:   room,
		User:   nickname,
		ConnID: s.ID,
		Text:   LeftNotice,
	})
}

// ListMembers resolves the members of room through the presence store.
// Members whose record is missing or unreadable are left out.
func (h *Hub) ListMembers(ctx context.Context, room string) []Member {
	ids := h.registry.Members(room)
	members := make([]Member, 0, len(ids))
	for _, id := range ids {
		rec, err := h.store.Get(ctx, id)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				h.storeFailure("get", id, err)
			}
			continue
		}
		members = append(members, Member{Room: room, Username: rec.Nickname, ConnID: rec.ConnectionID})
	}
	return members
}

// ListRoomsOf returns the rooms of a connection.
func (h *Hub) ListRoomsOf(connID string) []string {
	return h.registry.RoomsOf(connID)
}

// nickname reads the current nickname, falling back to the session's
// last-known one when the store is unavailable.
func (h *Hub) nickname(ctx context.Context, s *Session) string {
	rec, err := h.store.Get(ctx, s.ID)
	if err != nil {
		h.storeFailure("get", s.ID, err)
		return s.Nickname()
	}
	return rec.Nickname
}
