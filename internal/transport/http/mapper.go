package http

import (
	"encoding/json"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/proto"
)

// dateLayout renders message dates with millisecond precision in UTC.
const dateLayout = "2006-01-02T15:04:05.000Z07:00"

// inboundToCommand maps a client frame onto a core command. Malformed
// frames yield a protocol error and never reach the hub.
func inboundToCommand(inbound proto.Inbound) (*core.Command, *core.CoreError) {
	switch inbound.Type {
	case proto.InboundTypeSubscribe, proto.InboundTypeUnsubscribe:
		var data proto.SubscribeData
		if err := decode(inbound.Data, &data); err != nil {
			return nil, err
		}
		kind := core.CommandSubscribe
		if inbound.Type == proto.InboundTypeUnsubscribe {
			kind = core.CommandUnsubscribe
		}
		return &core.Command{Kind: kind, Rooms: data.Rooms}, nil
	case proto.InboundTypeGetRooms:
		return &core.Command{Kind: core.CommandGetRooms}, nil
	case proto.InboundTypeGetUsersInRoom:
		var data proto.RoomData
		if err := decode(inbound.Data, &data); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandGetUsersInRoom, Room: data.Room}, nil
	case proto.InboundTypeSetNickname:
		var data proto.NicknameData
		if err := decode(inbound.Data, &data); err != nil {
			return nil, err
		}
		return &core.Command{Kind: core.CommandSetNickname, Username: data.Username}, nil
	case proto.InboundTypeNewMessage:
		var data proto.MessageData
		if err := decode(inbound.Data, &data); err != nil {
			return nil, err
		}
		if data.Room == "" {
			return nil, core.NewError(core.ErrCodeBadRequest, "room is required")
		}
		return &core.Command{Kind: core.CommandSendRoomMessage, Room: data.Room, Text: data.Msg}, nil
	default:
		return nil, core.NewError(core.ErrCodeInvalidMessage, "unknown message type")
	}
}

func decode(raw json.RawMessage, v any) *core.CoreError {
	if len(raw) == 0 {
		return core.NewError(core.ErrCodeBadRequest, "data is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return core.NewError(core.ErrCodeBadRequest, "malformed data")
	}
	return nil
}

func outboundFromError(err *core.CoreError) proto.Outbound {
	return proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: err.Code, Msg: err.Message},
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	out := proto.Outbound{Type: proto.OutboundTypeEvent, Event: event.Kind.String()}

	switch event.Kind {
	case core.EventConnected:
		out.Data = proto.EventConnected{Message: event.Text}
	case core.EventSubscriptionConfirmed, core.EventUnsubscriptionConfirmed:
		out.Data = proto.EventRoom{Room: event.Room}
	case core.EventUserJoined, core.EventUserLeft:
		out.Data = proto.EventPresence{
			Room:     event.Room,
			Username: event.User,
			Msg:      event.Text,
			ID:       event.ConnID,
		}
	case core.EventRoomsReceived:
		rooms := event.Rooms
		if rooms == nil {
			rooms = []string{}
		}
		out.Data = proto.EventRooms{Rooms: rooms}
	case core.EventUsersInRoom:
		users := make([]proto.User, 0, len(event.Members))
		for _, m := range event.Members {
			users = append(users, proto.User{Room: m.Room, Username: m.Username, ID: m.ConnID})
		}
		out.Data = proto.EventUsers{Users: users}
	case core.EventNicknameUpdated:
		out.Data = proto.EventNickname{
			Room:        event.Room,
			OldUsername: event.OldUser,
			NewUsername: event.User,
			ID:          event.ConnID,
		}
	case core.EventRoomMessage:
		if event.Message == nil {
			out.Data = proto.EventMessage{Room: event.Room}
			break
		}
		out.Data = proto.EventMessage{
			Room:     event.Message.Room,
			Username: event.Message.From,
			Msg:      event.Message.Text,
			Date:     event.Message.CreatedAt.UTC().Format(dateLayout),
		}
	}
	return out
}
