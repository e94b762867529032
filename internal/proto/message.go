package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSubscribe      = "subscribe"
	InboundTypeUnsubscribe    = "unsubscribe"
	InboundTypeGetRooms       = "getRooms"
	InboundTypeGetUsersInRoom = "getUsersInRoom"
	InboundTypeSetNickname    = "setNickname"
	InboundTypeNewMessage     = "newMessage"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// SubscribeData lists rooms to join or leave.
type SubscribeData struct {
	Rooms []string `json:"rooms"`
}

// RoomData names a single room.
type RoomData struct {
	Room string `json:"room"`
}

// NicknameData carries the requested nickname.
type NicknameData struct {
	Username string `json:"username"`
}

// MessageData is a chat message from the client.
type MessageData struct {
	Room string `json:"room"`
	Msg  string `json:"msg"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventConnected greets a fresh connection.
type EventConnected struct {
	Message string `json:"message"`
}

// EventRoom confirms a subscription change.
type EventRoom struct {
	Room string `json:"room"`
}

// EventPresence announces a join or leave.
type EventPresence struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Msg      string `json:"msg"`
	ID       string `json:"id"`
}

// EventRooms answers getRooms.
type EventRooms struct {
	Rooms []string `json:"rooms"`
}

// User is one entry of a room listing.
type User struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	ID       string `json:"id"`
}

// EventUsers answers getUsersInRoom.
type EventUsers struct {
	Users []User `json:"users"`
}

// EventNickname announces a nickname change in one room.
type EventNickname struct {
	Room        string `json:"room"`
	OldUsername string `json:"oldUsername"`
	NewUsername string `json:"newUsername"`
	ID          string `json:"id"`
}

// EventMessage is a chat message delivered to a room.
type EventMessage struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Msg      string `json:"msg"`
	Date     string `json:"date"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
