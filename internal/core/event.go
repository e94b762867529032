package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventConnected greets a freshly accepted connection.
	EventConnected EventKind = iota
	// EventSubscriptionConfirmed tells a client it joined Room.
	EventSubscriptionConfirmed
	// EventUnsubscriptionConfirmed tells a client it left Room.
	EventUnsubscriptionConfirmed
	// EventUserJoined notifies room members about a user joining a room.
	EventUserJoined
	// EventUserLeft notifies room members about a user leaving a room.
	EventUserLeft
	// EventRoomsReceived answers getRooms.
	EventRoomsReceived
	// EventUsersInRoom answers getUsersInRoom.
	EventUsersInRoom
	// EventNicknameUpdated notifies room members about a nickname change.
	EventNicknameUpdated
	// EventRoomMessage carries a chat message in a room.
	EventRoomMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventSubscriptionConfirmed:
		return "subscriptionConfirmed"
	case EventUnsubscriptionConfirmed:
		return "unsubscriptionConfirmed"
	case EventUserJoined:
		return "userJoinsRoom"
	case EventUserLeft:
		return "userLeavesRoom"
	case EventRoomsReceived:
		return "roomsReceived"
	case EventUsersInRoom:
		return "usersInRoom"
	case EventNicknameUpdated:
		return "userNicknameUpdated"
	case EventRoomMessage:
		return "newMessage"
	default:
		return "unknown"
	}
}

// Notice texts carried by presence events.
const (
	WelcomeText   = "Welcome to the chat server"
	JoinedNotice  = "----- Joined the room -----"
	LeftNotice    = "----- Left the room -----"
	ServerBotName = "ServerBot"
)

// Event is sent to clients to describe what happened in the system.
// Room-scoped events also travel between processes on the bus.
type Event struct {
	Kind    EventKind `json:"kind"`
	Room    string    `json:"room,omitempty"`
	User    string    `json:"user,omitempty"`
	OldUser string    `json:"old_user,omitempty"`
	ConnID  string    `json:"conn_id,omitempty"`
	Text    string    `json:"text,omitempty"`
	Message *Message  `json:"message,omitempty"`
	Rooms   []string  `json:"rooms,omitempty"`
	Members []Member  `json:"members,omitempty"`
}

// Member is one entry of a room listing.
type Member struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	ConnID   string `json:"conn_id"`
}
