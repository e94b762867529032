package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSubscribe joins the client to every room in Rooms.
	CommandSubscribe CommandKind = iota
	// CommandUnsubscribe removes the client from every room in Rooms.
	CommandUnsubscribe
	// CommandGetRooms asks for the client's current rooms.
	CommandGetRooms
	// CommandGetUsersInRoom asks for the members of Room.
	CommandGetUsersInRoom
	// CommandSetNickname changes the client's nickname to Username.
	CommandSetNickname
	// CommandSendRoomMessage delivers Text to the members of Room.
	CommandSendRoomMessage
)

func (k CommandKind) String() string {
	switch k {
	case CommandSubscribe:
		return "subscribe"
	case CommandUnsubscribe:
		return "unsubscribe"
	case CommandGetRooms:
		return "getRooms"
	case CommandGetUsersInRoom:
		return "getUsersInRoom"
	case CommandSetNickname:
		return "setNickname"
	case CommandSendRoomMessage:
		return "newMessage"
	default:
		return "unknown"
	}
}

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	Rooms    []string
	Room     string
	Username string
	Text     string
}
