package core

// Activity event names written to the EventLog.
const (
	LogUserConnected    = "userConnected"
	LogUserDisconnected = "userDisconnected"
	LogUserJoinsRoom    = "userJoinsRoom"
	LogUserLeavesRoom   = "userLeavesRoom"
	LogUserGetsRooms    = "userGetsRooms"
	LogUserSetsNickname = "userSetsNickname"
	LogNewMessage       = "newMessage"
	LogBroadcastMessage = "newBroadcastMessage"
	LogError            = "error"
)

// EventLog is an append-only activity sink. Log must not block on the
// caller and must not panic.
type EventLog interface {
	Log(event string, fields map[string]any)
}

// NopEventLog discards everything.
type NopEventLog struct{}

func (NopEventLog) Log(string, map[string]any) {}
