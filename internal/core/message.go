package core

import "time"

// Message is a chat line relayed to a room. It is never stored.
type Message struct {
	Room      string    `json:"room"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
