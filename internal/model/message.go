package model

import "time"

// Message is one append-only entry in a conversation's log. Seq is assigned
// from the conversation's counter at insert time; ordering within a
// conversation is by (CreatedAt, Seq), so it never depends on wall-clock
// monotonicity alone. The only mutation a message ever sees is Read flipping
// from false to true.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sender         Role      `json:"sender"`
	Text           string    `json:"text"`
	Seq            int64     `json:"seq"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}
