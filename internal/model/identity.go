package model

import "time"

// VisitorIdentity is the pseudo-identity a visitor submits before chatting.
// It is not authenticated; trust is nominal. The record lives server-side
// keyed by an opaque token the browser persists, and it never expires.
// ConversationID is the visitor's reference to their single conversation; an
// empty value means none has been created (or the visitor cleared it).
type VisitorIdentity struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
