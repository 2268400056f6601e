package model

import "time"

// Conversation is the single thread between one visitor and the owner.
// Unread counters are maintained per role: a visitor-authored message bumps
// UnreadForOwner, an owner-authored one bumps UnreadForVisitor.
type Conversation struct {
	ID                 string    `json:"id"`
	VisitorID          string    `json:"visitor_id"`
	VisitorName        string    `json:"visitor_name"`
	VisitorEmail       string    `json:"visitor_email"`
	VisitorPhone       string    `json:"visitor_phone,omitempty"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastMessageAt      time.Time `json:"last_message_at"`
	UnreadForOwner     int       `json:"unread_for_owner"`
	UnreadForVisitor   int       `json:"unread_for_visitor"`
	CreatedAt          time.Time `json:"created_at"`
}

// UnreadFor returns the counter belonging to the given viewing role.
func (c *Conversation) UnreadFor(role Role) int {
	if role == RoleOwner {
		return c.UnreadForOwner
	}
	return c.UnreadForVisitor
}
