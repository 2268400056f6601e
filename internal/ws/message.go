package ws

import (
	"github.com/estatedesk/internal/model"
)

type EventType string

const (
	// Client -> server.
	EventSubscribeList           EventType = "subscribe_list"
	EventUnsubscribeList         EventType = "unsubscribe_list"
	EventSubscribeConversation   EventType = "subscribe_conversation"
	EventUnsubscribeConversation EventType = "unsubscribe_conversation"
	EventNewMessage              EventType = "new_message"
	EventMessageRead             EventType = "message_read"

	// Server -> client. Snapshots carry the complete current state, never
	// a delta: a client replaces what it has on every delivery.
	EventConversationList    EventType = "conversation_list"
	EventConversation        EventType = "conversation"
	EventConversationDeleted EventType = "conversation_deleted"
	EventError               EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type EventType `json:"type"`

	// ConversationID targets subscribe/read events. For new_message it is
	// required for the owner and ignored for visitors, whose identity
	// already references their single conversation.
	ConversationID string `json:"conversation_id,omitempty"`

	// Text of a new_message.
	Text string `json:"text,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ConversationSnapshot is the full state of one conversation's log.
type ConversationSnapshot struct {
	Conversation model.Conversation `json:"conversation"`
	Messages     []model.Message    `json:"messages"`
}

// ConversationListSnapshot is the owner's full dashboard state.
type ConversationListSnapshot struct {
	Conversations []model.Conversation `json:"conversations"`
}

// ConversationDeletedPayload tells subscribers their conversation is gone;
// the client should fall back to the identity-collection flow.
type ConversationDeletedPayload struct {
	ConversationID string `json:"conversation_id"`
}
