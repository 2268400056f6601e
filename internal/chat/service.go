// Package chat implements the conversation core: lifecycle, the append-only
// message log, and read-state reconciliation. It is storage-agnostic; the
// pgx repositories satisfy its store interfaces in production.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/estatedesk/internal/logger"
	"github.com/estatedesk/internal/model"
	"github.com/estatedesk/internal/storage"
)

// previewLimit caps the conversation list preview carried on every
// conversation row.
const previewLimit = 120

// ConversationStore persists conversations and their aggregate state.
type ConversationStore interface {
	Create(ctx context.Context, c *model.Conversation) error
	GetByID(ctx context.Context, id string) (*model.Conversation, error)
	GetByVisitor(ctx context.Context, visitorID string) (*model.Conversation, error)
	List(ctx context.Context) ([]model.Conversation, error)
	Search(ctx context.Context, q string) ([]model.Conversation, error)
	Delete(ctx context.Context, id string) error
	ResetUnread(ctx context.Context, id string, role model.Role) error
}

// MessageStore persists the per-conversation message log. Append must update
// the owning conversation (sequence, preview, unread counter of the opposite
// role) atomically with the insert.
type MessageStore interface {
	Append(ctx context.Context, m *model.Message, preview string) error
	ListByConversation(ctx context.Context, conversationID string) ([]model.Message, error)
	MarkRead(ctx context.Context, conversationID string, author model.Role) error
}

// Notifier is told after every successful mutation so live subscribers can
// be sent fresh state. The ws hub implements it; nil disables notifications.
type Notifier interface {
	ConversationChanged(conversationID string)
	ConversationDeleted(conversationID string)
}

// PushSender delivers a Web Push notification to the owner. Nil disables push.
type PushSender interface {
	Notify(ctx context.Context, title, body string, data map[string]string)
}

// InquiryMailer emails the owner about a newly opened conversation.
// Nil disables mail.
type InquiryMailer interface {
	SendNewInquiry(ctx context.Context, c *model.Conversation) error
}

type Service struct {
	convs    ConversationStore
	msgs     MessageStore
	visitors storage.Store
	notifier Notifier
	push     PushSender
	mail     InquiryMailer
}

func NewService(convs ConversationStore, msgs MessageStore, visitors storage.Store) *Service {
	return &Service{convs: convs, msgs: msgs, visitors: visitors}
}

// SetNotifier wires the live sync channel. Called once at startup; the hub
// needs the service, so the notifier cannot be a constructor argument.
func (s *Service) SetNotifier(n Notifier) { s.notifier = n }

func (s *Service) SetPushSender(p PushSender) { s.push = p }

func (s *Service) SetMailer(m InquiryMailer) { s.mail = m }

// CreateConversation opens the visitor's conversation and stores the id back
// into the identity record under token. Idempotent per visitor: if a
// conversation already exists for ident.ID it is returned unchanged, which
// also recovers the case where the visitor's local reference was lost while
// the durable record survived.
func (s *Service) CreateConversation(ctx context.Context, token string, ident *model.VisitorIdentity) (*model.Conversation, error) {
	defer logger.DeferLogDuration("chat.CreateConversation", time.Now())()

	if err := validateIdentity(ident); err != nil {
		return nil, err
	}

	existing, err := s.convs.GetByVisitor(ctx, ident.ID)
	if err == nil {
		if ident.ConversationID != existing.ID {
			ident.ConversationID = existing.ID
			if err := s.visitors.SaveIdentity(ctx, token, ident); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	now := time.Now().UTC()
	c := &model.Conversation{
		ID:            uuid.New().String(),
		VisitorID:     ident.ID,
		VisitorName:   strings.TrimSpace(ident.Name),
		VisitorEmail:  strings.TrimSpace(ident.Email),
		VisitorPhone:  strings.TrimSpace(ident.Phone),
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if err := s.convs.Create(ctx, c); err != nil {
		return nil, err
	}

	ident.ConversationID = c.ID
	if err := s.visitors.SaveIdentity(ctx, token, ident); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ConversationChanged(c.ID)
	}
	if s.mail != nil {
		conv := *c
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.mail.SendNewInquiry(ctx, &conv); err != nil {
				logger.Errorf("chat: inquiry mail conv=%s: %v", conv.ID, err)
			}
		}()
	}
	return c, nil
}

// Append adds a message to the conversation's log. The store bumps the
// opposite role's unread counter and the conversation preview in the same
// write. Failures propagate to the caller; retry policy belongs to the UI.
func (s *Service) Append(ctx context.Context, conversationID string, sender model.Role, text string) (*model.Message, error) {
	defer logger.DeferLogDuration("chat.Append", time.Now())()

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}
	if !sender.Valid() {
		return nil, &ValidationError{Field: "sender", Reason: "unknown role"}
	}

	m := &model.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Sender:         sender,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.msgs.Append(ctx, m, truncate(text, previewLimit)); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.ConversationChanged(conversationID)
	}
	if sender == model.RoleVisitor && s.push != nil {
		data := map[string]string{"conversation_id": conversationID}
		go s.push.Notify(context.Background(), "New inquiry message", truncate(text, previewLimit), data)
	}
	return m, nil
}

// Messages returns the full ordered log. Unknown conversations yield
// repository.ErrNotFound rather than an empty log, so stale references are
// distinguishable from quiet conversations.
func (s *Service) Messages(ctx context.Context, conversationID string) ([]model.Message, error) {
	if _, err := s.convs.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.msgs.ListByConversation(ctx, conversationID)
}

func (s *Service) Conversation(ctx context.Context, id string) (*model.Conversation, error) {
	return s.convs.GetByID(ctx, id)
}

func (s *Service) Conversations(ctx context.Context) ([]model.Conversation, error) {
	return s.convs.List(ctx)
}

func (s *Service) SearchConversations(ctx context.Context, q string) ([]model.Conversation, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return s.convs.List(ctx)
	}
	return s.convs.Search(ctx, q)
}

// MarkRead flips every message authored by the opposite role to read and
// zeroes the viewer's unread counter. Invoked by the hub when a client
// starts displaying a conversation; calling it with nothing unread is a
// no-op.
func (s *Service) MarkRead(ctx context.Context, conversationID string, viewer model.Role) error {
	defer logger.DeferLogDuration("chat.MarkRead", time.Now())()

	if err := s.msgs.MarkRead(ctx, conversationID, viewer.Opposite()); err != nil {
		return err
	}
	if err := s.convs.ResetUnread(ctx, conversationID, viewer); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.ConversationChanged(conversationID)
	}
	return nil
}

// DeleteAsOwner hard-deletes the conversation and, by cascade, its messages.
func (s *Service) DeleteAsOwner(ctx context.Context, conversationID string) error {
	defer logger.DeferLogDuration("chat.DeleteAsOwner", time.Now())()
	if err := s.convs.Delete(ctx, conversationID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.ConversationDeleted(conversationID)
	}
	return nil
}

// DeleteAsVisitor clears the visitor's reference to their conversation. The
// durable record is left in place: the owner keeps the thread until they
// purge it themselves.
func (s *Service) DeleteAsVisitor(ctx context.Context, token string, ident *model.VisitorIdentity, conversationID string) error {
	defer logger.DeferLogDuration("chat.DeleteAsVisitor", time.Now())()
	if ident == nil || ident.ConversationID == "" || ident.ConversationID != conversationID {
		return ErrForbidden
	}
	ident.ConversationID = ""
	return s.visitors.SaveIdentity(ctx, token, ident)
}

// AuthorizeView checks whether the actor may observe the conversation: the
// owner may observe any, a visitor only the one their identity references.
func (s *Service) AuthorizeView(role model.Role, ident *model.VisitorIdentity, conversationID string) error {
	if role == model.RoleOwner {
		return nil
	}
	if ident == nil || ident.ConversationID != conversationID {
		return ErrForbidden
	}
	return nil
}

func validateIdentity(ident *model.VisitorIdentity) error {
	if ident == nil || strings.TrimSpace(ident.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if strings.TrimSpace(ident.Email) == "" {
		return &ValidationError{Field: "email", Reason: "must not be empty"}
	}
	return nil
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
