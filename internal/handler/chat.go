package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/estatedesk/internal/chat"
	"github.com/estatedesk/internal/identity"
	"github.com/estatedesk/internal/middleware"
	"github.com/estatedesk/internal/model"
)

// ChatHandler serves the visitor side of the widget: identity submission,
// the visitor's own conversation, sending and read receipts.
type ChatHandler struct {
	svc      *chat.Service
	resolver *identity.Resolver
	secure   bool
}

func NewChatHandler(svc *chat.Service, resolver *identity.Resolver, secureCookies bool) *ChatHandler {
	return &ChatHandler{svc: svc, resolver: resolver, secure: secureCookies}
}

type StartConversationRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type StartConversationResponse struct {
	Token        string                 `json:"token"`
	Visitor      *model.VisitorIdentity `json:"visitor"`
	Conversation *model.Conversation    `json:"conversation"`
}

// StartConversation handles the contact form: it mints a visitor identity
// when the request carries none and returns the visitor's single
// conversation, creating it on first contact. Calling it again with a valid
// token returns the same conversation.
func (h *ChatHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetActor(r.Context())
	if actor.IsOwner() {
		writeError(w, http.StatusForbidden, "owner cannot start a visitor conversation")
		return
	}

	var req StartConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	token := actor.Token
	ident := actor.Identity
	if ident == nil {
		var err error
		token, ident, err = h.resolver.NewVisitor(r.Context(), req.Name, req.Email, req.Phone)
		if err != nil {
			writeServiceError(w, err)
			return
		}
	}

	conv, err := h.svc.CreateConversation(r.Context(), token, ident)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.setVisitorCookie(w, token)
	writeJSON(w, http.StatusOK, StartConversationResponse{Token: token, Visitor: ident, Conversation: conv})
}

type ConversationResponse struct {
	Conversation *model.Conversation `json:"conversation"`
	Messages     []model.Message     `json:"messages"`
}

// GetConversation returns the visitor's conversation with its full message
// log. 404 when the visitor has no conversation yet or the owner purged it.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireVisitor(w, r)
	if !ok {
		return
	}
	convID := actor.Identity.ConversationID
	if convID == "" {
		writeError(w, http.StatusNotFound, "no conversation")
		return
	}
	conv, err := h.svc.Conversation(r.Context(), convID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	msgs, err := h.svc.Messages(r.Context(), convID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConversationResponse{Conversation: conv, Messages: msgs})
}

type SendMessageRequest struct {
	Text string `json:"text"`
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireVisitor(w, r)
	if !ok {
		return
	}
	if actor.Identity.ConversationID == "" {
		writeError(w, http.StatusNotFound, "no conversation")
		return
	}
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	msg, err := h.svc.Append(r.Context(), actor.Identity.ConversationID, model.RoleVisitor, req.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead flips the owner's messages to read and zeroes the visitor's
// unread counter.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireVisitor(w, r)
	if !ok {
		return
	}
	if actor.Identity.ConversationID == "" {
		writeError(w, http.StatusNotFound, "no conversation")
		return
	}
	if err := h.svc.MarkRead(r.Context(), actor.Identity.ConversationID, model.RoleVisitor); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteConversation detaches the conversation from the visitor's identity.
// The durable record stays until the owner purges it.
func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireVisitor(w, r)
	if !ok {
		return
	}
	convID := strings.TrimSpace(r.URL.Query().Get("id"))
	if convID == "" {
		convID = actor.Identity.ConversationID
	}
	if convID == "" {
		writeError(w, http.StatusNotFound, "no conversation")
		return
	}
	if err := h.svc.DeleteAsVisitor(r.Context(), actor.Token, actor.Identity, convID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) requireVisitor(w http.ResponseWriter, r *http.Request) (*identity.Actor, bool) {
	actor := middleware.GetActor(r.Context())
	if !actor.IsVisitor() {
		writeError(w, http.StatusUnauthorized, "visitor identity required")
		return nil, false
	}
	return actor, true
}

func (h *ChatHandler) setVisitorCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     identity.VisitorTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
