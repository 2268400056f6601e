package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/estatedesk/internal/chat"
	"github.com/estatedesk/internal/model"
)

// AdminHandler serves the owner dashboard: conversation list, search,
// replying and purging. All routes sit behind the OwnerOnly middleware.
type AdminHandler struct {
	svc *chat.Service
}

func NewAdminHandler(svc *chat.Service) *AdminHandler {
	return &AdminHandler{svc: svc}
}

// ListConversations returns every conversation, newest activity first.
// ?q= filters by visitor name, email or message preview.
func (h *AdminHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	var (
		convs []model.Conversation
		err   error
	)
	if q != "" {
		convs, err = h.svc.SearchConversations(r.Context(), q)
	} else {
		convs, err = h.svc.Conversations(r.Context())
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *AdminHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
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

func (h *AdminHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	msg, err := h.svc.Append(r.Context(), convID, model.RoleOwner, req.Text)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// MarkRead flips the visitor's messages to read and zeroes the owner's
// unread counter for this conversation.
func (h *AdminHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	if err := h.svc.MarkRead(r.Context(), convID, model.RoleOwner); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteConversation purges the conversation and its messages for good.
func (h *AdminHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	if err := h.svc.DeleteAsOwner(r.Context(), convID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
