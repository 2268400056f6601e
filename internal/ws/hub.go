package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/estatedesk/internal/chat"
	"github.com/estatedesk/internal/logger"
	"github.com/estatedesk/internal/model"
	"github.com/estatedesk/internal/repository"
)

const snapshotTimeout = 5 * time.Second

// Hub is the live sync channel. Observers subscribe to the conversation
// list (owner only) or to a single conversation; every mutation fans out a
// complete current-state snapshot, never a diff, so clients need no merge
// logic. Delivery is at-least-once in non-decreasing recency order.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]struct{}
	listSubs map[*Client]struct{}
	convSubs map[string]map[*Client]struct{}
	total    int
	maxConns int

	svc *chat.Service

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(svc *chat.Service, maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		listSubs:   make(map[*Client]struct{}),
		convSubs:   make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		svc:        svc,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for c := range h.clients {
		allClients = append(allClients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.listSubs = make(map[*Client]struct{})
	h.convSubs = make(map[string]map[*Client]struct{})
	h.total = 0
	h.mu.Unlock()

	// Close connections outside the lock (network I/O).
	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting role=%s", h.maxConns, c.role)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.total++
	h.mu.Unlock()
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	delete(h.listSubs, c)
	for id, subs := range h.convSubs {
		delete(subs, c)
		if len(subs) == 0 {
			delete(h.convSubs, id)
		}
	}
	h.total--
	h.mu.Unlock()

	// Network I/O outside the lock.
	c.Close()
}

// HandleMessage dispatches incoming WebSocket events.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventSubscribeList:
		h.handleSubscribeList(ctx, c)
	case EventUnsubscribeList:
		h.setListSub(c, false)
	case EventSubscribeConversation:
		h.handleSubscribeConversation(ctx, c, msg)
	case EventUnsubscribeConversation:
		h.setConvSub(c, msg.ConversationID, false)
	case EventNewMessage:
		h.handleNewMessage(ctx, c, msg)
	case EventMessageRead:
		h.handleMessageRead(ctx, c, msg)
	default:
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "unknown event type"})
	}
}

// handleSubscribeList registers an owner for full conversation-list
// snapshots. The list is unfiltered: the model has exactly one owner.
func (h *Hub) handleSubscribeList(ctx context.Context, c *Client) {
	if c.role != model.RoleOwner {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "owner only"})
		return
	}
	h.setListSub(c, true)

	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	snap, err := h.listSnapshot(ctx)
	if err != nil {
		logger.Errorf("ws list snapshot: %v", err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to load conversations"})
		return
	}
	h.sendToClient(c, OutgoingMessage{Type: EventConversationList, Payload: snap})
}

// handleSubscribeConversation registers an observer for one conversation's
// log. Subscribing is the display-time trigger for read reconciliation: the
// subscriber is about to render the log, so their unread state resets here,
// not through a separate client call.
func (h *Hub) handleSubscribeConversation(ctx context.Context, c *Client, msg IncomingMessage) {
	if msg.ConversationID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "conversation_id required"})
		return
	}
	if err := h.svc.AuthorizeView(c.role, c.ident, msg.ConversationID); err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not your conversation"})
		return
	}

	h.setConvSub(c, msg.ConversationID, true)

	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	if err := h.svc.MarkRead(ctx, msg.ConversationID, c.role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.setConvSub(c, msg.ConversationID, false)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "conversation not found"})
			return
		}
		logger.Errorf("ws mark read conv=%s role=%s: %v", msg.ConversationID, c.role, err)
	}

	// MarkRead already fanned out a snapshot, but deliver one directly too:
	// at-least-once, and the subscriber must not depend on racing the
	// notifier.
	snap, err := h.conversationSnapshot(ctx, msg.ConversationID)
	if err != nil {
		logger.Errorf("ws conversation snapshot conv=%s: %v", msg.ConversationID, err)
		return
	}
	h.sendToClient(c, OutgoingMessage{Type: EventConversation, Payload: snap})
}

func (h *Hub) handleNewMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.handleNewMessage", time.Now())()

	conversationID := msg.ConversationID
	if c.role == model.RoleVisitor {
		if c.ident == nil || c.ident.ConversationID == "" {
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "no conversation"})
			return
		}
		conversationID = c.ident.ConversationID
	}
	if conversationID == "" {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "conversation_id required"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	if _, err := h.svc.Append(ctx, conversationID, c.role, msg.Text); err != nil {
		switch {
		case chat.IsValidation(err):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "text required"})
		case errors.Is(err, repository.ErrNotFound):
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "conversation not found"})
		default:
			logger.Errorf("ws append conv=%s role=%s: %v", conversationID, c.role, err)
			h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to send message"})
		}
	}
}

func (h *Hub) handleMessageRead(ctx context.Context, c *Client, msg IncomingMessage) {
	conversationID := msg.ConversationID
	if c.role == model.RoleVisitor {
		if c.ident == nil || c.ident.ConversationID == "" {
			return
		}
		conversationID = c.ident.ConversationID
	}
	if conversationID == "" {
		return
	}
	if err := h.svc.AuthorizeView(c.role, c.ident, conversationID); err != nil {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "not your conversation"})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	if err := h.svc.MarkRead(ctx, conversationID, c.role); err != nil && !errors.Is(err, repository.ErrNotFound) {
		logger.Errorf("ws mark read conv=%s role=%s: %v", conversationID, c.role, err)
	}
}

// ConversationChanged implements chat.Notifier: every observer of the
// conversation gets a full log snapshot, and every list observer a full
// list snapshot.
func (h *Hub) ConversationChanged(conversationID string) {
	defer logger.DeferLogDuration("ws.ConversationChanged", time.Now())()
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if targets := h.convSubscribers(conversationID); len(targets) > 0 {
		snap, err := h.conversationSnapshot(ctx, conversationID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				logger.Errorf("ws conversation snapshot conv=%s: %v", conversationID, err)
			}
		} else {
			out := OutgoingMessage{Type: EventConversation, Payload: snap}
			for _, c := range targets {
				h.sendToClient(c, out)
			}
		}
	}

	h.broadcastList(ctx)
}

// ConversationDeleted implements chat.Notifier: conversation observers are
// told their reference is stale, then dropped; the owner list refreshes.
func (h *Hub) ConversationDeleted(conversationID string) {
	h.mu.Lock()
	subs := h.convSubs[conversationID]
	delete(h.convSubs, conversationID)
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	out := OutgoingMessage{Type: EventConversationDeleted, Payload: ConversationDeletedPayload{ConversationID: conversationID}}
	for _, c := range targets {
		h.sendToClient(c, out)
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()
	h.broadcastList(ctx)
}

func (h *Hub) broadcastList(ctx context.Context) {
	targets := h.listSubscribers()
	if len(targets) == 0 {
		return
	}
	snap, err := h.listSnapshot(ctx)
	if err != nil {
		logger.Errorf("ws list snapshot: %v", err)
		return
	}
	out := OutgoingMessage{Type: EventConversationList, Payload: snap}
	for _, c := range targets {
		h.sendToClient(c, out)
	}
}

func (h *Hub) listSnapshot(ctx context.Context) (ConversationListSnapshot, error) {
	convs, err := h.svc.Conversations(ctx)
	if err != nil {
		return ConversationListSnapshot{}, err
	}
	return ConversationListSnapshot{Conversations: convs}, nil
}

func (h *Hub) conversationSnapshot(ctx context.Context, conversationID string) (ConversationSnapshot, error) {
	conv, err := h.svc.Conversation(ctx, conversationID)
	if err != nil {
		return ConversationSnapshot{}, err
	}
	msgs, err := h.svc.Messages(ctx, conversationID)
	if err != nil {
		return ConversationSnapshot{}, err
	}
	return ConversationSnapshot{Conversation: *conv, Messages: msgs}, nil
}

func (h *Hub) setListSub(c *Client, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if on {
		h.listSubs[c] = struct{}{}
	} else {
		delete(h.listSubs, c)
	}
}

func (h *Hub) setConvSub(c *Client, conversationID string, on bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if on {
		if _, ok := h.convSubs[conversationID]; !ok {
			h.convSubs[conversationID] = make(map[*Client]struct{})
		}
		h.convSubs[conversationID][c] = struct{}{}
		return
	}
	subs := h.convSubs[conversationID]
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.convSubs, conversationID)
	}
}

func (h *Hub) listSubscribers() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	targets := make([]*Client, 0, len(h.listSubs))
	for c := range h.listSubs {
		targets = append(targets, c)
	}
	return targets
}

func (h *Hub) convSubscribers(conversationID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	subs := h.convSubs[conversationID]
	targets := make([]*Client, 0, len(subs))
	for c := range subs {
		targets = append(targets, c)
	}
	return targets
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client role=%s", c.role)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
