package memory

import (
	"context"
	"sync"
	"time"

	"github.com/estatedesk/internal/model"
)

const ownerSessionTTL = 30 * 24 * time.Hour

type session struct {
	exp time.Time
}

// Client is the in-memory Store used by -dev mode and tests. Visitor
// identities are copied on the way in and out so callers cannot mutate
// stored state.
type Client struct {
	mu       sync.RWMutex
	idents   map[string]model.VisitorIdentity
	sessions map[string]session
}

func New() *Client {
	return &Client{
		idents:   make(map[string]model.VisitorIdentity),
		sessions: make(map[string]session),
	}
}

func (c *Client) Close() error { return nil }

func (c *Client) SaveIdentity(ctx context.Context, token string, ident *model.VisitorIdentity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idents[token] = *ident
	return nil
}

func (c *Client) GetIdentity(ctx context.Context, token string) (*model.VisitorIdentity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.idents[token]
	if !ok {
		return nil, nil
	}
	cp := v
	return &cp, nil
}

func (c *Client) DeleteIdentity(ctx context.Context, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.idents, token)
	return nil
}

func (c *Client) SetOwnerSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = session{exp: time.Now().Add(ownerSessionTTL)}
	return nil
}

func (c *Client) HasOwnerSession(ctx context.Context, sessionID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sessionID]
	if !ok || time.Now().After(s.exp) {
		return false, nil
	}
	return true, nil
}

func (c *Client) DeleteOwnerSession(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}
