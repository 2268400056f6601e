// Package identity resolves the current actor for a request. Role is a pure
// function of externally observed session state, recomputed per request;
// nothing is cached in process, so a revoked owner session or a cleared
// visitor token takes effect on the next observation.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/estatedesk/internal/auth"
	"github.com/estatedesk/internal/model"
	"github.com/estatedesk/internal/storage"
)

const (
	// OwnerTokenCookie and VisitorTokenCookie are how browsers present
	// their credentials; the matching headers exist for non-cookie clients.
	OwnerTokenCookie   = "owner_token"
	VisitorTokenCookie = "visitor_token"
	OwnerTokenHeader   = "X-Owner-Token"
	VisitorTokenHeader = "X-Visitor-Token"
)

// Actor is the resolved identity of a request. The zero value is anonymous:
// no owner session and no visitor identity yet.
type Actor struct {
	Role     model.Role
	Identity *model.VisitorIdentity
	// Token is the visitor token the identity was found under (empty for
	// the owner).
	Token string
}

func (a Actor) IsOwner() bool   { return a.Role == model.RoleOwner }
func (a Actor) IsVisitor() bool { return a.Role == model.RoleVisitor && a.Identity != nil }

// Anonymous reports the normal no-identity-yet state: the caller must
// collect name and email before any conversation action.
func (a Actor) Anonymous() bool { return !a.IsOwner() && !a.IsVisitor() }

type Resolver struct {
	sessions *auth.Service
	store    storage.Store
}

func NewResolver(sessions *auth.Service, store storage.Store) *Resolver {
	return &Resolver{sessions: sessions, store: store}
}

// Resolve determines the actor for r. An active owner session wins
// unconditionally over any visitor token carried by the same request.
// A missing or stale visitor token resolves to anonymous, not an error.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (Actor, error) {
	if token := requestToken(req, OwnerTokenHeader, OwnerTokenCookie); token != "" {
		err := r.sessions.Verify(ctx, token)
		if err == nil {
			return Actor{Role: model.RoleOwner}, nil
		}
		if !errors.Is(err, auth.ErrInvalidSession) {
			return Actor{}, err
		}
		// Invalid owner token: fall through to visitor resolution.
	}

	token := requestToken(req, VisitorTokenHeader, VisitorTokenCookie)
	if token == "" {
		return Actor{}, nil
	}
	ident, err := r.store.GetIdentity(ctx, token)
	if err != nil {
		return Actor{}, err
	}
	if ident == nil {
		return Actor{}, nil
	}
	return Actor{Role: model.RoleVisitor, Identity: ident, Token: token}, nil
}

// NewVisitor creates and persists a fresh pseudo-identity, returning the
// opaque token the client must keep.
func (r *Resolver) NewVisitor(ctx context.Context, name, email, phone string) (string, *model.VisitorIdentity, error) {
	ident := &model.VisitorIdentity{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Email:     strings.TrimSpace(email),
		Phone:     strings.TrimSpace(phone),
		CreatedAt: time.Now().UTC(),
	}
	token := uuid.New().String()
	if err := r.store.SaveIdentity(ctx, token, ident); err != nil {
		return "", nil, err
	}
	return token, ident, nil
}

func requestToken(req *http.Request, header, cookie string) string {
	if v := strings.TrimSpace(req.Header.Get(header)); v != "" {
		return v
	}
	if header == OwnerTokenHeader {
		if ah := req.Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
		}
	}
	if c, err := req.Cookie(cookie); err == nil {
		return c.Value
	}
	if v := req.URL.Query().Get(cookie); v != "" {
		return v
	}
	return ""
}
