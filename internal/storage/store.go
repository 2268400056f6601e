package storage

import (
	"context"

	"github.com/estatedesk/internal/model"
)

// Store keeps visitor pseudo-identities (keyed by the opaque token the
// browser persists) and the owner's active sessions.
// Implementations: redis.Client for production, memory.Client for -dev and
// tests. Absent keys are reported as (nil, nil) / (false, nil), not errors.
type Store interface {
	SaveIdentity(ctx context.Context, token string, ident *model.VisitorIdentity) error
	GetIdentity(ctx context.Context, token string) (*model.VisitorIdentity, error)
	DeleteIdentity(ctx context.Context, token string) error

	SetOwnerSession(ctx context.Context, sessionID string) error
	HasOwnerSession(ctx context.Context, sessionID string) (bool, error)
	DeleteOwnerSession(ctx context.Context, sessionID string) error

	Close() error
}
