package middleware

import (
	"context"

	"github.com/estatedesk/internal/identity"
)

type contextKey string

const actorKey contextKey = "actor"

// WithActor stores the resolved actor in the request context.
func WithActor(ctx context.Context, a *identity.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// GetActor returns the actor from the context (set by ResolveActor).
// Never nil below a ResolveActor middleware; anonymous otherwise.
func GetActor(ctx context.Context) *identity.Actor {
	if a, ok := ctx.Value(actorKey).(*identity.Actor); ok {
		return a
	}
	return &identity.Actor{}
}
