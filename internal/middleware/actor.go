package middleware

import (
	"net/http"

	"github.com/estatedesk/internal/identity"
	"github.com/estatedesk/internal/logger"
)

// ResolveActor resolves the request's actor (owner, visitor or anonymous)
// and puts it in the context. Resolution failures from the session or
// identity store surface as 500; a bad or missing token is anonymous, not
// an error.
func ResolveActor(resolver *identity.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, err := resolver.Resolve(r.Context(), r)
			if err != nil {
				logger.Errorf("resolve actor: %v", err)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), &actor)))
		})
	}
}

// OwnerOnly rejects any request whose actor is not the owner.
func OwnerOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !GetActor(r.Context()).IsOwner() {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
