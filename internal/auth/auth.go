// internal/auth/auth.go
package auth

import (
	"context"
	"net/http"
	"strconv"

	"github.com/grassrootshq/outreach-backend/internal/model"
)

type contextKey struct{}

// Middleware reads the verified actor the upstream auth layer attached to
// the request. Verification itself is out of scope for the engine; we
// trust the headers and only enforce roles.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := r.Header.Get("X-Actor-ID")
		role := r.Header.Get("X-Actor-Role")
		if idStr == "" || role == "" {
			http.Error(w, "missing actor identity", http.StatusUnauthorized)
			return
		}
		id, err := strconv.Atoi(idStr)
		if err != nil {
			http.Error(w, "invalid actor id", http.StatusUnauthorized)
			return
		}

		actor := model.Actor{ID: id, Role: model.Role(role)}
		ctx := context.WithValue(r.Context(), contextKey{}, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromRequest returns the actor attached by Middleware.
func FromRequest(r *http.Request) model.Actor {
	actor, _ := r.Context().Value(contextKey{}).(model.Actor)
	return actor
}
