package middleware

import (
	"context"
	"net/http"

	"github.com/noesis-ai/noesis/internal/api"
)

type contextKey string

const ActorIDKey contextKey = "actor_id"

// RequireActor reads the caller identity from the X-Actor-ID header and
// puts it on the request context. Identity is asserted by the fronting
// gateway; requests without it are rejected.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := r.Header.Get("X-Actor-ID")
		if actorID == "" {
			api.Error(w, http.StatusUnauthorized, "missing actor identity")
			return
		}

		ctx := context.WithValue(r.Context(), ActorIDKey, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActorID returns the actor ID from context.
func GetActorID(ctx context.Context) string {
	actorID, _ := ctx.Value(ActorIDKey).(string)
	return actorID
}
