package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/logging"
	"github.com/reelnotes/backend/internal/models"
)

// ActorResolver maps a bearer access token to the identity it was issued to.
type ActorResolver interface {
	Authenticate(ctx context.Context, accessToken string) (models.Actor, error)
}

// Authenticate places the bearer token's actor on the request context.
// Requests without credentials pass through as the unauthenticated actor;
// services decide whether that is enough. A presented but invalid token is
// rejected. Event streams may pass the token as the access_token query
// parameter since browsers cannot set headers on them.
func Authenticate(resolver ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			actor, err := resolver.Authenticate(r.Context(), token)
			if err != nil || !actor.Authenticated() {
				logging.FromContext(r.Context()).Warn("rejected bearer token", "error", err)
				writeError(w, apperr.Unauthenticated, "invalid or expired access token")
				return
			}

			ctx := auth.WithActor(r.Context(), actor)
			ctx = logging.With(ctx, "actor", actor.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func writeError(w http.ResponseWriter, kind apperr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperr.HTTPStatus(kind))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"status": string(kind), "message": message},
	})
}
