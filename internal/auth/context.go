package auth

import (
	"context"

	"github.com/reelnotes/backend/internal/models"
)

type actorKey struct{}

// WithActor stores the authenticated actor on the context.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor for the request. The zero Actor means
// nobody is signed in.
func ActorFromContext(ctx context.Context) models.Actor {
	actor, _ := ctx.Value(actorKey{}).(models.Actor)
	return actor
}
