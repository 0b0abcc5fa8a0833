package handlers

import (
	"context"
	"time"

	"github.com/reelnotes/backend/internal/models"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate, updatedAt time.Time) (models.User, error)
}

// SessionManager issues, refreshes and revokes authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	IssueAnonymous(ctx context.Context) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
