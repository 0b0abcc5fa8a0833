package repositories

import (
	"context"
	"time"

	"github.com/reelnotes/backend/internal/models"
)

// UserRepository defines the data access contract for accounts.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate, updatedAt time.Time) (models.User, error)
}
