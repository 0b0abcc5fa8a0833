package projects

import (
	"context"

	"github.com/reelnotes/backend/internal/models"
)

// Repository persists projects. Implementations report repositories.ErrNotFound
// for missing rows and repositories.ErrConflict for a shareable link collision.
type Repository interface {
	Create(ctx context.Context, project models.Project) error
	Get(ctx context.Context, id string) (models.Project, error)
	FindByShareableLink(ctx context.Context, token string) (models.Project, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Project, error)
	ListByCollaborator(ctx context.Context, userID string) ([]models.Project, error)
	SetShareableLink(ctx context.Context, id, token string) error
	SetShareableLinkIfEmpty(ctx context.Context, id, token string) (string, error)
	SetCollaborators(ctx context.Context, id string, collaborators []string) error
	// UpdateCollaborators runs mutate against a fresh read inside one
	// transaction and writes the roster when mutate reports a change.
	UpdateCollaborators(ctx context.Context, id string, mutate RosterMutator) ([]string, error)
	// DeleteCascade removes the project and all of its comments atomically.
	DeleteCascade(ctx context.Context, id string) error
}

// RosterMutator derives the next collaborator list from the stored project.
type RosterMutator = func(current models.Project) (next []string, changed bool, err error)

// TokenGenerator mints shareable link tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// ChangePublisher is told when a project's comment thread changes shape.
type ChangePublisher interface {
	Publish(ctx context.Context, projectID string)
}

// AssetCleaner removes the blobs stored for a project.
type AssetCleaner interface {
	DeleteProjectAssets(ctx context.Context, projectID string) error
}

// MetadataScheduler queues background enrichment for a new project.
type MetadataScheduler interface {
	Enqueue(ctx context.Context, project models.Project) error
}
