package timeline

import (
	"context"

	"github.com/reelnotes/backend/internal/models"
)

// Repository persists comments. Lists come back ordered by timestamp, then
// by insertion sequence.
type Repository interface {
	Create(ctx context.Context, comment models.Comment) (models.Comment, error)
	Get(ctx context.Context, projectID, commentID string) (models.Comment, error)
	List(ctx context.Context, projectID string, filter models.CommentFilter) ([]models.Comment, error)
	UpdateFields(ctx context.Context, projectID, commentID string, patch models.CommentPatch) (models.Comment, error)
	SetAnnotations(ctx context.Context, projectID, commentID string, annotations []models.Annotation) error
	// UpdateAnnotations runs mutate against a fresh read inside one
	// transaction and writes the result when mutate reports a change.
	UpdateAnnotations(ctx context.Context, projectID, commentID string, mutate AnnotationMutator) ([]models.Annotation, error)
	Delete(ctx context.Context, projectID, commentID string) error
}

// AnnotationMutator derives the next annotation list from the stored comment.
type AnnotationMutator = func(current models.Comment) (next []models.Annotation, changed bool, err error)

// ProjectReader resolves the projects comments hang off.
type ProjectReader interface {
	Get(ctx context.Context, projectID string) (models.Project, error)
	FindByShareableLink(ctx context.Context, token string) (models.Project, error)
}

// ChangePublisher announces that the comments of a project changed.
type ChangePublisher interface {
	Publish(ctx context.Context, projectID string)
}
