package repositories

import (
	"context"
	"errors"
	"fmt"
	"slices"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"

	"github.com/reelnotes/backend/internal/db"
	"github.com/reelnotes/backend/internal/models"
)

// serializable is the isolation every read-modify-write transaction runs at.
var serializable = pgx.TxOptions{IsoLevel: pgx.Serializable}

// PostgresProjectRepository stores projects. An unset shareable link is kept
// as NULL so the unique index only covers issued tokens.
type PostgresProjectRepository struct {
	pool db.Pool
}

// NewPostgresProjectRepository constructs a project repository backed by PostgreSQL.
func NewPostgresProjectRepository(pool db.Pool) *PostgresProjectRepository {
	return &PostgresProjectRepository{pool: pool}
}

const projectColumns = `id, title, video_url, owner_id, created_at, COALESCE(shareable_link, ''), collaborators, thumbnail_url, video_duration`

// Create inserts a project. A taken shareable link reports ErrConflict.
func (r *PostgresProjectRepository) Create(ctx context.Context, project models.Project) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	collaborators := project.Collaborators
	if collaborators == nil {
		collaborators = []string{}
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO projects (id, title, video_url, owner_id, created_at, shareable_link, collaborators, thumbnail_url, video_duration)
        VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)
    `, project.ID, project.Title, project.VideoURL, project.OwnerID, project.CreatedAt, project.ShareableLink, collaborators, project.ThumbnailURL, project.VideoDuration)
	if err != nil {
		if errors.Is(translate(err), ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

// Get loads a project by id.
func (r *PostgresProjectRepository) Get(ctx context.Context, id string) (models.Project, error) {
	return r.findOne(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
}

// FindByShareableLink resolves a token to its project.
func (r *PostgresProjectRepository) FindByShareableLink(ctx context.Context, token string) (models.Project, error) {
	if token == "" {
		return models.Project{}, ErrNotFound
	}
	return r.findOne(ctx, `SELECT `+projectColumns+` FROM projects WHERE shareable_link = $1`, token)
}

// ListByOwner returns the owner's projects, newest first.
func (r *PostgresProjectRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Project, error) {
	return r.list(ctx, `
        SELECT `+projectColumns+`
        FROM projects
        WHERE owner_id = $1
        ORDER BY created_at DESC, id DESC
    `, ownerID)
}

// ListByCollaborator returns the projects whose roster lists the user, newest first.
func (r *PostgresProjectRepository) ListByCollaborator(ctx context.Context, userID string) ([]models.Project, error) {
	return r.list(ctx, `
        SELECT `+projectColumns+`
        FROM projects
        WHERE $1 = ANY(collaborators)
        ORDER BY created_at DESC, id DESC
    `, userID)
}

// SetShareableLink overwrites the project's token.
func (r *PostgresProjectRepository) SetShareableLink(ctx context.Context, id, token string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE projects SET shareable_link = $2 WHERE id = $1`, id, token)
	if err != nil {
		if errors.Is(translate(err), ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("update shareable link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetShareableLinkIfEmpty assigns token only when the project has none and
// returns the token the project ends up with.
func (r *PostgresProjectRepository) SetShareableLinkIfEmpty(ctx context.Context, id, token string) (string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var effective string
	err = conn.QueryRow(ctx, `
        UPDATE projects
        SET shareable_link = $2
        WHERE id = $1 AND shareable_link IS NULL
        RETURNING shareable_link
    `, id, token).Scan(&effective)
	switch {
	case err == nil:
		return effective, nil
	case errors.Is(translate(err), ErrConflict):
		return "", ErrConflict
	case !errors.Is(err, pgx.ErrNoRows):
		return "", fmt.Errorf("assign shareable link: %w", err)
	}

	err = conn.QueryRow(ctx, `SELECT COALESCE(shareable_link, '') FROM projects WHERE id = $1`, id).Scan(&effective)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("select shareable link: %w", err)
	}
	return effective, nil
}

// SetCollaborators overwrites the roster.
func (r *PostgresProjectRepository) SetCollaborators(ctx context.Context, id string, collaborators []string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if collaborators == nil {
		collaborators = []string{}
	}
	tag, err := conn.Exec(ctx, `UPDATE projects SET collaborators = $2 WHERE id = $1`, id, collaborators)
	if err != nil {
		return fmt.Errorf("update collaborators: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCollaborators reads the project, applies mutate and writes the roster
// in one serializable transaction. Serialization failures are retried.
func (r *PostgresProjectRepository) UpdateCollaborators(ctx context.Context, id string, mutate func(models.Project) ([]string, bool, error)) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var roster []string
	err = crdbpgx.ExecuteTx(ctx, conn, serializable, func(tx pgx.Tx) error {
		project, err := scanProject(tx.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("select project: %w", err)
		}

		next, changed, err := mutate(project)
		if err != nil {
			return err
		}
		if next == nil {
			next = []string{}
		}
		if changed {
			if _, err := tx.Exec(ctx, `UPDATE projects SET collaborators = $2 WHERE id = $1`, id, next); err != nil {
				return fmt.Errorf("update collaborators: %w", err)
			}
		}
		roster = slices.Clone(next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roster, nil
}

// DeleteCascade removes the project's comments and the project as one batch
// inside a serializable transaction.
func (r *PostgresProjectRepository) DeleteCascade(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	return crdbpgx.ExecuteTx(ctx, conn, serializable, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM comments WHERE project_id = $1`, id)
		batch.Queue(`DELETE FROM projects WHERE id = $1`, id)

		results := tx.SendBatch(ctx, batch)
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("delete project comments: %w", err)
		}
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return fmt.Errorf("delete project: %w", err)
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("close delete batch: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SetVideoMetadata records enrichment fetched for a linked video.
func (r *PostgresProjectRepository) SetVideoMetadata(ctx context.Context, id string, meta models.VideoMetadata) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE projects
        SET thumbnail_url = $2, video_duration = $3
        WHERE id = $1
    `, id, meta.ThumbnailURL, meta.Duration)
	if err != nil {
		return fmt.Errorf("update video metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresProjectRepository) findOne(ctx context.Context, query, arg string) (models.Project, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Project{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	project, err := scanProject(conn.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Project{}, ErrNotFound
		}
		return models.Project{}, fmt.Errorf("select project: %w", err)
	}
	return project, nil
}

func (r *PostgresProjectRepository) list(ctx context.Context, query, arg string) ([]models.Project, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return projects, nil
}

func scanProject(row pgx.Row) (models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Title, &p.VideoURL, &p.OwnerID, &p.CreatedAt, &p.ShareableLink, &p.Collaborators, &p.ThumbnailURL, &p.VideoDuration)
	if p.Collaborators == nil {
		p.Collaborators = []string{}
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}
