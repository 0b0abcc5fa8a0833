package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	crdbpgx "github.com/cockroachdb/cockroach-go/v2/crdb/crdbpgxv5"
	"github.com/jackc/pgx/v5"

	"github.com/reelnotes/backend/internal/db"
	"github.com/reelnotes/backend/internal/models"
)

// PostgresCommentRepository stores comments keyed by (project_id, id) with the
// annotation list held as JSONB.
type PostgresCommentRepository struct {
	pool db.Pool
}

// NewPostgresCommentRepository constructs a comment repository backed by PostgreSQL.
func NewPostgresCommentRepository(pool db.Pool) *PostgresCommentRepository {
	return &PostgresCommentRepository{pool: pool}
}

const commentColumns = `id, project_id, commenter_id, timestamp_seconds, text, created_at, annotations, seq`

// Create inserts a comment and returns it with its insertion sequence. A
// missing project reports ErrNotFound.
func (r *PostgresCommentRepository) Create(ctx context.Context, comment models.Comment) (models.Comment, error) {
	annotations, err := encodeAnnotations(comment.Annotations)
	if err != nil {
		return models.Comment{}, err
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	created, err := scanComment(conn.QueryRow(ctx, `
        INSERT INTO comments (id, project_id, commenter_id, timestamp_seconds, text, created_at, annotations)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING `+commentColumns,
		comment.ID, comment.ProjectID, comment.CommenterID, comment.Timestamp, comment.Text, comment.CreatedAt, annotations))
	if err != nil {
		if translated := translate(err); translated != err {
			return models.Comment{}, translated
		}
		return models.Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	return created, nil
}

// Get loads one comment.
func (r *PostgresCommentRepository) Get(ctx context.Context, projectID, commentID string) (models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	comment, err := scanComment(conn.QueryRow(ctx, `
        SELECT `+commentColumns+`
        FROM comments
        WHERE project_id = $1 AND id = $2
    `, projectID, commentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("select comment: %w", err)
	}
	return comment, nil
}

// List returns the project's comments matching filter, ordered by playback
// position and then insertion order.
func (r *PostgresCommentRepository) List(ctx context.Context, projectID string, filter models.CommentFilter) ([]models.Comment, error) {
	conditions := []string{"project_id = $1"}
	args := []any{projectID}
	addCondition := func(clause string, arg any) {
		args = append(args, arg)
		conditions = append(conditions, clause+" $"+strconv.Itoa(len(args)))
	}
	if filter.From != nil {
		addCondition("timestamp_seconds >=", *filter.From)
	}
	if filter.To != nil {
		addCondition("timestamp_seconds <=", *filter.To)
	}
	if filter.CommenterID != "" {
		addCondition("commenter_id =", filter.CommenterID)
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+commentColumns+`
        FROM comments
        WHERE `+strings.Join(conditions, " AND ")+`
        ORDER BY timestamp_seconds ASC, seq ASC
    `, args...)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// UpdateFields applies the non-nil fields of patch and returns the stored comment.
func (r *PostgresCommentRepository) UpdateFields(ctx context.Context, projectID, commentID string, patch models.CommentPatch) (models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Comment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	comment, err := scanComment(conn.QueryRow(ctx, `
        UPDATE comments
        SET text = COALESCE($3, text),
            timestamp_seconds = COALESCE($4, timestamp_seconds)
        WHERE project_id = $1 AND id = $2
        RETURNING `+commentColumns, projectID, commentID, patch.Text, patch.Timestamp))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Comment{}, ErrNotFound
		}
		return models.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return comment, nil
}

// SetAnnotations overwrites the comment's annotation list.
func (r *PostgresCommentRepository) SetAnnotations(ctx context.Context, projectID, commentID string, annotations []models.Annotation) error {
	encoded, err := encodeAnnotations(annotations)
	if err != nil {
		return err
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE comments
        SET annotations = $3
        WHERE project_id = $1 AND id = $2
    `, projectID, commentID, encoded)
	if err != nil {
		return fmt.Errorf("update annotations: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAnnotations reads the comment, applies mutate and writes the list in
// one serializable transaction.
func (r *PostgresCommentRepository) UpdateAnnotations(ctx context.Context, projectID, commentID string, mutate func(models.Comment) ([]models.Annotation, bool, error)) ([]models.Annotation, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var result []models.Annotation
	err = crdbpgx.ExecuteTx(ctx, conn, serializable, func(tx pgx.Tx) error {
		current, err := scanComment(tx.QueryRow(ctx, `
            SELECT `+commentColumns+`
            FROM comments
            WHERE project_id = $1 AND id = $2
            FOR UPDATE
        `, projectID, commentID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("select comment: %w", err)
		}

		next, changed, err := mutate(current)
		if err != nil {
			return err
		}
		if changed {
			encoded, err := encodeAnnotations(next)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
                UPDATE comments
                SET annotations = $3
                WHERE project_id = $1 AND id = $2
            `, projectID, commentID, encoded); err != nil {
				return fmt.Errorf("update annotations: %w", err)
			}
		}
		result = slices.Clone(next)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []models.Annotation{}
	}
	return result, nil
}

// Delete removes one comment.
func (r *PostgresCommentRepository) Delete(ctx context.Context, projectID, commentID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM comments WHERE project_id = $1 AND id = $2`, projectID, commentID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeAnnotations(annotations []models.Annotation) (string, error) {
	if annotations == nil {
		annotations = []models.Annotation{}
	}
	data, err := json.Marshal(annotations)
	if err != nil {
		return "", fmt.Errorf("encode annotations: %w", err)
	}
	return string(data), nil
}

func scanComment(row pgx.Row) (models.Comment, error) {
	var (
		c   models.Comment
		raw []byte
	)
	if err := row.Scan(&c.ID, &c.ProjectID, &c.CommenterID, &c.Timestamp, &c.Text, &c.CreatedAt, &raw, &c.Seq); err != nil {
		return models.Comment{}, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &c.Annotations); err != nil {
			return models.Comment{}, fmt.Errorf("decode annotations: %w", err)
		}
	}
	if c.Annotations == nil {
		c.Annotations = []models.Annotation{}
	}
	return c, nil
}
