package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reelnotes/backend/internal/db"
	"github.com/reelnotes/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for accounts.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

const userColumns = `id, email, password_hash, display_name, photo_url, created_at, updated_at`

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, display_name, photo_url, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `, user.ID, user.Email, user.Password, user.DisplayName, user.PhotoURL, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if errors.Is(translate(err), ErrConflict) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// FindByID fetches a user by id.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UpdateProfile replaces the non-nil profile fields and returns the stored user.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate, updatedAt time.Time) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET display_name = COALESCE($2, display_name),
            photo_url = COALESCE($3, photo_url),
            updated_at = $4
        WHERE id = $1
        RETURNING `+userColumns, id, update.DisplayName, update.PhotoURL, updatedAt)

	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("update user profile: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, query string, arg string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	user, err := scanUser(conn.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.DisplayName, &user.PhotoURL, &user.CreatedAt, &user.UpdatedAt)
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, err
}

var _ UserRepository = (*PostgresUserRepository)(nil)
