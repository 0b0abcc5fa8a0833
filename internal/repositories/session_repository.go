package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/db"
)

// PostgresSessionStore persists issued token pairs to PostgreSQL.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// Save stores or updates a session record.
func (s *PostgresSessionStore) Save(ctx context.Context, session auth.Session) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO sessions (refresh_token, access_token, user_id, access_expires_at, refresh_expires_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (refresh_token)
        DO UPDATE SET access_token = EXCLUDED.access_token,
                      user_id = EXCLUDED.user_id,
                      access_expires_at = EXCLUDED.access_expires_at,
                      refresh_expires_at = EXCLUDED.refresh_expires_at
    `, session.RefreshToken, session.AccessToken, session.UserID, session.AccessExpiresAt.UTC(), session.RefreshExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	return nil
}

// FindByRefreshToken loads a session by its refresh token.
func (s *PostgresSessionStore) FindByRefreshToken(ctx context.Context, refreshToken string) (auth.Session, error) {
	return s.find(ctx, "refresh_token", refreshToken)
}

// FindByAccessToken loads a session by its bearer token.
func (s *PostgresSessionStore) FindByAccessToken(ctx context.Context, accessToken string) (auth.Session, error) {
	return s.find(ctx, "access_token", accessToken)
}

func (s *PostgresSessionStore) find(ctx context.Context, column, token string) (auth.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return auth.Session{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT refresh_token, access_token, user_id, access_expires_at, refresh_expires_at
        FROM sessions
        WHERE `+column+` = $1
    `, token)

	var session auth.Session
	if err := row.Scan(&session.RefreshToken, &session.AccessToken, &session.UserID, &session.AccessExpiresAt, &session.RefreshExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, fmt.Errorf("select session: %w", err)
	}

	session.AccessExpiresAt = session.AccessExpiresAt.UTC()
	session.RefreshExpiresAt = session.RefreshExpiresAt.UTC()
	return session, nil
}

// Delete removes a session by its refresh token.
func (s *PostgresSessionStore) Delete(ctx context.Context, refreshToken string) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM sessions
        WHERE refresh_token = $1
    `, refreshToken)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrSessionNotFound
	}

	return nil
}

var _ auth.SessionStore = (*PostgresSessionStore)(nil)
