package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelnotes/backend/internal/models"
)

var (
	// ErrSessionNotFound indicates the provided token does not map to an active session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrRefreshTokenExpired indicates the refresh token has expired and cannot be used.
	ErrRefreshTokenExpired = errors.New("refresh token expired")
	// ErrAccessTokenExpired indicates the bearer token is past its lifetime.
	ErrAccessTokenExpired = errors.New("access token expired")
)

// SessionStore persists issued sessions so they can survive process restarts.
type SessionStore interface {
	Save(ctx context.Context, session Session) error
	FindByRefreshToken(ctx context.Context, refreshToken string) (Session, error)
	FindByAccessToken(ctx context.Context, accessToken string) (Session, error)
	Delete(ctx context.Context, refreshToken string) error
}

// Session is the token pair held by one signed-in identity.
type Session struct {
	AccessToken      string
	RefreshToken     string
	UserID           string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Manager manages the lifecycle of issued session tokens backed by a persistent store.
type Manager struct {
	accessTTL  time.Duration
	refreshTTL time.Duration

	store SessionStore
	now   func() time.Time
}

// NewManager constructs a Manager that issues access and refresh tokens with the provided TTLs.
func NewManager(accessTTL, refreshTTL time.Duration, store SessionStore) *Manager {
	if store == nil {
		panic("auth: session store must not be nil")
	}
	return &Manager{
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a new pair of access and refresh tokens for the provided user identifier.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	if userID == "" {
		return models.SessionTokens{}, errors.New("user id must be provided")
	}

	now := m.now()
	accessToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	refreshToken, err := randomToken()
	if err != nil {
		return models.SessionTokens{}, err
	}

	session := Session{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		UserID:           userID,
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshExpiresAt: now.Add(m.refreshTTL),
	}
	if err := m.store.Save(ctx, session); err != nil {
		return models.SessionTokens{}, err
	}

	return models.SessionTokens{
		UserID:           userID,
		Anonymous:        models.IsAnonymous(userID),
		AccessToken:      accessToken,
		AccessExpiresAt:  session.AccessExpiresAt,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: session.RefreshExpiresAt,
	}, nil
}

// IssueAnonymous mints a fresh anonymous identity and a session for it. The
// identity lives only as long as the session chain it starts.
func (m *Manager) IssueAnonymous(ctx context.Context) (models.SessionTokens, error) {
	return m.Issue(ctx, NewAnonymousID())
}

// Refresh exchanges a refresh token for a new session token pair.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, ErrSessionNotFound
	}

	session, err := m.store.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if m.now().After(session.RefreshExpiresAt) {
		_ = m.store.Delete(ctx, refreshToken)
		return models.SessionTokens{}, ErrRefreshTokenExpired
	}

	if err := m.store.Delete(ctx, refreshToken); err != nil {
		return models.SessionTokens{}, err
	}

	return m.Issue(ctx, session.UserID)
}

// Authenticate resolves a bearer access token to the actor it was issued to.
func (m *Manager) Authenticate(ctx context.Context, accessToken string) (models.Actor, error) {
	if accessToken == "" {
		return models.Actor{}, ErrSessionNotFound
	}

	session, err := m.store.FindByAccessToken(ctx, accessToken)
	if err != nil {
		return models.Actor{}, err
	}
	if m.now().After(session.AccessExpiresAt) {
		return models.Actor{}, ErrAccessTokenExpired
	}
	return models.Actor{UserID: session.UserID}, nil
}

// Revoke removes the provided refresh token from the active session store.
func (m *Manager) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	err := m.store.Delete(ctx, refreshToken)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// NewAnonymousID returns a fresh identifier carrying the anonymous prefix.
func NewAnonymousID() string {
	return models.AnonymousPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func randomToken() (string, error) {
	const size = 32
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
