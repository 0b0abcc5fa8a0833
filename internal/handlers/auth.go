package handlers

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/logging"
	"github.com/reelnotes/backend/internal/models"
	"github.com/reelnotes/backend/internal/repositories"
)

const (
	minPasswordLength = 8
	maxDisplayName    = 100
)

// AuthHandler implements account and session endpoints.
type AuthHandler struct {
	Users    UserStore
	Sessions SessionManager
	NowFunc  func() time.Time
}

// Login handles POST /api/v1/auth/login requests.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondKind(ctx, w, apperr.Internal, "authentication services unavailable")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		respondKind(ctx, w, apperr.InvalidArgument, "email and password are required")
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, err)
			return
		}
		logger.Warn("login unknown account", "email", req.Email)
		respondKind(ctx, w, apperr.Unauthenticated, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondKind(ctx, w, apperr.Unauthenticated, "invalid credentials")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens, User: &user})
}

// SignUp handles POST /api/v1/auth/signup requests.
func (h AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Users == nil || h.Sessions == nil {
		logger.Error("authentication dependencies unavailable", "hasUsers", h.Users != nil, "hasSessions", h.Sessions != nil)
		respondKind(ctx, w, apperr.Internal, "authentication services unavailable")
		return
	}

	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	req.Email = normalizeEmail(req.Email)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.Email == "" || req.Password == "" {
		respondKind(ctx, w, apperr.InvalidArgument, "email and password are required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondKind(ctx, w, apperr.InvalidArgument, "invalid email address")
		return
	}
	if len(req.Password) < minPasswordLength {
		respondKind(ctx, w, apperr.InvalidArgument, "password must be at least 8 characters")
		return
	}
	if len(req.DisplayName) > maxDisplayName {
		respondKind(ctx, w, apperr.InvalidArgument, "display name is too long")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("signup failed to hash password", "error", err)
		respondKind(ctx, w, apperr.Internal, "failed to secure password")
		return
	}

	now := h.now()
	user := models.User{
		ID:          uuid.NewString(),
		Email:       req.Email,
		Password:    string(hashed),
		DisplayName: req.DisplayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondKind(ctx, w, apperr.AlreadyExists, "account already exists")
			return
		}
		respondError(ctx, w, err)
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	logger.Info("account created", "userId", user.ID)
	respondJSON(ctx, w, http.StatusCreated, authResponse{Tokens: tokens, User: &user})
}

// Anonymous handles POST /api/v1/auth/anonymous, minting a session-scoped
// identity for link holders who have no account.
func (h AuthHandler) Anonymous(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Sessions == nil {
		logging.FromContext(ctx).Error("session manager unavailable")
		respondKind(ctx, w, apperr.Internal, "session service unavailable")
		return
	}

	tokens, err := h.Sessions.IssueAnonymous(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, authResponse{Tokens: tokens})
}

// Refresh exchanges a refresh token for a new session.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Sessions == nil {
		logging.FromContext(ctx).Error("session manager unavailable")
		respondKind(ctx, w, apperr.Internal, "session service unavailable")
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondKind(ctx, w, apperr.InvalidArgument, "refresh token is required")
		return
	}

	tokens, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrRefreshTokenExpired) || errors.Is(err, auth.ErrSessionNotFound) {
			respondError(ctx, w, apperr.Wrap(apperr.Unauthenticated, "unable to refresh session", err))
			return
		}
		respondError(ctx, w, err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, authResponse{Tokens: tokens})
}

// Logout revokes the refresh token, ending the session. Unknown tokens succeed.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.Sessions == nil {
		logging.FromContext(ctx).Error("session manager unavailable")
		respondKind(ctx, w, apperr.Internal, "session service unavailable")
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	if err := h.Sessions.Revoke(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		respondError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/auth/me.
func (h AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFromContext(ctx)

	switch {
	case !actor.Authenticated():
		respondKind(ctx, w, apperr.Unauthenticated, "sign in required")
		return
	case actor.Anonymous():
		respondJSON(ctx, w, http.StatusOK, profileResponse{User: models.User{ID: actor.UserID}, Anonymous: true})
		return
	case h.Users == nil:
		respondKind(ctx, w, apperr.Internal, "authentication services unavailable")
		return
	}

	user, err := h.Users.FindByID(ctx, actor.UserID)
	if err != nil {
		respondError(ctx, w, userError(err))
		return
	}

	respondJSON(ctx, w, http.StatusOK, profileResponse{User: user})
}

// UpdateMe handles PATCH /api/v1/auth/me. Only the fields present change.
func (h AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.ActorFromContext(ctx)

	switch {
	case !actor.Authenticated():
		respondKind(ctx, w, apperr.Unauthenticated, "sign in required")
		return
	case actor.Anonymous():
		respondKind(ctx, w, apperr.PermissionDenied, "anonymous sessions have no profile")
		return
	case h.Users == nil:
		respondKind(ctx, w, apperr.Internal, "authentication services unavailable")
		return
	}

	var req profileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}

	update := models.ProfileUpdate{}
	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if len(name) > maxDisplayName {
			respondKind(ctx, w, apperr.InvalidArgument, "display name is too long")
			return
		}
		update.DisplayName = &name
	}
	if req.PhotoURL != nil {
		photo := strings.TrimSpace(*req.PhotoURL)
		update.PhotoURL = &photo
	}

	user, err := h.Users.UpdateProfile(ctx, actor.UserID, update, h.now())
	if err != nil {
		respondError(ctx, w, userError(err))
		return
	}

	respondJSON(ctx, w, http.StatusOK, profileResponse{User: user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type profileRequest struct {
	DisplayName *string `json:"displayName"`
	PhotoURL    *string `json:"photoURL"`
}

type authResponse struct {
	Tokens models.SessionTokens `json:"tokens"`
	User   *models.User         `json:"user,omitempty"`
}

type profileResponse struct {
	User      models.User `json:"user"`
	Anonymous bool        `json:"anonymous"`
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func userError(err error) error {
	if errors.Is(err, repositories.ErrNotFound) {
		return apperr.Wrap(apperr.NotFound, "account not found", err)
	}
	return err
}
