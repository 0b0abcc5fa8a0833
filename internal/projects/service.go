// Package projects owns project lifecycle: creation, the collaborator roster,
// shareable links and cascade deletion.
package projects

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reelnotes/backend/internal/access"
	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/logging"
	"github.com/reelnotes/backend/internal/models"
	"github.com/reelnotes/backend/internal/repositories"
	"github.com/reelnotes/backend/internal/sharelink"
)

// maxLinkAttempts bounds regeneration after a token collides with another project's.
const maxLinkAttempts = 5

// Roster actions accepted by UpdateCollaborators.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// CreateRequest holds the fields a caller supplies for a new project.
type CreateRequest struct {
	Title         string
	VideoURL      string
	ShareableLink string
}

// RosterChange is the callable form of a roster mutation.
type RosterChange struct {
	ProjectID string
	UserID    string
	Action    string
}

// Dashboard groups the projects an actor can open.
type Dashboard struct {
	Owned  []models.Project `json:"owned"`
	Shared []models.Project `json:"shared"`
}

// Options tunes a Service. Every collaborator is optional.
type Options struct {
	Tokens        TokenGenerator
	Publisher     ChangePublisher
	Assets        AssetCleaner
	Metadata      MetadataScheduler
	Transactional bool
	Now           func() time.Time
}

// Service implements project operations.
type Service struct {
	repo          Repository
	tokens        TokenGenerator
	publisher     ChangePublisher
	assets        AssetCleaner
	metadata      MetadataScheduler
	transactional bool
	now           func() time.Time
}

// NewService constructs a project service over repo.
func NewService(repo Repository, opts Options) *Service {
	svc := &Service{
		repo:          repo,
		tokens:        opts.Tokens,
		publisher:     opts.Publisher,
		assets:        opts.Assets,
		metadata:      opts.Metadata,
		transactional: opts.Transactional,
		now:           opts.Now,
	}
	if svc.tokens == nil {
		svc.tokens = sharelink.NewGenerator()
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

// Create makes the actor the owner of a new project. Without a supplied token
// the project is issued one as part of the insert.
func (s *Service) Create(ctx context.Context, actor models.Actor, req CreateRequest) (models.Project, error) {
	ctx, span := logging.StartSpan(ctx, "projects.create", "actor", actor.UserID)
	defer span.End()

	if !actor.Authenticated() {
		return models.Project{}, span.Fail(apperr.New(apperr.Unauthenticated, "sign in to create a project"))
	}
	if actor.Anonymous() {
		return models.Project{}, span.Fail(apperr.New(apperr.PermissionDenied, "anonymous sessions cannot own projects"))
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return models.Project{}, span.Fail(apperr.New(apperr.InvalidArgument, "title is required"))
	}
	videoURL := strings.TrimSpace(req.VideoURL)
	if err := validateVideoURL(videoURL); err != nil {
		return models.Project{}, span.Fail(err)
	}
	supplied := strings.TrimSpace(req.ShareableLink)
	if supplied != "" && !sharelink.Valid(supplied) {
		return models.Project{}, span.Fail(apperr.New(apperr.InvalidArgument, "shareable link must be 16 alphanumeric characters"))
	}

	project := models.Project{
		ID:            uuid.NewString(),
		Title:         title,
		VideoURL:      videoURL,
		OwnerID:       actor.UserID,
		CreatedAt:     s.now(),
		ShareableLink: supplied,
		Collaborators: []string{},
	}

	if supplied != "" {
		if err := s.repo.Create(ctx, project); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return models.Project{}, span.Fail(apperr.Wrap(apperr.AlreadyExists, "shareable link already in use", err))
			}
			return models.Project{}, span.Fail(storeError(ctx, err, "project not found"))
		}
	} else {
		err := s.withFreshToken(func(token string) error {
			project.ShareableLink = token
			return s.repo.Create(ctx, project)
		})
		if err != nil {
			return models.Project{}, span.Fail(storeError(ctx, err, "project not found"))
		}
	}

	if s.metadata != nil {
		if err := s.metadata.Enqueue(ctx, project); err != nil {
			logging.FromContext(ctx).Warn("metadata enrichment not scheduled", "project_id", project.ID, "error", err)
		}
	}
	return project, nil
}

// Get returns a project the actor owns or collaborates on.
func (s *Service) Get(ctx context.Context, actor models.Actor, projectID string) (models.Project, error) {
	if !actor.Authenticated() {
		return models.Project{}, apperr.New(apperr.Unauthenticated, "sign in to view this project")
	}
	project, err := s.load(ctx, projectID)
	if err != nil {
		return models.Project{}, err
	}
	if !access.Classify(actor.UserID, project).HasAccess() {
		return models.Project{}, apperr.New(apperr.PermissionDenied, "no access to this project")
	}
	return project, nil
}

// ResolveShareableLink maps a token back to its project.
func (s *Service) ResolveShareableLink(ctx context.Context, token string) (models.Project, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Project{}, apperr.New(apperr.InvalidArgument, "shareable link is required")
	}
	if !sharelink.Valid(token) {
		return models.Project{}, apperr.New(apperr.NotFound, "shared project not found")
	}
	project, err := s.repo.FindByShareableLink(ctx, token)
	if err != nil {
		return models.Project{}, storeError(ctx, err, "shared project not found")
	}
	return project, nil
}

// List returns the actor's dashboard, newest first in each group.
func (s *Service) List(ctx context.Context, actor models.Actor) (Dashboard, error) {
	if !actor.Authenticated() {
		return Dashboard{}, apperr.New(apperr.Unauthenticated, "sign in to list projects")
	}
	owned, err := s.repo.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return Dashboard{}, storeError(ctx, err, "projects not found")
	}
	shared, err := s.repo.ListByCollaborator(ctx, actor.UserID)
	if err != nil {
		return Dashboard{}, storeError(ctx, err, "projects not found")
	}
	if owned == nil {
		owned = []models.Project{}
	}
	if shared == nil {
		shared = []models.Project{}
	}
	return Dashboard{Owned: owned, Shared: shared}, nil
}

// CheckAccess classifies userID against the project. Anyone may ask.
func (s *Service) CheckAccess(ctx context.Context, projectID, userID string) (access.Role, error) {
	project, err := s.load(ctx, projectID)
	if err != nil {
		return access.RoleNone, err
	}
	return access.Classify(userID, project), nil
}

// Delete removes the project and its comments. Stored assets are cleaned up
// afterwards on a best-effort basis.
func (s *Service) Delete(ctx context.Context, actor models.Actor, projectID string) error {
	ctx, span := logging.StartSpan(ctx, "projects.delete", "actor", actor.UserID, "project_id", projectID)
	defer span.End()

	if _, err := s.requireOwner(ctx, actor, projectID); err != nil {
		return span.Fail(err)
	}
	if err := s.repo.DeleteCascade(ctx, projectID); err != nil {
		return span.Fail(storeError(ctx, err, "project not found"))
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, projectID)
	}
	if s.assets != nil {
		if err := s.assets.DeleteProjectAssets(ctx, projectID); err != nil {
			logging.FromContext(ctx).Warn("project assets not removed", "project_id", projectID, "error", err)
		}
	}
	return nil
}

// IssueShareableLink assigns a token only when the project has none and
// returns the project's token either way.
func (s *Service) IssueShareableLink(ctx context.Context, projectID string) (string, error) {
	if projectID == "" {
		return "", apperr.New(apperr.InvalidArgument, "project id is required")
	}
	var issued string
	err := s.withFreshToken(func(token string) error {
		effective, err := s.repo.SetShareableLinkIfEmpty(ctx, projectID, token)
		issued = effective
		return err
	})
	if err != nil {
		return "", storeError(ctx, err, "project not found")
	}
	return issued, nil
}

// RegenerateShareableLink unconditionally replaces the project's token.
func (s *Service) RegenerateShareableLink(ctx context.Context, actor models.Actor, projectID string) (string, error) {
	ctx, span := logging.StartSpan(ctx, "projects.regenerateLink", "actor", actor.UserID, "project_id", projectID)
	defer span.End()

	if _, err := s.requireOwner(ctx, actor, projectID); err != nil {
		return "", span.Fail(err)
	}

	var issued string
	err := s.withFreshToken(func(token string) error {
		issued = token
		return s.repo.SetShareableLink(ctx, projectID, token)
	})
	if err != nil {
		return "", span.Fail(storeError(ctx, err, "project not found"))
	}
	return issued, nil
}

// AddCollaborator grants userID standing access. Adding an existing member is
// a no-op. Returns the resulting roster.
func (s *Service) AddCollaborator(ctx context.Context, actor models.Actor, projectID, userID string) ([]string, error) {
	ctx, span := logging.StartSpan(ctx, "projects.addCollaborator", "actor", actor.UserID, "project_id", projectID, "user_id", userID)
	defer span.End()

	roster, err := s.mutateRoster(ctx, actor, projectID, userID, func(current []string) ([]string, bool) {
		if slices.Contains(current, userID) {
			return current, false
		}
		return append(slices.Clone(current), userID), true
	})
	return roster, span.Fail(err)
}

// RemoveCollaborator revokes every occurrence of userID. Returns the resulting roster.
func (s *Service) RemoveCollaborator(ctx context.Context, actor models.Actor, projectID, userID string) ([]string, error) {
	ctx, span := logging.StartSpan(ctx, "projects.removeCollaborator", "actor", actor.UserID, "project_id", projectID, "user_id", userID)
	defer span.End()

	roster, err := s.mutateRoster(ctx, actor, projectID, userID, func(current []string) ([]string, bool) {
		next := slices.DeleteFunc(slices.Clone(current), func(id string) bool { return id == userID })
		return next, len(next) != len(current)
	})
	return roster, span.Fail(err)
}

// UpdateCollaborators dispatches a roster change by action name.
func (s *Service) UpdateCollaborators(ctx context.Context, actor models.Actor, change RosterChange) ([]string, error) {
	if !actor.Authenticated() {
		return nil, apperr.New(apperr.Unauthenticated, "sign in to manage collaborators")
	}
	if change.ProjectID == "" || change.UserID == "" || change.Action == "" {
		return nil, apperr.New(apperr.InvalidArgument, "project id, user id and action are required")
	}
	switch change.Action {
	case ActionAdd:
		return s.AddCollaborator(ctx, actor, change.ProjectID, change.UserID)
	case ActionRemove:
		return s.RemoveCollaborator(ctx, actor, change.ProjectID, change.UserID)
	default:
		return nil, apperr.New(apperr.InvalidArgument, fmt.Sprintf("action must be %q or %q", ActionAdd, ActionRemove))
	}
}

func (s *Service) mutateRoster(ctx context.Context, actor models.Actor, projectID, userID string, apply func([]string) ([]string, bool)) ([]string, error) {
	if !actor.Authenticated() {
		return nil, apperr.New(apperr.Unauthenticated, "sign in to manage collaborators")
	}
	if projectID == "" || userID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "project id and user id are required")
	}
	if models.IsAnonymous(userID) {
		return nil, apperr.New(apperr.InvalidArgument, "anonymous identities cannot be collaborators")
	}

	guarded := func(current models.Project) ([]string, bool, error) {
		if !access.Classify(actor.UserID, current).CanManage() {
			return nil, false, apperr.New(apperr.PermissionDenied, "only the project owner can manage collaborators")
		}
		next, changed := apply(current.Collaborators)
		return next, changed, nil
	}

	var (
		roster []string
		err    error
	)
	if s.transactional {
		roster, err = s.repo.UpdateCollaborators(ctx, projectID, guarded)
		if err != nil {
			return nil, storeError(ctx, err, "project not found")
		}
	} else {
		current, err := s.load(ctx, projectID)
		if err != nil {
			return nil, err
		}
		next, changed, err := guarded(current)
		if err != nil {
			return nil, err
		}
		if changed {
			if err := s.repo.SetCollaborators(ctx, projectID, next); err != nil {
				return nil, storeError(ctx, err, "project not found")
			}
		}
		roster = next
	}

	if roster == nil {
		roster = []string{}
	}
	return roster, nil
}

func (s *Service) requireOwner(ctx context.Context, actor models.Actor, projectID string) (models.Project, error) {
	if !actor.Authenticated() {
		return models.Project{}, apperr.New(apperr.Unauthenticated, "sign in to manage this project")
	}
	project, err := s.load(ctx, projectID)
	if err != nil {
		return models.Project{}, err
	}
	if !access.Classify(actor.UserID, project).CanManage() {
		return models.Project{}, apperr.New(apperr.PermissionDenied, "only the project owner can do that")
	}
	return project, nil
}

func (s *Service) load(ctx context.Context, projectID string) (models.Project, error) {
	if projectID == "" {
		return models.Project{}, apperr.New(apperr.InvalidArgument, "project id is required")
	}
	project, err := s.repo.Get(ctx, projectID)
	if err != nil {
		return models.Project{}, storeError(ctx, err, "project not found")
	}
	return project, nil
}

// withFreshToken calls write with newly generated tokens until it stops
// reporting a collision.
func (s *Service) withFreshToken(write func(token string) error) error {
	var err error
	for attempt := 0; attempt < maxLinkAttempts; attempt++ {
		token, genErr := s.tokens.Generate()
		if genErr != nil {
			return fmt.Errorf("generate shareable link: %w", genErr)
		}
		err = write(token)
		if !errors.Is(err, repositories.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("shareable link still colliding after %d attempts: %w", maxLinkAttempts, err)
}

func validateVideoURL(raw string) error {
	if raw == "" {
		return apperr.New(apperr.InvalidArgument, "video url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperr.New(apperr.InvalidArgument, "video url must be an absolute http(s) url")
	}
	return nil
}

func storeError(ctx context.Context, err error, notFound string) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, notFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.Internal, "request cancelled", err)
	}
	logging.FromContext(ctx).Error("project store failure", "error", err)
	return apperr.Wrap(apperr.Internal, "", err)
}
