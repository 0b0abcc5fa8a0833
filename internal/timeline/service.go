// Package timeline stores the timestamped comments of a project and the
// annotations attached to them.
package timeline

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/reelnotes/backend/internal/access"
	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/logging"
	"github.com/reelnotes/backend/internal/models"
	"github.com/reelnotes/backend/internal/repositories"
)

// Scope addresses a project either directly or through its shareable link.
// Direct access requires the actor to be the owner or a collaborator. Link
// access lets anyone read; writing needs some identity, anonymous included.
type Scope struct {
	ProjectID  string
	ShareToken string
}

// NewComment is the caller-supplied part of a comment.
type NewComment struct {
	Timestamp   float64
	Text        string
	Annotations []models.Annotation
}

// Options tunes a Service.
type Options struct {
	// Publisher receives change notices. Defaults to the broker.
	Publisher ChangePublisher
	// Transactional runs annotation read-modify-write cycles in the
	// repository's transaction instead of as separate read and write calls.
	Transactional bool
	Now           func() time.Time
}

// Service implements the comment timeline.
type Service struct {
	comments      Repository
	projects      ProjectReader
	broker        *Broker
	publisher     ChangePublisher
	transactional bool
	now           func() time.Time
}

// NewService wires a timeline over the given stores.
func NewService(comments Repository, projects ProjectReader, broker *Broker, opts Options) *Service {
	if broker == nil {
		broker = NewBroker()
	}
	svc := &Service{
		comments:      comments,
		projects:      projects,
		broker:        broker,
		publisher:     opts.Publisher,
		transactional: opts.Transactional,
		now:           opts.Now,
	}
	if svc.publisher == nil {
		svc.publisher = broker
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

// Create posts a comment at a playback position.
func (s *Service) Create(ctx context.Context, actor models.Actor, scope Scope, in NewComment) (models.Comment, error) {
	ctx, span := logging.StartSpan(ctx, "timeline.create", "actor", actor.UserID)
	defer span.End()

	if !actor.Authenticated() {
		return models.Comment{}, span.Fail(apperr.New(apperr.Unauthenticated, "sign in to comment"))
	}
	if err := validateTimestamp(in.Timestamp); err != nil {
		return models.Comment{}, span.Fail(err)
	}
	text, err := validateText(in.Text)
	if err != nil {
		return models.Comment{}, span.Fail(err)
	}
	if err := validateAnnotations(in.Annotations); err != nil {
		return models.Comment{}, span.Fail(err)
	}

	project, err := s.resolve(ctx, actor, scope)
	if err != nil {
		return models.Comment{}, span.Fail(err)
	}

	comment := models.Comment{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		CommenterID: actor.UserID,
		Timestamp:   in.Timestamp,
		Text:        text,
		CreatedAt:   s.now(),
		Annotations: slices.Clone(in.Annotations),
	}
	created, err := s.comments.Create(ctx, comment)
	if err != nil {
		return models.Comment{}, span.Fail(s.storeError(ctx, err, "project not found"))
	}

	s.publisher.Publish(ctx, project.ID)
	return created, nil
}

// Get returns a single comment.
func (s *Service) Get(ctx context.Context, actor models.Actor, scope Scope, commentID string) (models.Comment, error) {
	if commentID == "" {
		return models.Comment{}, apperr.New(apperr.InvalidArgument, "comment id is required")
	}
	project, err := s.resolve(ctx, actor, scope)
	if err != nil {
		return models.Comment{}, err
	}
	comment, err := s.comments.Get(ctx, project.ID, commentID)
	if err != nil {
		return models.Comment{}, s.storeError(ctx, err, "comment not found")
	}
	return comment, nil
}

// List returns every comment ordered by timestamp.
func (s *Service) List(ctx context.Context, actor models.Actor, scope Scope) ([]models.Comment, error) {
	return s.query(ctx, actor, scope, models.CommentFilter{})
}

// ListByRange returns comments with start <= timestamp <= end.
func (s *Service) ListByRange(ctx context.Context, actor models.Actor, scope Scope, start, end float64) ([]models.Comment, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	return s.query(ctx, actor, scope, models.CommentFilter{From: &start, To: &end})
}

// ListByUser returns the comments one identity posted.
func (s *Service) ListByUser(ctx context.Context, actor models.Actor, scope Scope, commenterID string) ([]models.Comment, error) {
	if commenterID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "commenter id is required")
	}
	return s.query(ctx, actor, scope, models.CommentFilter{CommenterID: commenterID})
}

// Query lists comments matching an arbitrary filter.
func (s *Service) Query(ctx context.Context, actor models.Actor, scope Scope, filter models.CommentFilter) ([]models.Comment, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	return s.query(ctx, actor, scope, filter)
}

func (s *Service) query(ctx context.Context, actor models.Actor, scope Scope, filter models.CommentFilter) ([]models.Comment, error) {
	project, err := s.resolve(ctx, actor, scope)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.List(ctx, project.ID, filter)
	if err != nil {
		return nil, s.storeError(ctx, err, "project not found")
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	return comments, nil
}

// Update replaces the fields set in patch. Only the original, non-anonymous
// commenter may edit.
func (s *Service) Update(ctx context.Context, actor models.Actor, scope Scope, commentID string, patch models.CommentPatch) (models.Comment, error) {
	ctx, span := logging.StartSpan(ctx, "timeline.update", "actor", actor.UserID, "comment_id", commentID)
	defer span.End()

	if patch.Empty() {
		return models.Comment{}, span.Fail(apperr.New(apperr.InvalidArgument, "nothing to update"))
	}
	if patch.Text != nil {
		text, err := validateText(*patch.Text)
		if err != nil {
			return models.Comment{}, span.Fail(err)
		}
		patch.Text = &text
	}
	if patch.Timestamp != nil {
		if err := validateTimestamp(*patch.Timestamp); err != nil {
			return models.Comment{}, span.Fail(err)
		}
	}

	project, err := s.authorizeEdit(ctx, actor, scope, commentID)
	if err != nil {
		return models.Comment{}, span.Fail(err)
	}

	updated, err := s.comments.UpdateFields(ctx, project.ID, commentID, patch)
	if err != nil {
		return models.Comment{}, span.Fail(s.storeError(ctx, err, "comment not found"))
	}

	s.publisher.Publish(ctx, project.ID)
	return updated, nil
}

// Delete removes a comment. Same permission rule as Update.
func (s *Service) Delete(ctx context.Context, actor models.Actor, scope Scope, commentID string) error {
	ctx, span := logging.StartSpan(ctx, "timeline.delete", "actor", actor.UserID, "comment_id", commentID)
	defer span.End()

	project, err := s.authorizeEdit(ctx, actor, scope, commentID)
	if err != nil {
		return span.Fail(err)
	}
	if err := s.comments.Delete(ctx, project.ID, commentID); err != nil {
		return span.Fail(s.storeError(ctx, err, "comment not found"))
	}

	s.publisher.Publish(ctx, project.ID)
	return nil
}

// AddAnnotation appends a marker and returns the resulting list.
func (s *Service) AddAnnotation(ctx context.Context, actor models.Actor, scope Scope, commentID string, annotation models.Annotation) ([]models.Annotation, error) {
	ctx, span := logging.StartSpan(ctx, "timeline.addAnnotation", "actor", actor.UserID, "comment_id", commentID)
	defer span.End()

	if err := ValidateAnnotation(annotation); err != nil {
		return nil, span.Fail(err)
	}

	list, err := s.mutateAnnotations(ctx, actor, scope, commentID, func(current models.Comment) ([]models.Annotation, bool, error) {
		next := append(slices.Clone(current.Annotations), annotation)
		return next, true, nil
	})
	return list, span.Fail(err)
}

// RemoveAnnotation drops the marker at index. An index outside the current
// list leaves the comment untouched.
func (s *Service) RemoveAnnotation(ctx context.Context, actor models.Actor, scope Scope, commentID string, index int) ([]models.Annotation, error) {
	ctx, span := logging.StartSpan(ctx, "timeline.removeAnnotation", "actor", actor.UserID, "comment_id", commentID, "index", index)
	defer span.End()

	list, err := s.mutateAnnotations(ctx, actor, scope, commentID, func(current models.Comment) ([]models.Annotation, bool, error) {
		if index < 0 || index >= len(current.Annotations) {
			return current.Annotations, false, nil
		}
		return slices.Delete(slices.Clone(current.Annotations), index, index+1), true, nil
	})
	return list, span.Fail(err)
}

func (s *Service) mutateAnnotations(ctx context.Context, actor models.Actor, scope Scope, commentID string, mutate AnnotationMutator) ([]models.Annotation, error) {
	if !actor.Authenticated() {
		return nil, apperr.New(apperr.Unauthenticated, "sign in to edit annotations")
	}
	if commentID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "comment id is required")
	}
	project, err := s.resolve(ctx, actor, scope)
	if err != nil {
		return nil, err
	}

	guarded := func(current models.Comment) ([]models.Annotation, bool, error) {
		if err := checkCommenter(actor, current); err != nil {
			return nil, false, err
		}
		return mutate(current)
	}

	var (
		list    []models.Annotation
		changed bool
	)
	if s.transactional {
		list, err = s.comments.UpdateAnnotations(ctx, project.ID, commentID, func(current models.Comment) ([]models.Annotation, bool, error) {
			next, ok, err := guarded(current)
			changed = ok
			return next, ok, err
		})
		if err != nil {
			return nil, s.storeError(ctx, err, "comment not found")
		}
	} else {
		current, err := s.comments.Get(ctx, project.ID, commentID)
		if err != nil {
			return nil, s.storeError(ctx, err, "comment not found")
		}
		list, changed, err = guarded(current)
		if err != nil {
			return nil, err
		}
		if changed {
			if err := s.comments.SetAnnotations(ctx, project.ID, commentID, list); err != nil {
				return nil, s.storeError(ctx, err, "comment not found")
			}
		}
	}

	if changed {
		s.publisher.Publish(ctx, project.ID)
	}
	if list == nil {
		list = []models.Annotation{}
	}
	return list, nil
}

// Subscribe opens a live view. The snapshot at subscribe time is the first
// value Next returns. Callers must Close the subscription.
func (s *Service) Subscribe(ctx context.Context, actor models.Actor, scope Scope, filter models.CommentFilter) (*Subscription, error) {
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	project, err := s.resolve(ctx, actor, scope)
	if err != nil {
		return nil, err
	}

	projectID := project.ID
	load := func(ctx context.Context) ([]models.Comment, error) {
		comments, err := s.comments.List(ctx, projectID, filter)
		if err != nil {
			return nil, s.storeError(ctx, err, "project not found")
		}
		if comments == nil {
			comments = []models.Comment{}
		}
		return comments, nil
	}

	sub := newSubscription(s.broker, projectID, filter, load)
	s.broker.register(sub)

	initial, err := load(ctx)
	if err != nil {
		sub.Close()
		return nil, err
	}
	sub.prime(initial)

	logging.FromContext(ctx).Debug("comment subscription opened", "project_id", projectID)
	return sub, nil
}

func (s *Service) authorizeEdit(ctx context.Context, actor models.Actor, scope Scope, commentID string) (models.Project, error) {
	if !actor.Authenticated() {
		return models.Project{}, apperr.New(apperr.Unauthenticated, "sign in to edit comments")
	}
	if commentID == "" {
		return models.Project{}, apperr.New(apperr.InvalidArgument, "comment id is required")
	}
	project, err := s.resolve(ctx, actor, scope)
	if err != nil {
		return models.Project{}, err
	}
	current, err := s.comments.Get(ctx, project.ID, commentID)
	if err != nil {
		return models.Project{}, s.storeError(ctx, err, "comment not found")
	}
	if err := checkCommenter(actor, current); err != nil {
		return models.Project{}, err
	}
	return project, nil
}

func checkCommenter(actor models.Actor, comment models.Comment) error {
	if actor.Anonymous() {
		return apperr.New(apperr.PermissionDenied, "anonymous comments cannot be edited or deleted")
	}
	if comment.CommenterID != actor.UserID {
		return apperr.New(apperr.PermissionDenied, "only the commenter may change this comment")
	}
	return nil
}

// resolve loads the project a scope addresses and checks read access.
func (s *Service) resolve(ctx context.Context, actor models.Actor, scope Scope) (models.Project, error) {
	switch {
	case scope.ShareToken != "":
		project, err := s.projects.FindByShareableLink(ctx, scope.ShareToken)
		if err != nil {
			return models.Project{}, s.storeError(ctx, err, "shared project not found")
		}
		if scope.ProjectID != "" && scope.ProjectID != project.ID {
			return models.Project{}, apperr.New(apperr.NotFound, "shared project not found")
		}
		return project, nil
	case scope.ProjectID != "":
		if !actor.Authenticated() {
			return models.Project{}, apperr.New(apperr.Unauthenticated, "sign in to view this project")
		}
		project, err := s.projects.Get(ctx, scope.ProjectID)
		if err != nil {
			return models.Project{}, s.storeError(ctx, err, "project not found")
		}
		if !access.Classify(actor.UserID, project).HasAccess() {
			return models.Project{}, apperr.New(apperr.PermissionDenied, "no access to this project")
		}
		return project, nil
	default:
		return models.Project{}, apperr.New(apperr.InvalidArgument, "project id or share token is required")
	}
}

func (s *Service) storeError(ctx context.Context, err error, notFound string) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return apperr.Wrap(apperr.NotFound, notFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.Internal, "request cancelled", err)
	}
	logging.FromContext(ctx).Error("comment store failure", "error", err)
	return apperr.Wrap(apperr.Internal, "", err)
}
