// Package testsupport provides in-memory stores shared by service and handler tests.
package testsupport

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/reelnotes/backend/internal/models"
	"github.com/reelnotes/backend/internal/repositories"
)

// Store holds projects and their comments behind one lock, so cascade deletes
// behave like the database.
type Store struct {
	mu       sync.Mutex
	projects map[string]models.Project
	comments map[string]map[string]models.Comment
	seq      int64

	Projects *ProjectStore
	Comments *CommentStore
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{
		projects: make(map[string]models.Project),
		comments: make(map[string]map[string]models.Comment),
	}
	s.Projects = &ProjectStore{s: s}
	s.Comments = &CommentStore{s: s}
	return s
}

// ProjectStore is the project half of a Store.
type ProjectStore struct {
	s *Store

	// AfterGet, when set, runs after every Get outside the lock. Tests use it
	// to interleave a competing writer between a read and its write.
	AfterGet func(projectID string)
}

func cloneProject(p models.Project) models.Project {
	p.Collaborators = slices.Clone(p.Collaborators)
	return p
}

// Create inserts a project, rejecting duplicate ids and link tokens.
func (ps *ProjectStore) Create(_ context.Context, project models.Project) error {
	s := ps.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[project.ID]; ok {
		return repositories.ErrConflict
	}
	if project.ShareableLink != "" && s.linkTakenLocked(project.ShareableLink, project.ID) {
		return repositories.ErrConflict
	}
	if project.Collaborators == nil {
		project.Collaborators = []string{}
	}
	s.projects[project.ID] = cloneProject(project)
	return nil
}

// Get returns the project with the id.
func (ps *ProjectStore) Get(_ context.Context, id string) (models.Project, error) {
	s := ps.s
	s.mu.Lock()
	project, ok := s.projects[id]
	s.mu.Unlock()
	if !ok {
		return models.Project{}, repositories.ErrNotFound
	}
	if ps.AfterGet != nil {
		ps.AfterGet(id)
	}
	return cloneProject(project), nil
}

// FindByShareableLink resolves a token.
func (ps *ProjectStore) FindByShareableLink(_ context.Context, token string) (models.Project, error) {
	s := ps.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return models.Project{}, repositories.ErrNotFound
	}
	for _, p := range s.projects {
		if p.ShareableLink == token {
			return cloneProject(p), nil
		}
	}
	return models.Project{}, repositories.ErrNotFound
}

// ListByOwner returns the owner's projects, newest first.
func (ps *ProjectStore) ListByOwner(_ context.Context, ownerID string) ([]models.Project, error) {
	return ps.s.listProjects(func(p models.Project) bool { return p.OwnerID == ownerID }), nil
}

// ListByCollaborator returns projects listing the user, newest first.
func (ps *ProjectStore) ListByCollaborator(_ context.Context, userID string) ([]models.Project, error) {
	return ps.s.listProjects(func(p models.Project) bool { return slices.Contains(p.Collaborators, userID) }), nil
}

// SetShareableLink overwrites the token.
func (ps *ProjectStore) SetShareableLink(_ context.Context, id, token string) error {
	s := ps.s
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if s.linkTakenLocked(token, id) {
		return repositories.ErrConflict
	}
	project.ShareableLink = token
	s.projects[id] = project
	return nil
}

// SetShareableLinkIfEmpty assigns the token only when none is set and returns
// whichever token the project ends up with.
func (ps *ProjectStore) SetShareableLinkIfEmpty(_ context.Context, id, token string) (string, error) {
	s := ps.s
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return "", repositories.ErrNotFound
	}
	if project.ShareableLink != "" {
		return project.ShareableLink, nil
	}
	if s.linkTakenLocked(token, id) {
		return "", repositories.ErrConflict
	}
	project.ShareableLink = token
	s.projects[id] = project
	return token, nil
}

// SetCollaborators overwrites the roster.
func (ps *ProjectStore) SetCollaborators(_ context.Context, id string, collaborators []string) error {
	s := ps.s
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return repositories.ErrNotFound
	}
	project.Collaborators = slices.Clone(collaborators)
	s.projects[id] = project
	return nil
}

// UpdateCollaborators runs mutate and its write under the store lock.
func (ps *ProjectStore) UpdateCollaborators(_ context.Context, id string, mutate func(models.Project) ([]string, bool, error)) ([]string, error) {
	s := ps.s
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	next, changed, err := mutate(cloneProject(project))
	if err != nil {
		return nil, err
	}
	if changed {
		project.Collaborators = slices.Clone(next)
		s.projects[id] = project
	}
	return slices.Clone(next), nil
}

// DeleteCascade removes the project and every comment under it.
func (ps *ProjectStore) DeleteCascade(_ context.Context, id string) error {
	s := ps.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.projects, id)
	delete(s.comments, id)
	return nil
}

// SetVideoMetadata records enrichment for a linked video.
func (ps *ProjectStore) SetVideoMetadata(_ context.Context, id string, meta models.VideoMetadata) error {
	s := ps.s
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return repositories.ErrNotFound
	}
	project.ThumbnailURL = meta.ThumbnailURL
	project.VideoDuration = meta.Duration
	s.projects[id] = project
	return nil
}

// CommentCount reports how many comments a project holds.
func (s *Store) CommentCount(projectID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.comments[projectID])
}

func (s *Store) linkTakenLocked(token, ownerID string) bool {
	for id, p := range s.projects {
		if id != ownerID && p.ShareableLink == token {
			return true
		}
	}
	return false
}

func (s *Store) listProjects(keep func(models.Project) bool) []models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Project{}
	for _, p := range s.projects {
		if keep(p) {
			out = append(out, cloneProject(p))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CommentStore is the comment half of a Store.
type CommentStore struct {
	s *Store
}

func cloneComment(c models.Comment) models.Comment {
	c.Annotations = slices.Clone(c.Annotations)
	return c
}

// Create inserts a comment under an existing project and assigns its sequence.
func (cs *CommentStore) Create(_ context.Context, comment models.Comment) (models.Comment, error) {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[comment.ProjectID]; !ok {
		return models.Comment{}, repositories.ErrNotFound
	}
	thread, ok := s.comments[comment.ProjectID]
	if !ok {
		thread = make(map[string]models.Comment)
		s.comments[comment.ProjectID] = thread
	}
	if _, dup := thread[comment.ID]; dup {
		return models.Comment{}, repositories.ErrConflict
	}
	s.seq++
	comment.Seq = s.seq
	thread[comment.ID] = cloneComment(comment)
	return cloneComment(comment), nil
}

// Get returns one comment.
func (cs *CommentStore) Get(_ context.Context, projectID, commentID string) (models.Comment, error) {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[projectID][commentID]
	if !ok {
		return models.Comment{}, repositories.ErrNotFound
	}
	return cloneComment(comment), nil
}

// List returns the matching comments ordered by timestamp then sequence.
func (cs *CommentStore) List(_ context.Context, projectID string, filter models.CommentFilter) ([]models.Comment, error) {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Comment{}
	for _, c := range s.comments[projectID] {
		if filter.Matches(c) {
			out = append(out, cloneComment(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// UpdateFields applies the non-nil fields of patch.
func (cs *CommentStore) UpdateFields(_ context.Context, projectID, commentID string, patch models.CommentPatch) (models.Comment, error) {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[projectID][commentID]
	if !ok {
		return models.Comment{}, repositories.ErrNotFound
	}
	if patch.Text != nil {
		comment.Text = *patch.Text
	}
	if patch.Timestamp != nil {
		comment.Timestamp = *patch.Timestamp
	}
	s.comments[projectID][commentID] = comment
	return cloneComment(comment), nil
}

// SetAnnotations overwrites the annotation list.
func (cs *CommentStore) SetAnnotations(_ context.Context, projectID, commentID string, annotations []models.Annotation) error {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[projectID][commentID]
	if !ok {
		return repositories.ErrNotFound
	}
	comment.Annotations = slices.Clone(annotations)
	s.comments[projectID][commentID] = comment
	return nil
}

// UpdateAnnotations runs mutate and its write under the store lock.
func (cs *CommentStore) UpdateAnnotations(_ context.Context, projectID, commentID string, mutate func(models.Comment) ([]models.Annotation, bool, error)) ([]models.Annotation, error) {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	comment, ok := s.comments[projectID][commentID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	next, changed, err := mutate(cloneComment(comment))
	if err != nil {
		return nil, err
	}
	if changed {
		comment.Annotations = slices.Clone(next)
		s.comments[projectID][commentID] = comment
	}
	return slices.Clone(next), nil
}

// Delete removes a comment.
func (cs *CommentStore) Delete(_ context.Context, projectID, commentID string) error {
	s := cs.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[projectID][commentID]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.comments[projectID], commentID)
	return nil
}
