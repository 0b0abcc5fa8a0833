package projects_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/reelnotes/backend/internal/access"
	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/models"
	"github.com/reelnotes/backend/internal/projects"
	"github.com/reelnotes/backend/internal/sharelink"
	"github.com/reelnotes/backend/internal/testsupport"
	"github.com/reelnotes/backend/internal/timeline"
)

var (
	owner     = models.Actor{UserID: "owner-1"}
	user      = models.Actor{UserID: "user-1"}
	anonymous = models.Actor{UserID: models.AnonymousPrefix + "xyz"}
)

type sequenceTokens struct {
	mu     sync.Mutex
	tokens []string
}

func (s *sequenceTokens) Generate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) == 0 {
		return "", errors.New("out of tokens")
	}
	next := s.tokens[0]
	s.tokens = s.tokens[1:]
	return next, nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []string
}

func (p *recordingPublisher) Publish(_ context.Context, projectID string) {
	p.mu.Lock()
	p.published = append(p.published, projectID)
	p.mu.Unlock()
}

type assetCleanerStub struct {
	deleted []string
	err     error
}

func (a *assetCleanerStub) DeleteProjectAssets(_ context.Context, projectID string) error {
	a.deleted = append(a.deleted, projectID)
	return a.err
}

type schedulerStub struct {
	queued []models.Project
}

func (s *schedulerStub) Enqueue(_ context.Context, project models.Project) error {
	s.queued = append(s.queued, project)
	return nil
}

func newService(t *testing.T, opts projects.Options) (*projects.Service, *testsupport.Store) {
	t.Helper()
	store := testsupport.NewStore()
	return projects.NewService(store.Projects, opts), store
}

func create(t *testing.T, svc *projects.Service, actor models.Actor) models.Project {
	t.Helper()
	p, err := svc.Create(context.Background(), actor, projects.CreateRequest{Title: "Promo cut", VideoURL: "https://example.com/promo.mp4"})
	require.NoError(t, err)
	return p
}

func TestCreateIssuesResolvableLink(t *testing.T) {
	svc, _ := newService(t, projects.Options{})
	ctx := context.Background()

	p := create(t, svc, owner)
	require.True(t, sharelink.Valid(p.ShareableLink))
	require.Equal(t, owner.UserID, p.OwnerID)
	require.Empty(t, p.Collaborators)

	resolved, err := svc.ResolveShareableLink(ctx, p.ShareableLink)
	require.NoError(t, err)
	require.Equal(t, p.ID, resolved.ID)

	_, err = svc.ResolveShareableLink(ctx, "ZZZZZZZZZZZZZZZZ")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.ResolveShareableLink(ctx, "bad token!")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.ResolveShareableLink(ctx, "")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestLinksAreDistinctAcrossProjects(t *testing.T) {
	svc, _ := newService(t, projects.Options{})
	seen := make(map[string]string)
	for i := 0; i < 200; i++ {
		p := create(t, svc, owner)
		other, dup := seen[p.ShareableLink]
		require.False(t, dup, "token %s reused by %s and %s", p.ShareableLink, other, p.ID)
		seen[p.ShareableLink] = p.ID
	}
}

func TestCreateUsesSuppliedLink(t *testing.T) {
	svc, _ := newService(t, projects.Options{})
	ctx := context.Background()

	p, err := svc.Create(ctx, owner, projects.CreateRequest{Title: "A", VideoURL: "https://example.com/a", ShareableLink: "Supplied12345678"})
	require.NoError(t, err)
	require.Equal(t, "Supplied12345678", p.ShareableLink)

	_, err = svc.Create(ctx, owner, projects.CreateRequest{Title: "B", VideoURL: "https://example.com/b", ShareableLink: "Supplied12345678"})
	require.ErrorIs(t, err, apperr.ErrAlreadyExists)

	_, err = svc.Create(ctx, owner, projects.CreateRequest{Title: "C", VideoURL: "https://example.com/c", ShareableLink: "short"})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestCreateRetriesOnLinkCollision(t *testing.T) {
	tokens := &sequenceTokens{tokens: []string{"Taken00000000000", "Taken00000000000", "Fresh00000000000"}}
	svc, _ := newService(t, projects.Options{Tokens: tokens})

	first := create(t, svc, owner)
	require.Equal(t, "Taken00000000000", first.ShareableLink)

	second := create(t, svc, owner)
	require.Equal(t, "Fresh00000000000", second.ShareableLink)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	tokens := &sequenceTokens{tokens: []string{"Taken00000000000"}}
	for i := 0; i < 10; i++ {
		tokens.tokens = append(tokens.tokens, "Taken00000000000")
	}
	svc, store := newService(t, projects.Options{Tokens: tokens})
	create(t, svc, owner)

	_, err := svc.Create(context.Background(), owner, projects.CreateRequest{Title: "X", VideoURL: "https://example.com/x"})
	require.ErrorIs(t, err, apperr.ErrInternal)

	dash, err := projects.NewService(store.Projects, projects.Options{}).List(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, dash.Owned, 1)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t, projects.Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, models.Actor{}, projects.CreateRequest{Title: "A", VideoURL: "https://example.com/a"})
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = svc.Create(ctx, anonymous, projects.CreateRequest{Title: "A", VideoURL: "https://example.com/a"})
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)

	_, err = svc.Create(ctx, owner, projects.CreateRequest{Title: "   ", VideoURL: "https://example.com/a"})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)

	for _, bad := range []string{"", "not a url", "ftp://example.com/a", "/relative/path.mp4"} {
		_, err = svc.Create(ctx, owner, projects.CreateRequest{Title: "A", VideoURL: bad})
		require.ErrorIs(t, err, apperr.ErrInvalidArgument, bad)
	}
}

func TestCreateSchedulesMetadata(t *testing.T) {
	scheduler := &schedulerStub{}
	svc, _ := newService(t, projects.Options{Metadata: scheduler})

	p := create(t, svc, owner)
	require.Len(t, scheduler.queued, 1)
	require.Equal(t, p.ID, scheduler.queued[0].ID)
}

func TestIssueIsIdempotentRegenerateIsNot(t *testing.T) {
	svc, store := newService(t, projects.Options{})
	ctx := context.Background()

	legacy := models.Project{ID: "legacy", Title: "Old", VideoURL: "https://example.com/old", OwnerID: owner.UserID, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.Projects.Create(ctx, legacy))

	first, err := svc.IssueShareableLink(ctx, legacy.ID)
	require.NoError(t, err)
	require.True(t, sharelink.Valid(first))
	second, err := svc.IssueShareableLink(ctx, legacy.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)

	regenA, err := svc.RegenerateShareableLink(ctx, owner, legacy.ID)
	require.NoError(t, err)
	regenB, err := svc.RegenerateShareableLink(ctx, owner, legacy.ID)
	require.NoError(t, err)
	require.NotEqual(t, regenA, regenB)
	require.NotEqual(t, first, regenA)

	resolved, err := svc.ResolveShareableLink(ctx, regenB)
	require.NoError(t, err)
	require.Equal(t, legacy.ID, resolved.ID)
	_, err = svc.ResolveShareableLink(ctx, first)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.IssueShareableLink(ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRegenerateRequiresOwner(t *testing.T) {
	svc, _ := newService(t, projects.Options{})
	ctx := context.Background()
	p := create(t, svc, owner)

	_, err := svc.RegenerateShareableLink(ctx, models.Actor{}, p.ID)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = svc.RegenerateShareableLink(ctx, user, p.ID)
	require.ErrorIs(t, err, apperr.ErrPermissionDenied)
	_, err = svc.RegenerateShareableLink(ctx, owner, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	stored, err := svc.Get(ctx, owner, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ShareableLink, stored.ShareableLink)
}

func TestRosterGrantsAccess(t *testing.T) {
	for _, transactional := range []bool{false, true} {
		svc, _ := newService(t, projects.Options{Transactional: transactional})
		ctx := context.Background()
		p := create(t, svc, owner)

		role, err := svc.CheckAccess(ctx, p.ID, user.UserID)
		require.NoError(t, err)
		require.Equal(t, access.RoleNone, role)

		_, err = svc.AddCollaborator(ctx, user, p.ID, user.UserID)
		require.ErrorIs(t, err, apperr.ErrPermissionDenied)

		roster, err := svc.AddCollaborator(ctx, owner, p.ID, user.UserID)
		require.NoError(t, err)
		require.Equal(t, []string{user.UserID}, roster)

		role, err = svc.CheckAccess(ctx, p.ID, user.UserID)
		require.NoError(t, err)
		require.Equal(t, access.RoleCollaborator, role)

		role, err = svc.CheckAccess(ctx, p.ID, owner.UserID)
		require.NoError(t, err)
		require.Equal(t, access.RoleOwner, role)

		roster, err = svc.AddCollaborator(ctx, owner, p.ID, user.UserID)
		require.NoError(t, err)
		require.Equal(t, []string{user.UserID}, roster)

		_, err = svc.Get(ctx, user, p.ID)
		require.NoError(t, err)

		roster, err = svc.RemoveCollaborator(ctx, owner, p.ID, user.UserID)
		require.NoError(t, err)
		require.Empty(t, roster)

		_, err = svc.Get(ctx, user, p.ID)
		require.ErrorIs(t, err, apperr.ErrPermissionDenied)
	}
}

func TestRemoveDropsEveryOccurrence(t *testing.T) {
	svc, store := newService(t, projects.Options{})
	ctx := context.Background()
	p := create(t, svc, owner)
	require.NoError(t, store.Projects.SetCollaborators(ctx, p.ID, []string{"a", user.UserID, "b", user.UserID}))

	roster, err := svc.RemoveCollaborator(ctx, owner, p.ID, user.UserID)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, roster)
}

func TestRosterValidation(t *testing.T) {
	svc, _ := newService(t, projects.Options{})
	ctx := context.Background()
	p := create(t, svc, owner)

	_, err := svc.AddCollaborator(ctx, models.Actor{}, p.ID, user.UserID)
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = svc.AddCollaborator(ctx, owner, "", user.UserID)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = svc.AddCollaborator(ctx, owner, p.ID, "")
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = svc.AddCollaborator(ctx, owner, p.ID, anonymous.UserID)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = svc.AddCollaborator(ctx, owner, "missing", user.UserID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.UpdateCollaborators(ctx, owner, projects.RosterChange{ProjectID: p.ID, UserID: user.UserID, Action: "promote"})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = svc.UpdateCollaborators(ctx, owner, projects.RosterChange{ProjectID: p.ID, UserID: user.UserID})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = svc.UpdateCollaborators(ctx, models.Actor{}, projects.RosterChange{ProjectID: p.ID, UserID: user.UserID, Action: projects.ActionAdd})
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)

	stored, err := svc.Get(ctx, owner, p.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Collaborators)

	roster, err := svc.UpdateCollaborators(ctx, owner, projects.RosterChange{ProjectID: p.ID, UserID: user.UserID, Action: projects.ActionAdd})
	require.NoError(t, err)
	require.Equal(t, []string{user.UserID}, roster)
	roster, err = svc.UpdateCollaborators(ctx, owner, projects.RosterChange{ProjectID: p.ID, UserID: user.UserID, Action: projects.ActionRemove})
	require.NoError(t, err)
	require.Empty(t, roster)
}

func TestLastWriteWinsLosesConcurrentRosterUpdate(t *testing.T) {
	store := testsupport.NewStore()
	svc := projects.NewService(store.Projects, projects.Options{})
	ctx := context.Background()
	p := create(t, svc, owner)

	// A competing add lands between editor-a's read and its write.
	fired := false
	store.Projects.AfterGet = func(string) {
		if fired {
			return
		}
		fired = true
		_, err := svc.AddCollaborator(ctx, owner, p.ID, "editor-b")
		require.NoError(t, err)
	}

	_, err := svc.AddCollaborator(ctx, owner, p.ID, "editor-a")
	require.NoError(t, err)
	store.Projects.AfterGet = nil

	stored, err := svc.Get(ctx, owner, p.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"editor-a"}, stored.Collaborators)
}

func TestTransactionalRosterKeepsConcurrentUpdates(t *testing.T) {
	svc, _ := newService(t, projects.Options{Transactional: true})
	ctx := context.Background()
	p := create(t, svc, owner)

	want := make([]string, 0, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		id := fmt.Sprintf("editor-%02d", i)
		want = append(want, id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddCollaborator(ctx, owner, p.ID, id)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := svc.Get(ctx, owner, p.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, want, stored.Collaborators)
}

func TestDeleteCascades(t *testing.T) {
	publisher := &recordingPublisher{}
	cleaner := &assetCleanerStub{err: errors.New("bucket offline")}
	store := testsupport.NewStore()
	svc := projects.NewService(store.Projects, projects.Options{Publisher: publisher, Assets: cleaner})
	comments := timeline.NewService(store.Comments, store.Projects, nil, timeline.Options{})
	ctx := context.Background()

	p := create(t, svc, owner)
	_, err := svc.AddCollaborator(ctx, owner, p.ID, user.UserID)
	require.NoError(t, err)
	scope := timeline.Scope{ProjectID: p.ID}
	for i := 0; i < 3; i++ {
		_, err := comments.Create(ctx, user, scope, timeline.NewComment{Timestamp: float64(i), Text: "note"})
		require.NoError(t, err)
	}

	require.ErrorIs(t, svc.Delete(ctx, user, p.ID), apperr.ErrPermissionDenied)
	require.Equal(t, 3, store.CommentCount(p.ID))

	require.NoError(t, svc.Delete(ctx, owner, p.ID))
	require.Zero(t, store.CommentCount(p.ID))
	require.Equal(t, []string{p.ID}, publisher.published)
	require.Equal(t, []string{p.ID}, cleaner.deleted)

	_, err = comments.List(ctx, owner, scope)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Get(ctx, owner, p.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	require.ErrorIs(t, svc.Delete(ctx, owner, p.ID), apperr.ErrNotFound)
}

func TestDashboard(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	svc, _ := newService(t, projects.Options{Now: func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}})
	ctx := context.Background()

	older := create(t, svc, owner)
	newer := create(t, svc, owner)
	theirs := create(t, svc, user)
	_, err := svc.AddCollaborator(ctx, user, theirs.ID, owner.UserID)
	require.NoError(t, err)

	dash, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, dash.Owned, 2)
	require.Equal(t, newer.ID, dash.Owned[0].ID)
	require.Equal(t, older.ID, dash.Owned[1].ID)
	require.Len(t, dash.Shared, 1)
	require.Equal(t, theirs.ID, dash.Shared[0].ID)

	empty, err := svc.List(ctx, anonymous)
	require.NoError(t, err)
	require.NotNil(t, empty.Owned)
	require.Empty(t, empty.Owned)

	_, err = svc.List(ctx, models.Actor{})
	require.ErrorIs(t, err, apperr.ErrUnauthenticated)
}
