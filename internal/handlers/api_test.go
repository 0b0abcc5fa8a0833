package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/models"
	"github.com/reelnotes/backend/internal/projects"
	"github.com/reelnotes/backend/internal/repositories"
	"github.com/reelnotes/backend/internal/storage"
	"github.com/reelnotes/backend/internal/testsupport"
	"github.com/reelnotes/backend/internal/timeline"
)

type inMemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) UpdateProfile(_ context.Context, id string, update models.ProfileUpdate, updatedAt time.Time) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	if update.DisplayName != nil {
		user.DisplayName = *update.DisplayName
	}
	if update.PhotoURL != nil {
		user.PhotoURL = *update.PhotoURL
	}
	user.UpdatedAt = updatedAt
	s.users[id] = user
	return user, nil
}

type testAPI struct {
	router   *chi.Mux
	users    *inMemoryUserStore
	sessions *auth.InMemorySessionStore
	manager  *auth.Manager
	store    *testsupport.Store
	blobs    *testsupport.Blobs
	broker   *timeline.Broker
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := testsupport.NewStore()
	blobs := testsupport.NewBlobs()
	sessions := auth.NewInMemorySessionStore()
	manager := auth.NewManager(time.Minute, time.Hour, sessions)
	broker := timeline.NewBroker()
	assets := storage.NewAssets(blobs)

	api := &testAPI{
		users:    newInMemoryUserStore(),
		sessions: sessions,
		manager:  manager,
		store:    store,
		blobs:    blobs,
		broker:   broker,
	}
	api.router = NewRouter(Dependencies{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Authenticator: manager,
		Users:         api.users,
		Sessions:      manager,
		Projects: projects.NewService(store.Projects, projects.Options{
			Publisher: broker,
			Assets:    assets,
		}),
		Timeline: timeline.NewService(store.Comments, store.Projects, broker, timeline.Options{}),
		Assets:   assets,
	})
	return api
}

// signIn issues an access token for userID.
func (a *testAPI) signIn(t *testing.T, userID string) string {
	t.Helper()
	tokens, err := a.manager.Issue(context.Background(), userID)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return tokens.AccessToken
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// createProject creates a project owned by the holder of token.
func (a *testAPI) createProject(t *testing.T, token string) models.Project {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/v1/projects", token, map[string]string{
		"title":    "Launch teaser",
		"videoUrl": "https://example.com/teaser.mp4",
	})
	expectStatus(t, rec, http.StatusCreated)
	var project models.Project
	decode(t, rec, &project)
	return project
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func expectError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	expectStatus(t, rec, status)
	var body errorBody
	decode(t, rec, &body)
	if string(body.Error.Status) != kind {
		t.Fatalf("expected error kind %q got %q (%s)", kind, body.Error.Status, body.Error.Message)
	}
	if body.Error.Message == "" {
		t.Fatal("expected an error message")
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}
