package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/reelnotes/backend/internal/models"
)

func signUp(t *testing.T, api *testAPI, email, password string) authResponse {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/api/v1/auth/signup", "", signUpRequest{Email: email, Password: password, DisplayName: "Rae"})
	expectStatus(t, rec, http.StatusCreated)
	var resp authResponse
	decode(t, rec, &resp)
	return resp
}

func TestAuthHandlerSignUp(t *testing.T) {
	api := newTestAPI(t)

	resp := signUp(t, api, "Test@Example.com ", "supersafe")

	if resp.Tokens.AccessToken == "" || resp.Tokens.RefreshToken == "" {
		t.Fatalf("expected tokens to be issued, got %+v", resp.Tokens)
	}
	if resp.User == nil || resp.User.DisplayName != "Rae" {
		t.Fatalf("expected user in response, got %+v", resp.User)
	}

	stored, err := api.users.FindByEmail(context.Background(), "test@example.com")
	if err != nil {
		t.Fatalf("expected user to be stored under normalised email: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("supersafe")) != nil {
		t.Fatal("stored password is not hashed")
	}
	if strings.Contains(api.do(t, http.MethodGet, "/api/v1/auth/me", resp.Tokens.AccessToken, nil).Body.String(), stored.Password) {
		t.Fatal("password hash leaked in profile response")
	}
}

func TestAuthHandlerSignUpValidation(t *testing.T) {
	api := newTestAPI(t)

	cases := map[string]signUpRequest{
		"missing email":  {Password: "supersafe"},
		"invalid email":  {Email: "not-an-email", Password: "supersafe"},
		"short password": {Email: "a@example.com", Password: "short"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/v1/auth/signup", "", req)
			expectError(t, rec, http.StatusBadRequest, "invalid-argument")
		})
	}
}

func TestAuthHandlerSignUpDuplicate(t *testing.T) {
	api := newTestAPI(t)
	signUp(t, api, "dup@example.com", "supersafe")

	rec := api.do(t, http.MethodPost, "/api/v1/auth/signup", "", signUpRequest{Email: "dup@example.com", Password: "supersafe"})
	expectError(t, rec, http.StatusConflict, "already-exists")
}

func TestAuthHandlerLogin(t *testing.T) {
	api := newTestAPI(t)
	signUp(t, api, "login@example.com", "supersafe")

	rec := api.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "login@example.com", Password: "supersafe"})
	expectStatus(t, rec, http.StatusOK)
	var resp authResponse
	decode(t, rec, &resp)
	if resp.Tokens.AccessToken == "" {
		t.Fatal("expected access token")
	}

	rec = api.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "login@example.com", Password: "wrong-password"})
	expectError(t, rec, http.StatusUnauthorized, "unauthenticated")

	rec = api.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: "nobody@example.com", Password: "supersafe"})
	expectError(t, rec, http.StatusUnauthorized, "unauthenticated")
}

func TestAuthHandlerAnonymous(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/v1/auth/anonymous", "", nil)
	expectStatus(t, rec, http.StatusCreated)
	var resp authResponse
	decode(t, rec, &resp)
	if !models.IsAnonymous(resp.Tokens.UserID) {
		t.Fatalf("expected anonymous identity, got %q", resp.Tokens.UserID)
	}

	rec = api.do(t, http.MethodGet, "/api/v1/auth/me", resp.Tokens.AccessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var profile profileResponse
	decode(t, rec, &profile)
	if !profile.Anonymous || profile.User.ID != resp.Tokens.UserID {
		t.Fatalf("unexpected anonymous profile %+v", profile)
	}

	rec = api.do(t, http.MethodPatch, "/api/v1/auth/me", resp.Tokens.AccessToken, map[string]string{"displayName": "Ghost"})
	expectError(t, rec, http.StatusForbidden, "permission-denied")
}

func TestAuthHandlerRefreshAndLogout(t *testing.T) {
	api := newTestAPI(t)
	issued := signUp(t, api, "cycle@example.com", "supersafe").Tokens

	rec := api.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: issued.RefreshToken})
	expectStatus(t, rec, http.StatusOK)
	var refreshed authResponse
	decode(t, rec, &refreshed)
	if refreshed.Tokens.RefreshToken == issued.RefreshToken {
		t.Fatal("expected refresh token rotation")
	}

	rec = api.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: issued.RefreshToken})
	expectError(t, rec, http.StatusUnauthorized, "unauthenticated")

	rec = api.do(t, http.MethodPost, "/api/v1/auth/logout", "", refreshRequest{RefreshToken: refreshed.Tokens.RefreshToken})
	expectStatus(t, rec, http.StatusNoContent)
	if api.sessions.Has(refreshed.Tokens.RefreshToken) {
		t.Fatal("expected session to be released")
	}

	rec = api.do(t, http.MethodGet, "/api/v1/auth/me", refreshed.Tokens.AccessToken, nil)
	expectError(t, rec, http.StatusUnauthorized, "unauthenticated")
}

func TestAuthHandlerRefreshRequiresToken(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{})
	expectError(t, rec, http.StatusBadRequest, "invalid-argument")
}

func TestAuthHandlerProfile(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	expectError(t, rec, http.StatusUnauthorized, "unauthenticated")

	token := signUp(t, api, "me@example.com", "supersafe").Tokens.AccessToken

	rec = api.do(t, http.MethodPatch, "/api/v1/auth/me", token, map[string]string{"photoURL": "https://cdn.example.com/me.png"})
	expectStatus(t, rec, http.StatusOK)
	var profile profileResponse
	decode(t, rec, &profile)
	if profile.User.PhotoURL != "https://cdn.example.com/me.png" || profile.User.DisplayName != "Rae" {
		t.Fatalf("unexpected profile after update %+v", profile.User)
	}
}

func TestAuthHandlerUnavailableDependencies(t *testing.T) {
	handler := AuthHandler{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@example.com","password":"supersafe"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	expectError(t, rec, http.StatusInternalServerError, "internal")
}
