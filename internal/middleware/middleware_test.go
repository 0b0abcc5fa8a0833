package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/config"
	"github.com/reelnotes/backend/internal/logging"
	"github.com/reelnotes/backend/internal/models"
)

type resolverStub map[string]string

func (s resolverStub) Authenticate(_ context.Context, token string) (models.Actor, error) {
	uid, ok := s[token]
	if !ok {
		return models.Actor{}, auth.ErrSessionNotFound
	}
	return models.Actor{UserID: uid}, nil
}

func actorEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(auth.ActorFromContext(r.Context()).UserID))
	})
}

func TestAuthenticatePlacesActorOnContext(t *testing.T) {
	handler := Authenticate(resolverStub{"good": "user-1"})(actorEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "user-1" {
		t.Fatalf("unexpected actor %q", rec.Body.String())
	}
}

func TestAuthenticateAllowsMissingCredentials(t *testing.T) {
	handler := Authenticate(resolverStub{})(actorEcho())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected no actor, got %q", rec.Body.String())
	}
}

func TestAuthenticateRejectsInvalidToken(t *testing.T) {
	handler := Authenticate(resolverStub{})(actorEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	var body struct {
		Error struct {
			Status string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Error.Status != "unauthenticated" {
		t.Fatalf("unexpected error status %q", body.Error.Status)
	}
}

func TestAuthenticateIgnoresOtherSchemes(t *testing.T) {
	handler := Authenticate(resolverStub{"good": "user-1"})(actorEcho())

	req := httptest.NewRequest(http.MethodGet, "/?access_token=good", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Fatalf("expected anonymous pass-through, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthenticateAcceptsQueryToken(t *testing.T) {
	handler := Authenticate(resolverStub{"good": "anon_abc"})(actorEcho())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream?access_token=good", nil))

	if rec.Body.String() != "anon_abc" {
		t.Fatalf("unexpected actor %q", rec.Body.String())
	}
}

func TestRequestLoggerPropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var seen string
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "req-123" {
		t.Fatalf("expected request id on context, got %q", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Fatalf("expected echoed request id, got %q", got)
	}
	if !strings.Contains(buf.String(), `"status":418`) {
		t.Fatalf("expected status in log, got %s", buf.String())
	}
}

func TestRequestLoggerGeneratesRequestID(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRequestLoggerKeepsFlusher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer does not implement http.Flusher")
		}
		_, _ = w.Write([]byte("data: {}\n\n"))
		w.(http.Flusher).Flush()
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if !rec.Flushed {
		t.Fatal("expected response to be flushed")
	}
}

func TestIPRateLimiterWindow(t *testing.T) {
	limiter := NewIPRateLimiter(config.RateLimitConfig{Requests: 2, Window: time.Minute, Burst: 2, TTL: time.Hour})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("1.2.3.4") || !limiter.Allow("1.2.3.4") {
		t.Fatal("expected burst to be allowed")
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("5.6.7.8") {
		t.Fatal("expected independent key to be allowed")
	}

	now = now.Add(30 * time.Second)
	if !limiter.Allow("1.2.3.4") {
		t.Fatal("expected a token to be replenished")
	}
}

func TestIPRateLimiterForgetsIdleKeys(t *testing.T) {
	limiter := NewIPRateLimiter(config.RateLimitConfig{Requests: 1, Window: time.Second, Burst: 1, TTL: time.Minute})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	limiter.Allow("a")
	limiter.Allow("b")
	if got := limiter.Tracked(); got != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", got)
	}

	now = now.Add(2 * time.Minute)
	limiter.Allow("c")
	if got := limiter.Tracked(); got != 1 {
		t.Fatalf("expected idle keys to be collected, got %d", got)
	}
}
