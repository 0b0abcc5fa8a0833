package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := New(NotFound, "project not found")
	require.ErrorIs(t, err, ErrNotFound)
	require.NotErrorIs(t, err, ErrPermissionDenied)

	wrapped := fmt.Errorf("loading: %w", err)
	require.ErrorIs(t, wrapped, ErrNotFound)
	require.Equal(t, NotFound, KindOf(wrapped))
	require.Equal(t, "project not found", MessageOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(Internal, "failed to load project", cause)
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, ErrInternal)
	require.Contains(t, err.Error(), "connection reset")
}

func TestKindOfUnclassified(t *testing.T) {
	err := errors.New("boom")
	require.Equal(t, Internal, KindOf(err))
	require.Equal(t, "internal error", MessageOf(err))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		Unauthenticated:  http.StatusUnauthorized,
		InvalidArgument:  http.StatusBadRequest,
		NotFound:         http.StatusNotFound,
		PermissionDenied: http.StatusForbidden,
		AlreadyExists:    http.StatusConflict,
		Internal:         http.StatusInternalServerError,
	}
	for kind, want := range cases {
		require.Equal(t, want, HTTPStatus(kind), kind)
	}
}
