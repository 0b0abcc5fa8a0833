// Package apperr defines the error kinds every public operation reports.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure for callers.
type Kind string

const (
	Unauthenticated  Kind = "unauthenticated"
	InvalidArgument  Kind = "invalid-argument"
	NotFound         Kind = "not-found"
	PermissionDenied Kind = "permission-denied"
	AlreadyExists    Kind = "already-exists"
	Internal         Kind = "internal"
)

// Sentinels for errors.Is checks against a kind.
var (
	ErrUnauthenticated  = &Error{Kind: Unauthenticated}
	ErrInvalidArgument  = &Error{Kind: InvalidArgument}
	ErrNotFound         = &Error{Kind: NotFound}
	ErrPermissionDenied = &Error{Kind: PermissionDenied}
	ErrAlreadyExists    = &Error{Kind: AlreadyExists}
	ErrInternal         = &Error{Kind: Internal}
)

// Error is a classified failure with a client-safe message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when target is a bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap returns an error of the given kind that keeps err as its cause.
func Wrap(kind Kind, message string, err error) error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// MessageOf returns the client-safe message carried by err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if KindOf(err) == Internal {
		return "internal error"
	}
	return string(KindOf(err))
}

// HTTPStatus maps a kind onto a response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case Unauthenticated:
		return http.StatusUnauthorized
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case PermissionDenied:
		return http.StatusForbidden
	case AlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
