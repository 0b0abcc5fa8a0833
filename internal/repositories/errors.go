package repositories

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates the attempted write would violate a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// translate maps constraint violations onto the package sentinels and leaves
// every other error untouched.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return ErrConflict
		case codeForeignKeyViolation:
			return ErrNotFound
		}
	}
	return err
}
