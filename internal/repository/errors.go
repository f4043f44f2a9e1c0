package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrAlreadyExists is returned when a primary key is taken.
	ErrAlreadyExists = errors.New("repository: already exists")
	// ErrActiveTransaction is returned when a charger already has an open transaction.
	ErrActiveTransaction = errors.New("repository: charger has an active transaction")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
