package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

func uniqueViolation(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return pgErr, true
	}
	return nil, false
}

// isConstraintViolation reports a unique violation of the named constraint or index.
func isConstraintViolation(err error, constraint string) bool {
	pgErr, ok := uniqueViolation(err)
	return ok && pgErr.ConstraintName == constraint
}
