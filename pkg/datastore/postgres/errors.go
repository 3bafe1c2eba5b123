package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/marmos91/dapagg/pkg/datastore"
)

// mapPgError maps a postgres/pgx error to the datastore's own error
// taxonomy. op is used only for the wrapped error message.
func mapPgError(err error, op string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return &datastore.StoreError{Kind: datastore.ErrNotFound, Op: op, Err: err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgErrorCode(pgErr, op)
	}

	return &datastore.StoreError{Kind: datastore.ErrTransient, Op: op, Err: err}
}

func mapPgErrorCode(pgErr *pgconn.PgError, op string) error {
	// https://www.postgresql.org/docs/current/errcodes-appendix.html
	switch pgErr.Code {
	case "23505": // unique_violation
		return &datastore.StoreError{Kind: datastore.ErrConflict, Op: op, Err: pgErr}
	case "23503": // foreign_key_violation
		return &datastore.StoreError{Kind: datastore.ErrMutationTargetNotFound, Op: op, Err: pgErr}
	case "23502", "23514": // not_null_violation, check_violation
		return &datastore.StoreError{Kind: datastore.ErrUser, Op: op, Err: pgErr}
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return &datastore.StoreError{Kind: datastore.ErrTransient, Op: op, Err: pgErr}
	case "08000", "08003", "08006": // connection errors
		return &datastore.StoreError{Kind: datastore.ErrTransient, Op: op, Err: pgErr}
	default:
		return &datastore.StoreError{Kind: datastore.ErrTransient, Op: op, Err: pgErr}
	}
}
