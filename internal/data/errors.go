package data

import (
	"context"
	goerrors "errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ticketwise/enhancer/internal/errors"
)

// MapDBError maps database errors onto the engine's taxonomy. Connectivity
// and unclassified database failures become Infrastructure errors, which the
// worker treats as "never started safely": the job stays pending for
// reprocessing instead of being marked failed.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}

	if goerrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.ErrCodeTimeout, "database operation timed out")
	}

	var pgErr *pgconn.PgError
	if goerrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return errors.Wrap(err, errors.ErrCodeConflict, "duplicate row")
		case pgerrcode.ForeignKeyViolation, pgerrcode.CheckViolation, pgerrcode.NotNullViolation:
			return errors.Wrap(err, errors.ErrCodeValidation, "constraint violation")
		default:
			return errors.Wrap(err, errors.ErrCodeInfrastructure, "database error")
		}
	}

	return errors.Wrap(err, errors.ErrCodeInfrastructure, "database unavailable")
}

// IsUniqueViolation reports whether err is a PostgreSQL unique violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return goerrors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
