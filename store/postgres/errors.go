package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/warp/leave-engine/generic"
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
)

// translate maps constraint violations to the generic sentinels. nil stays nil.
func translate(err error, kind string, key any) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return generic.Duplicate(kind, key)
		case foreignKeyViolationCode:
			return fmt.Errorf("%s %v references a missing row (%s): %w", kind, key, pgErr.ConstraintName, generic.ErrNotFound)
		}
	}
	return fmt.Errorf("postgres: write %s: %w", kind, err)
}
