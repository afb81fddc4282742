package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// IsConflict reports whether err is a constraint conflict that a full reload
// can resolve: integrity violations (class 23), ON CONFLICT without a
// matching unique constraint (42P10) and cardinality violations (21000).
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch {
	case strings.HasPrefix(pgErr.Code, "23"):
		return true
	case pgErr.Code == "42P10", pgErr.Code == "21000":
		return true
	}
	return false
}
