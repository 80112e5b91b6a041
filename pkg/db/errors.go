package db

import (
	"strings"

	pkgerrors "github.com/identitywear/storefront-backend/pkg/errors"
)

// IsUniqueViolation reports whether err is a duplicate key error. A non-empty
// constraint narrows the match to that index. SQLite errors, seen in tests,
// are matched on their message.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	if pg, ok := pkgerrors.Postgres(err); ok {
		return pg.Code == pkgerrors.PGUniqueViolation && (constraint == "" || pg.Constraint == constraint)
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraint == "" || strings.Contains(msg, constraint)
}
