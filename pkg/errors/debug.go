package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// PGUniqueViolation is the SQLSTATE Postgres reports for duplicate keys.
const PGUniqueViolation = "23505"

// ErrorDump is the log-only view of an error chain written for 5xx responses.
type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	Postgres *PostgresDetail `json:"postgres,omitempty"`
}

// PostgresDetail carries the driver fields worth logging. Both pgx and lib/pq
// errors are recognised since goose runs over database/sql.
type PostgresDetail struct {
	Code       string `json:"code"`
	Constraint string `json:"constraint,omitempty"`
	Table      string `json:"table,omitempty"`
	Column     string `json:"column,omitempty"`
	Detail     string `json:"detail,omitempty"`
	Message    string `json:"message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if pg, ok := Postgres(err); ok {
		d.Postgres = &pg
	}
	return d
}

// Postgres extracts the server error from anywhere in err's chain.
func Postgres(err error) (PostgresDetail, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return PostgresDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return PostgresDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return PostgresDetail{}, false
}
