// Package sqlxrepos implements the course, enrollment and board repositories over postgres with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
)

const uniqueViolation = "23505"

var errNotSQLXExecutor = errors.New("executor does not support sqlx")

type repo struct {
	db *sqlx.DB
}

// getExec returns the transaction handed down by the service, or the pool.
func (r repo) getExec(exec []core.DBExecutor) (sqlx.ExtContext, error) {
	if len(exec) == 0 || exec[0] == nil {
		return r.db, nil
	}
	ext, ok := exec[0].(sqlx.ExtContext)
	if !ok {
		return nil, errNotSQLXExecutor
	}
	return ext, nil
}

// namedGet runs a named query and scans its first row into dest.
func namedGet(ctx context.Context, q sqlx.ExtContext, dest interface{}, query string, arg interface{}) error {
	rows, err := sqlx.NamedQueryContext(ctx, q, query, arg)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.StructScan(dest)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "reading affected rows")
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// validID reports whether id can be compared to a UUID column.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
