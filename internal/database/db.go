package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// uniqueViolationCode is the class 23 integrity violation raised by
// Postgres when an INSERT conflicts with a unique constraint.
const uniqueViolationCode = pq.ErrorCode("23505")

// Queryable is the union of the sqlx methods our stores require. Both
// *sqlx.DB and *sqlx.Tx satisfy this interface, allowing store methods
// to run against the pool directly or inside a wrapped transaction.
type Queryable interface {
	Exec(query string, args ...any) (sql.Result, error)
	NamedExec(query string, arg any) (sql.Result, error)
	Get(dest any, query string, args ...any) error
	Select(dest any, query string, args ...any) error
	Rebind(query string) string
}

// WrapTx opens a transaction against the provided DB and runs the given
// function with it. If the function returns an error the transaction is
// rolled back, otherwise it is committed.
func WrapTx(db *sqlx.DB, f func(tx *sqlx.Tx) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to open transaction: %w", err)
	}
	defer tx.Rollback()

	if err := f(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// IsUniqueConstraintViolation reports whether the provided error is a
// Postgres unique constraint violation. Stores use this to translate
// insert conflicts in to their domain 'already exists' errors.
func IsUniqueConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}

	return false
}
