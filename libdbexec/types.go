// Package libdbexec abstracts SQL database access behind a small executor
// interface so stores work unchanged against Postgres (server mode) and
// SQLite (local mode), inside or outside a transaction.
package libdbexec

import (
	"context"
	"database/sql"
	"errors"
)

// Common sentinel errors. Driver-specific errors are translated into these
// so callers can use errors.Is regardless of the backing database.
var (
	ErrNotFound             = errors.New("libdb: not found")
	ErrTxFailed             = errors.New("libdb: transaction failed")
	ErrUniqueViolation      = errors.New("libdb: unique constraint violation")
	ErrForeignKeyViolation  = errors.New("libdb: foreign key constraint violation")
	ErrNotNullViolation     = errors.New("libdb: not null constraint violation")
	ErrCheckViolation       = errors.New("libdb: check constraint violation")
	ErrConstraintViolation  = errors.New("libdb: constraint violation")
	ErrDeadlockDetected     = errors.New("libdb: deadlock detected")
	ErrSerializationFailure = errors.New("libdb: serialization failure")
	ErrLockNotAvailable     = errors.New("libdb: lock not available")
	ErrQueryCanceled        = errors.New("libdb: query canceled")
	ErrDataTruncation       = errors.New("libdb: data truncation")
	ErrNumericOutOfRange    = errors.New("libdb: numeric value out of range")
	ErrInvalidInputSyntax   = errors.New("libdb: invalid input syntax")
	ErrUndefinedColumn      = errors.New("libdb: undefined column")
	ErrUndefinedTable       = errors.New("libdb: undefined table")
	ErrMaxRowsReached       = errors.New("libdb: maximum row count reached")
)

// QueryRower wraps *sql.Row so Scan errors pass through the driver's
// error translator.
type QueryRower interface {
	Scan(dest ...any) error
}

// Exec is the executor interface used by all stores. It is implemented by
// both the raw connection pool and open transactions.
type Exec interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) QueryRower
}

// CommitTx commits an open transaction.
type CommitTx func(ctx context.Context) error

// ReleaseTx rolls back the transaction if it was not committed and releases
// its resources. Safe to defer after a successful commit.
type ReleaseTx func() error

// DBManager owns a database connection pool and hands out executors.
type DBManager interface {
	WithoutTransaction() Exec
	WithTransaction(ctx context.Context, onRollback ...func()) (Exec, CommitTx, ReleaseTx, error)
	Close() error
}
