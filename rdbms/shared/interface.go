package shared

import (
	"context"
	"database/sql"
)

// Connector is the warehouse access used by the steps and checks.
// *sql.Tx satisfies Transacter and *sql.Rows satisfies Rows.
type Connector interface {
	BeginTx(ctx context.Context) (Transacter, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) Row
	PingContext(ctx context.Context) error
	Close()
	GetType() string // connection type, e.g. redshift
}

type Transacter interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error)
	Commit() error
	Rollback() error
}

type Result = sql.Result

type Rows interface {
	Close() error
	Columns() ([]string, error)
	Err() error
	Next() bool
	Scan(dest ...interface{}) error
}

// Row is satisfied by *sql.Row.
type Row interface {
	Scan(dest ...interface{}) error
}

type SqlResultHandler interface {
	HandleHeader(i []interface{}) error
	HandleRow(i []interface{}) error
}

type ConnectionGetter interface {
	LoadConnection(name string) (ConnectionDetails, error)
}
