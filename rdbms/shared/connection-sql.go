package shared

import (
	"context"
	"database/sql"
	"errors"
)

// SqlConnection wraps a database/sql pool and remembers which kind of warehouse it talks to.
type SqlConnection struct {
	db     *sql.DB
	dbType string
}

// NewSqlConnection opens a pool for driverName. Nothing is dialled until the first ping or statement.
func NewSqlConnection(dbType string, driverName string, dataSourceName string) (*SqlConnection, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	return &SqlConnection{db: db, dbType: dbType}, nil
}

func (c *SqlConnection) BeginTx(ctx context.Context) (Transacter, error) {
	if c.db == nil {
		return nil, errors.New("connection is closed or was not opened")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (c *SqlConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return c.db.ExecContext(ctx, query, args...)
}

func (c *SqlConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	r, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (c *SqlConnection) QueryRowContext(ctx context.Context, query string, args ...interface{}) Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

func (c *SqlConnection) PingContext(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *SqlConnection) Close() {
	_ = c.db.Close()
}

func (c *SqlConnection) GetType() string {
	return c.dbType
}
