package shared

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/relloyd/starpipe/logger"
)

const (
	MockBegin    = "BEGIN"
	MockCommit   = "COMMIT"
	MockRollback = "ROLLBACK"
)

// MockConnection is a Connector that records the statements it is asked to execute instead of running them.
// Transactions are recorded as BEGIN, the statements, then COMMIT or ROLLBACK.
type MockConnection struct {
	log        logger.Logger
	dbType     string
	mu         sync.Mutex
	statements []string
	// FailOn causes Exec of any statement containing a key to return the mapped error.
	FailOn map[string]error
	// Count returns the value scanned by QueryRowContext. Nil means every count is 1.
	Count func(query string) (int64, error)
	// Delay is how long each Exec takes unless the context is cancelled first.
	Delay        time.Duration
	RowsAffected int64
}

// NewMockConnectionWithMockTx returns a MockConnection that reports dbType from GetType().
func NewMockConnectionWithMockTx(log logger.Logger, dbType string) *MockConnection {
	return &MockConnection{log: log, dbType: dbType, FailOn: make(map[string]error)}
}

// Statements returns a copy of every statement recorded so far.
func (c *MockConnection) Statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	retval := make([]string, len(c.statements))
	copy(retval, c.statements)
	return retval
}

func (c *MockConnection) record(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statements = append(c.statements, s)
}

func (c *MockConnection) exec(ctx context.Context, query string, record func(string)) (Result, error) {
	if c.log != nil {
		c.log.Debug("mock exec: ", query)
	}
	if c.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Delay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for k, err := range c.FailOn {
		if strings.Contains(query, k) {
			return nil, err
		}
	}
	record(query)
	return mockResult{rows: c.RowsAffected}, nil
}

func (c *MockConnection) BeginTx(ctx context.Context) (Transacter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &mockTx{conn: c, pending: []string{MockBegin}}, nil
}

func (c *MockConnection) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	return c.exec(ctx, query, c.record)
}

func (c *MockConnection) QueryContext(ctx context.Context, query string, args ...interface{}) (Rows, error) {
	return nil, errors.New("mock connection does not support queries returning rows")
}

func (c *MockConnection) QueryRowContext(ctx context.Context, query string, args ...interface{}) Row {
	c.record(query)
	if err := ctx.Err(); err != nil {
		return mockRow{err: err}
	}
	if c.Count == nil {
		return mockRow{value: 1}
	}
	v, err := c.Count(query)
	return mockRow{value: v, err: err}
}

func (c *MockConnection) PingContext(ctx context.Context) error {
	return ctx.Err()
}

func (c *MockConnection) Close() {}

func (c *MockConnection) GetType() string {
	return c.dbType
}

type mockTx struct {
	conn    *MockConnection
	pending []string
	done    bool
}

func (t *mockTx) ExecContext(ctx context.Context, query string, args ...interface{}) (Result, error) {
	if t.done {
		return nil, errors.New("transaction has already been committed or rolled back")
	}
	return t.conn.exec(ctx, query, func(s string) { t.pending = append(t.pending, s) })
}

func (t *mockTx) finish(marker string) error {
	if t.done {
		return errors.New("transaction has already been committed or rolled back")
	}
	t.done = true
	t.conn.mu.Lock()
	defer t.conn.mu.Unlock()
	t.conn.statements = append(t.conn.statements, append(t.pending, marker)...)
	return nil
}

func (t *mockTx) Commit() error {
	return t.finish(MockCommit)
}

func (t *mockTx) Rollback() error {
	return t.finish(MockRollback)
}

type mockResult struct {
	rows int64
}

func (r mockResult) LastInsertId() (int64, error) {
	return 0, errors.New("LastInsertId is not supported")
}

func (r mockResult) RowsAffected() (int64, error) {
	return r.rows, nil
}

type mockRow struct {
	value int64
	err   error
}

func (r mockRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return fmt.Errorf("mock row has 1 column but %v destinations were supplied", len(dest))
	}
	switch d := dest[0].(type) {
	case *int64:
		*d = r.value
	case *int:
		*d = int(r.value)
	case *interface{}:
		*d = r.value
	default:
		return fmt.Errorf("unsupported scan destination %T", dest[0])
	}
	return nil
}
