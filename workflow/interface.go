package workflow

import (
	"context"
	"time"
)

// Executor runs the body of each node kind against the warehouse.
type Executor interface {
	// CreateTables creates the named tables, or every catalog table when tables is empty.
	CreateTables(ctx context.Context, tables []string) error
	// LoadStaging replaces the contents of a staging table from object storage.
	LoadStaging(ctx context.Context, table string) (rowsAffected int64, err error)
	// TransformTable replaces the contents of a fact or dimension table from its sources.
	TransformTable(ctx context.Context, table string) (rowsAffected int64, err error)
	// CheckQuality verifies tables and reports every violation found.
	CheckQuality(ctx context.Context, tables []string) error
}

// Observer is told when nodes and runs finish.
type Observer interface {
	NodeFinished(n Node, state State, elapsed time.Duration, rowsAffected int64)
	RunFinished(state State, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) NodeFinished(Node, State, time.Duration, int64) {}

func (nopObserver) RunFinished(State, time.Duration) {}
