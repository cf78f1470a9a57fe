package components

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/catalog"
	c "github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/helper"
	"github.com/relloyd/starpipe/rdbms/shared"
)

// WarehouseConfig configures a WarehouseExecutor.
type WarehouseConfig struct {
	RendererConfig
	Db               shared.Connector `errorTxt:"warehouse connection" mandatory:"yes"`
	DropFirst        bool             // drop tables before creating them
	CheckConcurrency int              // max quality check queries in flight
}

// WarehouseExecutor runs workflow node bodies against a warehouse connection.
// Loads and transforms replace the contents of their table inside one transaction.
type WarehouseExecutor struct {
	*StatementRenderer
	db               shared.Connector
	dropFirst        bool
	checkConcurrency int
}

func validateRendererConfig(cfg RendererConfig) error {
	return helper.ValidateStructIsPopulated(&cfg)
}

// NewWarehouseExecutor validates cfg and returns a WarehouseExecutor.
func NewWarehouseExecutor(cfg *WarehouseConfig) (*WarehouseExecutor, error) {
	if err := helper.ValidateStructIsPopulated(cfg); err != nil {
		return nil, err
	}
	if cfg.CheckConcurrency < 1 {
		cfg.CheckConcurrency = c.DefaultParallelism
	}
	return &WarehouseExecutor{
		StatementRenderer: newStatementRenderer(cfg.RendererConfig),
		db:                cfg.Db,
		dropFirst:         cfg.DropFirst,
		checkConcurrency:  cfg.CheckConcurrency,
	}, nil
}

// DropTables drops the named tables, or every catalog table when tables is empty, dependants first.
func (w *WarehouseExecutor) DropTables(ctx context.Context, tables []string) error {
	list, err := w.tables(tables)
	if err != nil {
		return &SchemaError{Op: OpDrop, Err: err}
	}
	for i := len(list) - 1; i >= 0; i-- { // for each table in reverse creation order...
		t := list[i]
		for _, stmt := range w.dialect.DropTable(t) {
			w.log.Debug("drop table ", t.Name, ": ", stmt)
			if _, err := w.db.ExecContext(ctx, stmt); err != nil {
				return &SchemaError{Table: t.Name, Op: OpDrop, Err: errors.Wrapf(err, "error executing SQL '%v'", stmt)}
			}
		}
		w.log.Info("Dropped table ", t.Name)
	}
	return nil
}

// CreateTables creates the named tables, or every catalog table when tables is empty.
// Tables are dropped first if the executor was configured with DropFirst.
func (w *WarehouseExecutor) CreateTables(ctx context.Context, tables []string) error {
	if w.dropFirst {
		if err := w.DropTables(ctx, tables); err != nil {
			return err
		}
	}
	list, err := w.tables(tables)
	if err != nil {
		return &SchemaError{Op: OpCreate, Err: err}
	}
	for _, t := range list {
		for _, stmt := range w.dialect.CreateTable(t) {
			w.log.Debug("create table ", t.Name, ": ", stmt)
			if _, err := w.db.ExecContext(ctx, stmt); err != nil {
				return &SchemaError{Table: t.Name, Op: OpCreate, Err: errors.Wrapf(err, "error executing SQL '%v'", stmt)}
			}
		}
		w.log.Info("Created table ", t.Name)
	}
	return nil
}

// LoadStaging replaces the contents of staging table from its object storage source.
func (w *WarehouseExecutor) LoadStaging(ctx context.Context, table string) (int64, error) {
	t, err := w.tableWithRole(table, catalog.RoleStaging)
	if err != nil {
		return 0, &LoadError{Table: table, Err: err}
	}
	clear, load, src, err := w.loadStatements(ctx, t, true)
	if err != nil {
		return 0, &LoadError{Table: table, Source: src.URI, Err: err}
	}
	w.log.Info("Loading table ", t.Name, " from ", src.URI)
	rows, err := execReplaceInTx(ctx, w.log, w.db, fmt.Sprintf("load %v", t.Name), clear, load)
	if err != nil {
		return 0, &LoadError{Table: table, Source: src.URI, Err: err}
	}
	w.log.Info("Loaded table ", t.Name, ": rows affected = ", rows)
	return rows, nil
}

// TransformTable replaces the contents of a fact or dimension table from its sources.
// An empty result is not an error.
func (w *WarehouseExecutor) TransformTable(ctx context.Context, table string) (int64, error) {
	t, err := w.tableWithRole(table, catalog.RoleFact, catalog.RoleDimension)
	if err != nil {
		return 0, &TransformError{Table: table, Err: err}
	}
	clear, insert, err := w.transformStatements(t)
	if err != nil {
		return 0, &TransformError{Table: table, Err: err}
	}
	rows, err := execReplaceInTx(ctx, w.log, w.db, fmt.Sprintf("transform %v", t.Name), clear, []string{insert})
	if err != nil {
		return 0, &TransformError{Table: table, Err: err}
	}
	w.log.Info("Transformed table ", t.Name, ": rows affected = ", rows)
	return rows, nil
}
