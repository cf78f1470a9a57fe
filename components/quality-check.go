package components

import (
	"context"
	"fmt"

	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/rdbms"
	"golang.org/x/sync/errgroup"
)

type qualityCheck struct {
	table  *catalog.Table
	column string // empty for the row count check
	sql    string
}

// qualityChecks lists, per table, a row count check and a NULL check for each NOT NULL column.
func (w *WarehouseExecutor) qualityChecks(tables []string) ([]qualityCheck, error) {
	list := make([]*catalog.Table, 0)
	if len(tables) == 0 {
		list = w.cat.StarTables()
	}
	for _, name := range tables {
		t, err := w.tableWithRole(name, catalog.RoleFact, catalog.RoleDimension)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	retval := make([]qualityCheck, 0)
	for _, t := range list {
		retval = append(retval, qualityCheck{table: t, sql: w.dialect.CountRows(t)})
		for _, col := range t.NotNullColumns() {
			retval = append(retval, qualityCheck{table: t, column: col, sql: w.dialect.CountNulls(t, col)})
		}
	}
	return retval, nil
}

// CheckQuality asserts that each table has rows and no NULLs in its NOT NULL columns.
// The returned *QualityError lists every violation, not just the first.
// An empty tables slice checks the fact and dimension tables of the catalog.
func (w *WarehouseExecutor) CheckQuality(ctx context.Context, tables []string) error {
	checks, err := w.qualityChecks(tables)
	if err != nil {
		return &QualityError{Failures: []QualityFailure{{Check: CheckQuery, Detail: err.Error()}}}
	}
	results := make([]*QualityFailure, len(checks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.checkConcurrency)
	for idx := range checks {
		idx := idx
		g.Go(func() error {
			chk := checks[idx]
			w.log.Debug("quality check: ", chk.sql)
			n, err := rdbms.QueryInt64(gctx, w.db, chk.sql)
			switch {
			case gctx.Err() != nil: // if the run was cancelled...
				return gctx.Err()
			case err != nil:
				results[idx] = &QualityFailure{Table: chk.table.Name, Column: chk.column, Check: CheckQuery, Detail: err.Error()}
			case chk.column == "" && n <= 0:
				results[idx] = &QualityFailure{Table: chk.table.Name, Check: CheckRowCount, Detail: "table contains no rows"}
			case chk.column != "" && n > 0:
				results[idx] = &QualityFailure{Table: chk.table.Name, Column: chk.column, Check: CheckNotNull, Detail: fmt.Sprintf("%v NULL values found", n)}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	failures := make([]QualityFailure, 0)
	for _, f := range results {
		if f != nil {
			failures = append(failures, *f)
		}
	}
	if len(failures) > 0 {
		for _, f := range failures {
			w.log.Error("Data quality check failed: ", f)
		}
		return &QualityError{Failures: failures}
	}
	w.log.Info("Data quality checks passed for ", len(checks), " checks")
	return nil
}
