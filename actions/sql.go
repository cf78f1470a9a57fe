package actions

import (
	"context"
	"fmt"
	"io"

	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/components"
	"github.com/relloyd/starpipe/helper"
)

// SqlConfig configures printing the statements of a workflow run without executing them.
type SqlConfig struct {
	WarehouseOptions
	Dialect string // overrides the dialect implied by the warehouse DSN
}

// RunSql prints every statement a full run would execute, in order.
func RunSql(cfg *SqlConfig) error {
	log := cfg.newLogger()
	var d catalog.Dialect
	var err error
	if cfg.Dialect != "" { // if the user chose a dialect...
		d, err = catalog.NewDialect(cfg.Dialect)
	} else {
		if err = helper.ValidateStructIsPopulated(&cfg.WarehouseOptions); err != nil {
			return fmt.Errorf("supply a dialect or a warehouse: %w", err)
		}
		_, d, err = cfg.resolveDialect()
	}
	if err != nil {
		return err
	}
	r, err := components.NewStatementRenderer(cfg.rendererConfig(log, d, catalog.Default()))
	if err != nil {
		return err
	}
	stmts, err := r.Plan(context.Background(), cfg.DropFirst)
	if err != nil {
		return err
	}
	return writeStatements(output(cfg.Output), stmts)
}

func writeStatements(w io.Writer, stmts []components.Statement) error {
	for _, s := range stmts {
		if _, err := fmt.Fprintf(w, "-- %v %v\n%v;\n\n", s.Step, s.Table, s.SQL); err != nil {
			return err
		}
	}
	return nil
}
