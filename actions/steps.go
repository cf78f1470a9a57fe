package actions

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/components"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/workflow"
)

// StepConfig configures a single workflow step run outside the graph.
type StepConfig struct {
	WarehouseOptions
	Tables []string // empty means every table the step applies to
}

type stepFunc func(ctx context.Context, log logger.Logger, exec *components.WarehouseExecutor, cat *catalog.Catalog, tables []string) error

func runStep(cfg *StepConfig, fn stepFunc) error {
	log := cfg.newLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := workflow.CleanupHandlerDefault(log, cancel)
	defer stop()
	return runStepWithContext(ctx, log, cfg, fn)
}

func runStepWithContext(ctx context.Context, log logger.Logger, cfg *StepConfig, fn stepFunc) error {
	cat := catalog.Default()
	db, exec, err := openWarehouse(ctx, log, &cfg.WarehouseOptions, cat)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, log, exec, cat, cfg.Tables)
}

// tablesOrRole returns tables, or the names of the catalog tables with one of roles when tables is empty.
func tablesOrRole(cat *catalog.Catalog, tables []string, roles ...catalog.Role) []string {
	if len(tables) > 0 {
		return tables
	}
	retval := make([]string, 0)
	for _, r := range roles {
		for _, t := range cat.TablesWithRole(r) {
			retval = append(retval, t.Name)
		}
	}
	return retval
}

func createStep(ctx context.Context, log logger.Logger, exec *components.WarehouseExecutor, cat *catalog.Catalog, tables []string) error {
	return exec.CreateTables(ctx, tables)
}

func dropStep(ctx context.Context, log logger.Logger, exec *components.WarehouseExecutor, cat *catalog.Catalog, tables []string) error {
	return exec.DropTables(ctx, tables)
}

func loadStep(ctx context.Context, log logger.Logger, exec *components.WarehouseExecutor, cat *catalog.Catalog, tables []string) error {
	for _, t := range tablesOrRole(cat, tables, catalog.RoleStaging) {
		if _, err := exec.LoadStaging(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// transformStep populates tables in catalog order so the fact table is filled before the time dimension reads it.
func transformStep(ctx context.Context, log logger.Logger, exec *components.WarehouseExecutor, cat *catalog.Catalog, tables []string) error {
	wanted := make(map[string]bool)
	for _, t := range tablesOrRole(cat, tables, catalog.RoleFact, catalog.RoleDimension) {
		if _, ok := cat.Table(t); !ok {
			return &components.TransformError{Table: t, Err: fmt.Errorf("table %q is not in the catalog", t)}
		}
		wanted[t] = true
	}
	for _, t := range cat.Tables() {
		if !wanted[t.Name] {
			continue
		}
		if _, err := exec.TransformTable(ctx, t.Name); err != nil {
			return err
		}
	}
	return nil
}

func checkStep(w io.Writer) stepFunc {
	return func(ctx context.Context, log logger.Logger, exec *components.WarehouseExecutor, cat *catalog.Catalog, tables []string) error {
		err := exec.CheckQuality(ctx, tables)
		var qe *components.QualityError
		if errors.As(err, &qe) { // if the data failed its checks...
			writeQualityFailures(w, qe.Failures)
		} else if err == nil {
			fmt.Fprintln(output(w), "Data quality checks passed")
		}
		return err
	}
}

// RunCreate creates the catalog tables, dropping them first when cfg.DropFirst is set.
func RunCreate(cfg *StepConfig) error {
	return runStep(cfg, createStep)
}

// RunDrop drops the catalog tables.
func RunDrop(cfg *StepConfig) error {
	return runStep(cfg, dropStep)
}

// RunLoad bulk-loads the staging tables from object storage.
func RunLoad(cfg *StepConfig) error {
	return runStep(cfg, loadStep)
}

// RunTransform populates the fact and dimension tables from staging.
func RunTransform(cfg *StepConfig) error {
	return runStep(cfg, transformStep)
}

// RunCheck runs the data quality checks and prints every failure.
func RunCheck(cfg *StepConfig) error {
	return runStep(cfg, checkStep(cfg.Output))
}
