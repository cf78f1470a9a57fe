package actions

import (
	"context"
	"io"
	"os"

	"github.com/relloyd/starpipe/aws/s3"
	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/components"
	"github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/helper"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/rdbms"
	"github.com/relloyd/starpipe/rdbms/shared"
)

// WarehouseOptions are shared by every action that talks to the warehouse.
type WarehouseOptions struct {
	LogLevel         string `errorTxt:"log level" mandatory:"yes"`
	LogFormat        string
	StackDumpOnPanic bool
	Connections      ConnectionLoader
	Warehouse        string `errorTxt:"warehouse connection name or DSN" mandatory:"yes"`
	Sources          components.Sources
	DropFirst        bool
	CheckConcurrency int
	Output           io.Writer
}

func (o *WarehouseOptions) newLogger() logger.Logger {
	return logger.NewLoggerWithFormat(constants.ServiceName, o.LogLevel, o.LogFormat, o.StackDumpOnPanic)
}

// resolveDialect returns the DSN of the warehouse and the dialect implied by its scheme.
func (o *WarehouseOptions) resolveDialect() (string, catalog.Dialect, error) {
	var getter shared.ConnectionGetter
	if o.Connections != nil {
		getter = o.Connections
	}
	dsn, err := shared.ResolveDsn(getter, o.Warehouse)
	if err != nil {
		return "", nil, err
	}
	name, err := rdbms.DialectForDsn(dsn)
	if err != nil {
		return "", nil, err
	}
	d, err := catalog.NewDialect(name)
	if err != nil {
		return "", nil, err
	}
	return dsn, d, nil
}

func (o *WarehouseOptions) rendererConfig(log logger.Logger, d catalog.Dialect, cat *catalog.Catalog) components.RendererConfig {
	region := o.Sources.Region
	if region == "" {
		region = constants.DefaultRegion
	}
	return components.RendererConfig{
		Log:     log,
		Dialect: d,
		Catalog: cat,
		Sources: o.Sources,
		Objects: s3.NewClient(region),
	}
}

// openConnection validates o and connects to its warehouse.
func openConnection(ctx context.Context, log logger.Logger, o *WarehouseOptions) (shared.Connector, error) {
	if err := helper.ValidateStructIsPopulated(o); err != nil {
		return nil, err
	}
	dsn, _, err := o.resolveDialect()
	if err != nil {
		return nil, err
	}
	return rdbms.OpenDbConnection(ctx, log, &shared.DsnConnectionDetails{Dsn: dsn})
}

// openWarehouse connects to the warehouse and returns an executor for the catalog.
// The caller must close the returned connection.
func openWarehouse(ctx context.Context, log logger.Logger, o *WarehouseOptions, cat *catalog.Catalog) (shared.Connector, *components.WarehouseExecutor, error) {
	db, err := openConnection(ctx, log, o)
	if err != nil {
		return nil, nil, err
	}
	_, d, err := o.resolveDialect()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	exec, err := components.NewWarehouseExecutor(&components.WarehouseConfig{
		RendererConfig:   o.rendererConfig(log, d, cat),
		Db:               db,
		DropFirst:        o.DropFirst,
		CheckConcurrency: o.CheckConcurrency,
	})
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return db, exec, nil
}

func output(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
