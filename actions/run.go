package actions

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/catalog"
	"github.com/relloyd/starpipe/components"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/metrics"
	"github.com/relloyd/starpipe/rdbms/shared"
	"github.com/relloyd/starpipe/workflow"
)

// RunConfig configures a workflow run, or a schedule of runs when Every is set.
type RunConfig struct {
	WarehouseOptions
	GraphFile          string // optional YAML or JSON graph; the default Sparkify graph is used if empty
	Parallelism        int
	NodeTimeout        time.Duration
	Retries            uint64
	RetryInterval      time.Duration
	StatsDumpFrequency time.Duration
	Every              time.Duration // run at the top of every interval; zero runs once
	RunNow             bool          // with Every, also run immediately
}

func (cfg *RunConfig) runnerOptions() workflow.Options {
	opts := workflow.DefaultOptions()
	if cfg.Parallelism > 0 {
		opts.Parallelism = cfg.Parallelism
	}
	if cfg.RetryInterval > 0 {
		opts.RetryInitialInterval = cfg.RetryInterval
	}
	opts.NodeTimeout = cfg.NodeTimeout
	opts.Retries = cfg.Retries
	opts.StatsDumpFrequency = cfg.StatsDumpFrequency
	return opts
}

func loadGraph(fileName string, cat *catalog.Catalog) (*workflow.Graph, error) {
	if fileName == "" {
		return workflow.DefaultGraph(cat), nil
	}
	return workflow.LoadGraphFile(fileName, cat)
}

// RunWorkflow runs the workflow once, or on a schedule, until it finishes or the process is interrupted.
// The error is a *workflow.RunError when any node failed.
func RunWorkflow(cfg *RunConfig) error {
	log := cfg.newLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := workflow.CleanupHandlerDefault(log, cancel)
	defer stop()
	return runWorkflow(ctx, log, cfg)
}

// RunWorkflowOnce runs the workflow once using ctx and returns its status.
// Scheduling is ignored.
func RunWorkflowOnce(ctx context.Context, cfg *RunConfig) (workflow.RunStatus, error) {
	log := cfg.newLogger()
	runner, db, err := newRunner(ctx, log, cfg)
	if err != nil {
		return workflow.RunStatus{}, err
	}
	defer db.Close()
	return runner.Run(ctx)
}

// newRunner connects to the warehouse and builds a Runner for the configured graph.
// The caller must close the returned connection.
func newRunner(ctx context.Context, log logger.Logger, cfg *RunConfig) (*workflow.Runner, shared.Connector, error) {
	cat := catalog.Default()
	g, err := loadGraph(cfg.GraphFile, cat)
	if err != nil {
		return nil, nil, err
	}
	db, exec, err := openWarehouse(ctx, log, &cfg.WarehouseOptions, cat)
	if err != nil {
		return nil, nil, err
	}
	runner, err := workflow.NewRunner(log, cat, g, exec, cfg.runnerOptions(), workflow.WithObserver(metrics.Observer{}))
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return runner, db, nil
}

func runWorkflow(ctx context.Context, log logger.Logger, cfg *RunConfig) error {
	runner, db, err := newRunner(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	report := func(status workflow.RunStatus, err error) {
		writeRunSummary(cfg.Output, status)
		var qe *components.QualityError
		if errors.As(err, &qe) { // if the data failed its checks...
			writeQualityFailures(cfg.Output, qe.Failures)
		}
	}
	if cfg.Every <= 0 { // if we should run once...
		status, err := runner.Run(ctx)
		report(status, err)
		return err
	}
	s, err := workflow.NewScheduler(log, runner, cfg.Every, workflow.WithRunHandler(report))
	if err != nil {
		return err
	}
	return s.Run(ctx, cfg.RunNow)
}
