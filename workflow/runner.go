package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/relloyd/starpipe/catalog"
	c "github.com/relloyd/starpipe/constants"
	"github.com/relloyd/starpipe/logger"
	"github.com/relloyd/starpipe/stats"
	"github.com/rs/xid"
)

// Options tune how a Runner executes nodes.
type Options struct {
	Parallelism          int           // max nodes in flight
	NodeTimeout          time.Duration // per attempt; zero means no timeout
	Retries              uint64        // extra attempts after a failure
	RetryInitialInterval time.Duration // first backoff interval between attempts
	StatsDumpFrequency   time.Duration // zero disables periodic stats logging
}

// DefaultOptions returns the runner defaults: four nodes in flight, no timeout and no retries.
func DefaultOptions() Options {
	return Options{
		Parallelism:          c.DefaultParallelism,
		RetryInitialInterval: time.Second,
		StatsDumpFrequency:   time.Second * c.StatsCaptureFrequencySeconds,
	}
}

// Runner executes a validated Graph by submitting ready nodes to a bounded worker pool.
// A node starts once all of its upstream nodes succeeded. A failed node marks its
// downstream nodes upstream_failed while independent branches keep running.
type Runner struct {
	log      logger.Logger
	graph    *Graph
	order    []Node
	exec     Executor
	opts     Options
	clock    clockwork.Clock
	observer Observer
	runs     *SafeMapRuns
}

func WithClock(clock clockwork.Clock) func(r *Runner) {
	return func(r *Runner) {
		r.clock = clock
	}
}

func WithObserver(o Observer) func(r *Runner) {
	return func(r *Runner) {
		r.observer = o
	}
}

// WithRunRegistry stores every run started by the Runner in m.
func WithRunRegistry(m *SafeMapRuns) func(r *Runner) {
	return func(r *Runner) {
		r.runs = m
	}
}

// NewRunner validates g against cat and returns a Runner that uses exec for the node bodies.
func NewRunner(log logger.Logger, cat *catalog.Catalog, g *Graph, exec Executor, opts Options, options ...func(r *Runner)) (*Runner, error) {
	if err := g.Validate(cat); err != nil {
		return nil, err
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	r := &Runner{
		log:      log,
		graph:    g,
		order:    order,
		exec:     exec,
		opts:     opts,
		clock:    clockwork.NewRealClock(),
		observer: nopObserver{},
	}
	for _, o := range options {
		o(r)
	}
	return r, nil
}

// Graph returns the graph executed by the Runner.
func (r *Runner) Graph() *Graph {
	return r.graph
}

// Start launches a new run in the background and returns immediately.
// Cancelling ctx or calling Run.Stop() aborts the run.
func (r *Runner) Start(ctx context.Context) *Run {
	ctx, cancel := context.WithCancel(ctx)
	id := xid.New().String()
	sm := stats.NewRunStats(logger.WithField(r.log, "runId", id), stats.SetClock(r.clock), stats.SetStatsDumpFrequency(r.opts.StatsDumpFrequency))
	run := newRun(id, r.graph, r.order, sm, cancel)
	if r.runs != nil {
		r.runs.Store(id, run)
	}
	go func() {
		defer cancel()
		r.execute(ctx, run, sm)
	}()
	return run
}

// Run executes the graph once and waits for it to finish.
// The error is a *RunError when any node failed.
func (r *Runner) Run(ctx context.Context) (RunStatus, error) {
	return r.Start(ctx).Wait()
}

type nodeResult struct {
	id    string
	state State
	rows  int64
	err   error
}

func (r *Runner) execute(ctx context.Context, run *Run, sm stats.StatsManager) {
	log := logger.WithField(r.log, "runId", run.ID)
	start := r.clock.Now()
	log.Info("Starting workflow run ", run.ID, " with ", len(r.order), " nodes")
	run.setRunState(StateRunning, start)
	sm.StartDumping()
	pool := pond.NewPool(r.opts.Parallelism)
	results := make(chan nodeResult, len(r.order))
	down := r.graph.Downstream()
	waiting := make(map[string]int, len(r.order))
	byID := make(map[string]Node, len(r.order))
	for _, n := range r.order {
		waiting[n.ID] = len(n.Upstream)
		byID[n.ID] = n
	}
	inFlight := 0
	launch := func(n Node) {
		inFlight++
		run.updateNode(n.ID, func(s *NodeStatus) {
			s.State = StateRunning
			s.StartTime = r.clock.Now()
		})
		sw := sm.AddStepWatcher(n.ID)
		pool.Submit(func() {
			results <- r.runNode(ctx, log, run, n, sw)
		})
	}
	for _, n := range r.order {
		if waiting[n.ID] == 0 && ctx.Err() == nil {
			launch(n)
		}
	}
	for inFlight > 0 {
		res := <-results
		inFlight--
		run.updateNode(res.id, func(s *NodeStatus) {
			s.State = res.state
			s.EndTime = r.clock.Now()
			s.RowsAffected = res.rows
		})
		n := byID[res.id]
		ns := run.Status()
		if st, ok := ns.Node(res.id); ok {
			r.observer.NodeFinished(n, res.state, st.EndTime.Sub(st.StartTime), res.rows)
		}
		switch res.state {
		case StateSucceeded:
			log.Info("Node ", n, " succeeded")
			for _, d := range down[res.id] { // for each dependant...
				waiting[d]--
				if waiting[d] == 0 && ctx.Err() == nil && run.nodeState(d) == StatePending { // if all its upstream nodes succeeded...
					launch(byID[d])
				}
			}
		case StateFailed:
			run.setNodeError(res.id, res.err)
			log.Error("Node ", n, " failed: ", res.err)
			r.blockDownstream(log, run, down, res.id)
		case StateCancelled:
			log.Warn("Node ", n, " cancelled")
		}
	}
	pool.StopAndWait()
	sm.StopDumping()
	end := r.clock.Now()
	state := run.finish(end, ctx.Err())
	r.observer.RunFinished(state, end.Sub(start))
	if state == StateSucceeded {
		log.Info("Workflow run ", run.ID, " succeeded")
	} else {
		log.Error("Workflow run ", run.ID, " ended ", state, ": ", run.Status().Error)
	}
}

// blockDownstream marks every pending node reachable from id as upstream_failed.
func (r *Runner) blockDownstream(log logger.Logger, run *Run, down map[string][]string, id string) {
	stack := append([]string{}, down[id]...)
	for len(stack) > 0 {
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if run.nodeState(d) != StatePending {
			continue
		}
		run.updateNode(d, func(s *NodeStatus) {
			s.State = StateUpstreamFailed
		})
		log.Warn("Node ", d, " will not run because upstream node ", id, " failed")
		stack = append(stack, down[d]...)
	}
}

// runNode executes n with retries and returns its outcome.
func (r *Runner) runNode(ctx context.Context, log logger.Logger, run *Run, n Node, sw *stats.StepWatcher) (res nodeResult) {
	res.id = n.ID
	sw.StartWatching()
	defer func() {
		if p := recover(); p != nil { // if the node body panicked...
			res.state = StateFailed
			res.err = fmt.Errorf("panic in node %v: %v", n.ID, p)
		}
		switch res.state {
		case StateSucceeded:
			sw.StopWatching(stats.StatusSucceeded)
		default:
			sw.StopWatching(stats.StatusFailed)
		}
	}()
	log.Info("Starting node ", n)
	op := func() error {
		run.updateNode(n.ID, func(s *NodeStatus) {
			s.Attempts++
		})
		sw.AddAttempt()
		actx, cancel := ctx, context.CancelFunc(func() {})
		if r.opts.NodeTimeout > 0 {
			actx, cancel = context.WithTimeout(ctx, r.opts.NodeTimeout)
		}
		defer cancel()
		rows, err := r.dispatch(actx, n)
		if err != nil {
			if ctx.Err() != nil { // if the whole run was cancelled...
				return backoff.Permanent(err)
			}
			if actx.Err() != nil { // if the attempt timed out...
				err = errors.Wrapf(err, "node %v timed out after %v", n.ID, r.opts.NodeTimeout)
			}
			return err
		}
		res.rows = rows
		sw.AddRows(rows)
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.opts.RetryInitialInterval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.opts.Retries), ctx)
	notify := func(err error, d time.Duration) {
		log.Warn("Node ", n, " failed, retrying in ", d, ": ", err)
	}
	err := backoff.RetryNotify(op, b, notify)
	switch {
	case err == nil:
		res.state = StateSucceeded
	case ctx.Err() != nil:
		res.state = StateCancelled
		res.err = err
	default:
		res.state = StateFailed
		res.err = err
	}
	return res
}

func (r *Runner) dispatch(ctx context.Context, n Node) (int64, error) {
	switch n.Kind {
	case KindMarker:
		return 0, nil
	case KindCreate:
		return 0, r.exec.CreateTables(ctx, n.Tables)
	case KindLoad:
		return r.exec.LoadStaging(ctx, n.Table())
	case KindTransform:
		return r.exec.TransformTable(ctx, n.Table())
	case KindCheck:
		return 0, r.exec.CheckQuality(ctx, n.Tables)
	default:
		return 0, fmt.Errorf("unsupported node kind %q", n.Kind)
	}
}
