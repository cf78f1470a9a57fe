package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/relloyd/starpipe/stats"
)

// NodeStatus is the outcome of one node in a run.
type NodeStatus struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	State        State     `json:"state"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	Attempts     int       `json:"attempts"`
	RowsAffected int64     `json:"rowsAffected"`
	Error        string    `json:"error,omitempty"`
}

// RunStatus is a point-in-time copy of a run.
type RunStatus struct {
	RunID       string       `json:"runId"`
	Description string       `json:"description,omitempty"`
	State       State        `json:"state"`
	StartTime   time.Time    `json:"startTime"`
	EndTime     time.Time    `json:"endTime"`
	Error       string       `json:"error,omitempty"`
	Nodes       []NodeStatus `json:"nodes"`
}

// Node returns the status of node id.
func (s RunStatus) Node(id string) (NodeStatus, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeStatus{}, false
}

// NodeError is the failure of a single node.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %v failed: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// RunError is returned when at least one node failed.
type RunError struct {
	RunID  string
	Failed []*NodeError
}

func (e *RunError) Error() string {
	msgs := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("run %v failed: %v", e.RunID, strings.Join(msgs, "; "))
}

func (e *RunError) Unwrap() []error {
	retval := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		retval[i] = f
	}
	return retval
}

// Run tracks a workflow execution in flight.
type Run struct {
	ID     string
	Stats  stats.StatsFetcher
	mu     sync.RWMutex
	status RunStatus
	index  map[string]int
	errs   map[string]error
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

func newRun(id string, g *Graph, order []Node, s stats.StatsFetcher, cancel context.CancelFunc) *Run {
	r := &Run{
		ID:     id,
		Stats:  s,
		index:  make(map[string]int, len(order)),
		errs:   make(map[string]error),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	r.status = RunStatus{RunID: id, Description: g.Description, State: StatePending}
	for i, n := range order {
		r.index[n.ID] = i
		r.status.Nodes = append(r.status.Nodes, NodeStatus{ID: n.ID, Kind: n.Kind, State: StatePending})
	}
	return r
}

// Status returns a copy of the current run status.
func (r *Run) Status() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	retval := r.status
	retval.Nodes = make([]NodeStatus, len(r.status.Nodes))
	copy(retval.Nodes, r.status.Nodes)
	return retval
}

// Stop cancels the run. Running statements are aborted and unstarted nodes end cancelled.
func (r *Run) Stop() {
	r.cancel()
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes and returns its final status and error.
func (r *Run) Wait() (RunStatus, error) {
	<-r.done
	return r.Status(), r.err
}

// IsFinished is true once every node has reached a terminal state.
func (r *Run) IsFinished() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

func (r *Run) nodeState(id string) State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.Nodes[r.index[id]].State
}

func (r *Run) updateNode(id string, fn func(n *NodeStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.status.Nodes[r.index[id]])
}

func (r *Run) setNodeError(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[id] = err
	r.status.Nodes[r.index[id]].Error = err.Error()
}

func (r *Run) setRunState(s State, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status.State = s
	if s == StateRunning {
		r.status.StartTime = t
	} else {
		r.status.EndTime = t
	}
}

// finish settles the final run state from the node states and releases waiters.
func (r *Run) finish(t time.Time, ctxErr error) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	failed := make([]*NodeError, 0)
	cancelled := false
	for i := range r.status.Nodes {
		n := &r.status.Nodes[i]
		switch n.State {
		case StatePending, StateRunning: // if the node never got to run...
			n.State = StateCancelled
			cancelled = true
		case StateCancelled:
			cancelled = true
		case StateFailed:
			err := r.errs[n.ID]
			if err == nil {
				err = fmt.Errorf("%v", n.Error)
			}
			failed = append(failed, &NodeError{NodeID: n.ID, Err: err})
		}
	}
	switch {
	case len(failed) > 0:
		r.status.State = StateFailed
		r.err = &RunError{RunID: r.ID, Failed: failed}
	case cancelled:
		r.status.State = StateCancelled
		if ctxErr == nil {
			ctxErr = context.Canceled
		}
		r.err = fmt.Errorf("run %v cancelled: %w", r.ID, ctxErr)
	default:
		r.status.State = StateSucceeded
	}
	if r.err != nil {
		r.status.Error = r.err.Error()
	}
	r.status.EndTime = t
	close(r.done)
	return r.status.State
}

// SafeMapRuns is a registry of runs keyed by run ID.
type SafeMapRuns struct {
	sync.RWMutex
	Internal map[string]*Run
	order    []string
}

func NewSafeMapRuns() *SafeMapRuns {
	return &SafeMapRuns{Internal: make(map[string]*Run)}
}

func (m *SafeMapRuns) Load(key string) (r *Run, ok bool) {
	m.RLock()
	r, ok = m.Internal[key]
	m.RUnlock()
	return
}

func (m *SafeMapRuns) Store(key string, value *Run) {
	m.Lock()
	if _, exists := m.Internal[key]; !exists {
		m.order = append(m.order, key)
	}
	m.Internal[key] = value
	m.Unlock()
}

func (m *SafeMapRuns) Delete(key string) {
	m.Lock()
	delete(m.Internal, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.Unlock()
}

// List returns the runs in the order they were stored.
func (m *SafeMapRuns) List() []*Run {
	m.RLock()
	defer m.RUnlock()
	retval := make([]*Run, 0, len(m.order))
	for _, k := range m.order {
		retval = append(retval, m.Internal[k])
	}
	return retval
}
