package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	c "github.com/relloyd/starpipe/constants"
	h "github.com/relloyd/starpipe/helper"
	"github.com/relloyd/starpipe/logger"
)

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var statusEmoji = map[string]string{
	StatusRunning:   "\U0000231B", // hour glass
	StatusSucceeded: "\U00002705", // green tick
	StatusFailed:    c.EmojiBang,
}

// StepWatcher saves stats for one workflow node.
// The node calls StartWatching() and StopWatching() around its work.
type StepWatcher struct {
	log       logger.Logger
	clock     clockwork.Clock
	stepName  string
	mu        sync.RWMutex
	startTime time.Time
	endTime   time.Time
	status    string
	rows      int64
	attempts  int32
	isRunning h.AtomBool
}

type Stats struct {
	StepName         string `json:"stepName"`
	StatusText       string `json:"statusText"`
	StatusEmoji      string `json:"statusEmoji"`
	ElapsedTimeSec   int    `json:"elapsedTimeSec"`
	ElapsedTimeMs    int64  `json:"elapsedTimeMs"`
	RowsAffected     int64  `json:"rowsAffected"`
	RowsPerSecondAvg int64  `json:"rowsPerSecondAvg"`
	Attempts         int    `json:"attempts"`
}

func NewStepWatcher(log logger.Logger, clock clockwork.Clock, stepName string) *StepWatcher {
	return &StepWatcher{log: log, clock: clock, stepName: stepName}
}

func (n *StepWatcher) StartWatching() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.startTime = n.clock.Now()
	n.endTime = time.Time{}
	n.status = StatusRunning
	atomic.StoreInt64(&n.rows, 0)
	n.isRunning.Set(true)
}

// AddRows adds to the number of rows affected by the node.
func (n *StepWatcher) AddRows(rows int64) {
	atomic.AddInt64(&n.rows, rows)
}

// AddAttempt counts one execution attempt of the node.
func (n *StepWatcher) AddAttempt() {
	atomic.AddInt32(&n.attempts, 1)
}

// StopWatching freezes the elapsed time and saves the final status of the node.
func (n *StepWatcher) StopWatching(status string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endTime = n.clock.Now()
	n.status = status
	n.isRunning.Set(false)
	if n.log != nil {
		n.log.Debug("STATS: ", n.stepName, " ", status, " after ", n.endTime.Sub(n.startTime))
	}
}

// RenderStats gets a struct filled with stats at the point of time it is called.
func (n *StepWatcher) RenderStats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	end := n.endTime
	if n.isRunning.Get() || end.IsZero() {
		end = n.clock.Now()
	}
	elapsed := end.Sub(n.startTime)
	rows := atomic.LoadInt64(&n.rows)
	return Stats{
		StepName:         n.stepName,
		StatusText:       n.status,
		StatusEmoji:      statusEmoji[n.status],
		ElapsedTimeSec:   int(elapsed.Seconds()),
		ElapsedTimeMs:    elapsed.Milliseconds(),
		RowsAffected:     rows,
		RowsPerSecondAvg: rows / getNumSecondsOrOne(elapsed),
		Attempts:         int(atomic.LoadInt32(&n.attempts)),
	}
}

// String will format the stats for general logging.
func (s Stats) String() string {
	return fmt.Sprintf(
		"Stats for %v %v %v "+
			"elapsedTimeSec=%v "+
			"rowsAffected=%v "+
			"rowsPerSecondAvg=%v "+
			"attempts=%v",
		s.StepName, s.StatusText, s.StatusEmoji,
		s.ElapsedTimeSec,
		s.RowsAffected,
		s.RowsPerSecondAvg,
		s.Attempts,
	)
}

func getNumSecondsOrOne(d time.Duration) (seconds int64) {
	seconds = int64(d.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	return
}
